// Package transcribe calls an OpenAI-compatible speech-to-text endpoint once
// per recording, synchronously from the pipeline's point of view.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	language   string
	prompt     string
	httpClient *http.Client
}

// NewClient builds a transcription client. language and prompt are optional
// domain hints forwarded to the service; they never affect control flow.
func NewClient(baseURL, apiKey, model, language, prompt string) *Client {
	if model == "" {
		model = "whisper-1"
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		language: language,
		prompt:   prompt,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends the finished media file and returns the transcript text
// exactly as the service produced it. No retry, no chunking; the caller's
// request timeout is the only budget.
func (c *Client) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	f, err := os.Open(mediaPath)
	if err != nil {
		return "", fmt.Errorf("open media file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filepath.Base(mediaPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read media file: %w", err)
	}
	fields := map[string]string{
		"model":    c.model,
		"language": c.language,
		"prompt":   c.prompt,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return parsed.Text, nil
}
