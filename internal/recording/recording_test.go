package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/recintake/recintake/internal/auth"
	"github.com/recintake/recintake/internal/shortlink"
	"github.com/recintake/recintake/internal/storage"
)

const testBaseURL = "https://rec.example.com"

type mockStorage struct {
	mu            sync.Mutex
	uploadedFiles map[string]string // key -> source path
	uploadedTexts map[string]string // key -> text
	deletedKeys   []string
	objects       []storage.ObjectInfo
	readData      []byte

	uploadFileErr error
	uploadTextErr error
	listErr       error
	readErr       error
	deleteErr     map[string]error
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		uploadedFiles: make(map[string]string),
		uploadedTexts: make(map[string]string),
		deleteErr:     make(map[string]error),
	}
}

func (m *mockStorage) UploadFile(_ context.Context, key, filePath, _ string) error {
	if m.uploadFileErr != nil {
		return m.uploadFileErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadedFiles[key] = filePath
	return nil
}

func (m *mockStorage) UploadText(_ context.Context, key, text string) error {
	if m.uploadTextErr != nil {
		return m.uploadTextErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadedTexts[key] = text
	return nil
}

func (m *mockStorage) ReadObject(_ context.Context, _ string) ([]byte, error) {
	return m.readData, m.readErr
}

func (m *mockStorage) ListPrefix(_ context.Context, _ string) ([]storage.ObjectInfo, error) {
	return m.objects, m.listErr
}

func (m *mockStorage) DeleteObject(_ context.Context, key string) error {
	if err, ok := m.deleteErr[key]; ok {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedKeys = append(m.deletedKeys, key)
	return nil
}

func (m *mockStorage) PublicURL(key string) string {
	return "https://media.example.com/recintake/" + key
}

func (m *mockStorage) KeyFromPublicURL(url string) (string, bool) {
	const prefix = "https://media.example.com/recintake/"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):], true
	}
	return "", false
}

type mockTranscoder struct {
	err      error
	inPaths  []string
	outPaths []string
}

func (m *mockTranscoder) Transcode(_ context.Context, inputPath, outputPath string) error {
	m.inPaths = append(m.inPaths, inputPath)
	m.outPaths = append(m.outPaths, outputPath)
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(outputPath, []byte("transcoded"), 0o600)
}

type mockTranscriber struct {
	text string
	err  error
}

func (m *mockTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	return m.text, m.err
}

type mockSummarizer struct {
	summary string
	err     error
}

func (m *mockSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	return m.summary, m.err
}

type mockLinks struct {
	createErr   error
	created     []shortlink.Record
	deletedKeys []string
	deletedURLs []string
	deleteErr   error
}

func (m *mockLinks) Create(_ context.Context, rec shortlink.Record) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created = append(m.created, rec)
	return "short123", nil
}

func (m *mockLinks) DeleteByFileKey(_ context.Context, fileKey string) error {
	m.deletedKeys = append(m.deletedKeys, fileKey)
	return m.deleteErr
}

func (m *mockLinks) DeleteByTargetURL(_ context.Context, targetURL string) error {
	m.deletedURLs = append(m.deletedURLs, targetURL)
	return m.deleteErr
}

func withIdentity(id auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
		})
	}
}

func newRouter(h *Handler, identity *auth.Identity) *chi.Mux {
	r := chi.NewRouter()
	if identity != nil {
		r.Use(withIdentity(*identity))
	}
	r.Post("/api/upload-with-ai", h.Upload)
	r.Get("/api/my-videos", h.List)
	r.Delete("/api/delete-video", h.Delete)
	r.Post("/api/analyze-text", h.AnalyzeText)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(part, bytes.NewReader(fileContent)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func assertNoTempFiles(t *testing.T, tc *mockTranscoder) {
	t.Helper()
	for _, path := range append(append([]string{}, tc.inPaths...), tc.outPaths...) {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("temp file %s still exists after pipeline", path)
		}
	}
}

var errSimulated = fmt.Errorf("simulated failure")
