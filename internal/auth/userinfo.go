package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserinfoClient is stage two of the resolver: a token that is not a
// first-party JWT is treated as an opaque access token and presented to the
// provider's userinfo endpoint.
type UserinfoClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewUserinfoClient(endpoint string) *UserinfoClient {
	return &UserinfoClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type userinfoResponse struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

func (c *UserinfoClient) Lookup(ctx context.Context, accessToken string) (Identity, error) {
	if c == nil || c.endpoint == "" {
		return Identity{}, fmt.Errorf("userinfo endpoint not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var parsed userinfoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Identity{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Sub == "" && parsed.Email == "" {
		return Identity{}, fmt.Errorf("userinfo response carries no identity")
	}

	return Identity{Subject: parsed.Sub, Email: parsed.Email}, nil
}
