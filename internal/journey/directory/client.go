// Package directory pushes identity fields from the profile step to the
// user directory service.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/journey/models"
)

const defaultTimeout = 5 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type profileRequest struct {
	UserID  string         `json:"user_id"`
	Persona string         `json:"persona"`
	Fields  map[string]any `json:"fields"`
}

// SyncProfile upserts the user's profile fields. Any non-2xx response is an error.
func (c *Client) SyncProfile(ctx context.Context, userID uuid.UUID, persona models.Persona, fields map[string]any) error {
	body, err := json.Marshal(profileRequest{
		UserID:  userID.String(),
		Persona: string(persona),
		Fields:  fields,
	})
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	url := fmt.Sprintf("%s/users/%s/profile", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("directory responded %d", resp.StatusCode)
	}
	return nil
}
