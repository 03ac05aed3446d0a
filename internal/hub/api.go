package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Value is the REST representation of a leaf path.
type Value struct {
	Value     json.RawMessage `json:"value"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// APIClient reads vessels/self paths with the current bearer token.
type APIClient struct {
	log      *slog.Logger
	sessions *SessionManager
	client   *http.Client
}

func NewAPIClient(log *slog.Logger, sessions *SessionManager, timeout time.Duration) *APIClient {
	return &APIClient{
		log:      log.With(slog.String("component", "api")),
		sessions: sessions,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetSelf reads a dotted path. A rejected token triggers one
// re-authentication and one retry.
func (c *APIClient) GetSelf(ctx context.Context, path string) (*Value, error) {
	session := c.sessions.Current()
	if session == nil {
		return nil, errors.New("no session")
	}

	v, err := c.get(ctx, path, session)
	if !errors.Is(err, ErrTokenRejected) {
		return v, err
	}

	session, authErr := c.sessions.Reauthenticate(ctx, session)
	if authErr != nil {
		return nil, fmt.Errorf("%w: %w", err, authErr)
	}
	return c.get(ctx, path, session)
}

func (c *APIClient) Close() {
	c.client.CloseIdleConnections()
}

func (c *APIClient) get(ctx context.Context, path string, session *Session) (*Value, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sessions.Endpoint().SelfURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+session.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var v Value
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &v, nil
}
