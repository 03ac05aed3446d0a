package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
)

type Credentials struct {
	Username string
	Password string
}

// Session is an opaque bearer token. The token is forwarded as-is and
// never parsed.
type Session struct {
	Token    string
	IssuedAt time.Time
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// SessionManager exchanges credentials for a token and owns the current
// session. Logins are serialized so concurrent re-authentication requests
// for the same stale token result in one login.
type SessionManager struct {
	log      *slog.Logger
	endpoint *Endpoint
	creds    Credentials
	client   *http.Client

	mu      sync.Mutex
	current *Session
}

func NewSessionManager(log *slog.Logger, endpoint *Endpoint, creds Credentials, timeout time.Duration) *SessionManager {
	return &SessionManager{
		log:      log.With(slog.String("component", "session")),
		endpoint: endpoint,
		creds:    creds,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Authenticate performs a login and replaces the current session.
// Any failure is an *AuthError.
func (m *SessionManager) Authenticate(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.login(ctx)
}

// Reauthenticate is called after the hub rejected stale. If another caller
// already replaced stale, the newer session is returned without a login.
func (m *SessionManager) Reauthenticate(ctx context.Context, stale *Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current != stale {
		return m.current, nil
	}

	m.log.Info("token rejected by hub, re-authenticating")
	return m.login(ctx)
}

func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *SessionManager) Endpoint() *Endpoint {
	return m.endpoint
}

func (m *SessionManager) login(ctx context.Context) (*Session, error) {
	body, err := json.Marshal(loginRequest{
		Username: m.creds.Username,
		Password: m.creds.Password,
	})
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("failed to marshal login request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint.LoginURL(), bytes.NewReader(body))
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Error("login request failed", sl.Err(err))
		return nil, &AuthError{Err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		m.log.Error("login rejected", slog.Int("status", resp.StatusCode))
		return nil, &AuthError{
			StatusCode: resp.StatusCode,
			Err:        &StatusError{StatusCode: resp.StatusCode, Body: string(raw)},
		}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode login response: %w", err)}
	}
	if lr.Token == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode, Err: errors.New("login response has no token")}
	}

	m.current = &Session{Token: lr.Token, IssuedAt: time.Now()}
	m.log.Info("authenticated with hub", slog.String("host", m.endpoint.Host()))
	return m.current, nil
}
