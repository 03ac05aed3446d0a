package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		address string
		login   string
		stream  string
		self    string
	}{
		{
			"localhost:3000",
			"http://localhost:3000/signalk/v1/auth/login",
			"ws://localhost:3000/signalk/v1/stream?subscribe=none&token=t",
			"http://localhost:3000/signalk/v1/api/vessels/self/environment/rpi/shutdown",
		},
		{
			"http://boat.local:3000/",
			"http://boat.local:3000/signalk/v1/auth/login",
			"ws://boat.local:3000/signalk/v1/stream?subscribe=none&token=t",
			"http://boat.local:3000/signalk/v1/api/vessels/self/environment/rpi/shutdown",
		},
		{
			"https://hub.example.com",
			"https://hub.example.com/signalk/v1/auth/login",
			"wss://hub.example.com/signalk/v1/stream?subscribe=none&token=t",
			"https://hub.example.com/signalk/v1/api/vessels/self/environment/rpi/shutdown",
		},
	}
	for _, c := range cases {
		t.Run(c.address, func(t *testing.T) {
			e, err := ParseEndpoint(c.address, "/signalk/v1")
			require.NoError(t, err)
			assert.Equal(t, c.login, e.LoginURL())
			assert.Equal(t, c.stream, e.StreamURL("t"))
			assert.Equal(t, c.self, e.SelfURL("environment.rpi.shutdown"))
		})
	}

	_, err := ParseEndpoint("", "/signalk/v1")
	assert.Error(t, err)
	_, err = ParseEndpoint("ftp://x", "/signalk/v1")
	assert.Error(t, err)
}

type fakeHub struct {
	logins    atomic.Int32
	gets      atomic.Int32
	loginCode atomic.Int32
	valueCode atomic.Int32
	value     atomic.Value
	validTok  atomic.Value
	token     func(n int32) string
}

func newFakeHub(t testing.TB, opts ...func(*fakeHub)) (*fakeHub, *httptest.Server) {
	h := &fakeHub{
		token: func(n int32) string { return fmt.Sprintf("tok%d", n) },
	}
	h.loginCode.Store(http.StatusOK)
	h.valueCode.Store(http.StatusOK)
	h.value.Store(`{"value":0}`)
	for _, opt := range opts {
		opt(h)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/signalk/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		n := h.logins.Add(1)
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pi", req.Username)
		assert.Equal(t, "secret", req.Password)
		if code := int(h.loginCode.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		tok := h.token(n)
		h.validTok.Store(tok)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": tok})
	})
	mux.HandleFunc("/signalk/v1/api/vessels/self/environment/rpi/shutdown", func(w http.ResponseWriter, r *http.Request) {
		h.gets.Add(1)
		valid, _ := h.validTok.Load().(string)
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(int(h.valueCode.Load()))
		_, _ = w.Write([]byte(h.value.Load().(string)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

func newManager(t testing.TB, url string) *SessionManager {
	e, err := ParseEndpoint(url, "/signalk/v1")
	require.NoError(t, err)
	return NewSessionManager(sl.Discard(), e, Credentials{Username: "pi", Password: "secret"}, 2*time.Second)
}

func TestAuthenticate(t *testing.T) {
	_, srv := newFakeHub(t)
	m := newManager(t, srv.URL)

	s, err := m.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", s.Token)
	assert.False(t, s.IssuedAt.IsZero())
	assert.Same(t, s, m.Current())
}

func TestAuthenticateUnauthorized(t *testing.T) {
	h, srv := newFakeHub(t)
	h.loginCode.Store(http.StatusUnauthorized)
	m := newManager(t, srv.URL)

	_, err := m.Authenticate(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Nil(t, m.Current())
}

func TestAuthenticateMissingToken(t *testing.T) {
	_, srv := newFakeHub(t, func(h *fakeHub) {
		h.token = func(int32) string { return "" }
	})
	m := newManager(t, srv.URL)

	_, err := m.Authenticate(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "no token")
}

func TestAuthenticateNetworkFailure(t *testing.T) {
	_, srv := newFakeHub(t)
	url := srv.URL
	srv.Close()
	m := newManager(t, url)

	_, err := m.Authenticate(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, authErr.StatusCode)
}

func TestReauthenticateSharesOneLogin(t *testing.T) {
	h, srv := newFakeHub(t)
	m := newManager(t, srv.URL)
	stale, err := m.Authenticate(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Session, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Reauthenticate(context.Background(), stale)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(2), h.logins.Load())
	for _, s := range results {
		assert.Equal(t, "tok2", s.Token)
	}
}

func TestGetSelf(t *testing.T) {
	h, srv := newFakeHub(t)
	h.value.Store(`{"value":1,"timestamp":"2024-05-01T10:00:00Z"}`)
	m := newManager(t, srv.URL)
	_, err := m.Authenticate(context.Background())
	require.NoError(t, err)

	c := NewAPIClient(sl.Discard(), m, time.Second)
	v, err := c.GetSelf(context.Background(), "environment.rpi.shutdown")
	require.NoError(t, err)
	assert.JSONEq(t, "1", string(v.Value))
}

func TestGetSelfReauthenticatesOnce(t *testing.T) {
	h, srv := newFakeHub(t)
	m := newManager(t, srv.URL)
	_, err := m.Authenticate(context.Background())
	require.NoError(t, err)
	h.validTok.Store("rotated-on-server")

	c := NewAPIClient(sl.Discard(), m, time.Second)
	_, err = c.GetSelf(context.Background(), "environment.rpi.shutdown")
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.logins.Load())
	assert.Equal(t, int32(2), h.gets.Load())
}

func TestGetSelfStatusErrors(t *testing.T) {
	h, srv := newFakeHub(t)
	h.valueCode.Store(http.StatusNotFound)
	m := newManager(t, srv.URL)
	_, err := m.Authenticate(context.Background())
	require.NoError(t, err)

	c := NewAPIClient(sl.Discard(), m, time.Second)
	_, err = c.GetSelf(context.Background(), "environment.rpi.shutdown")
	assert.True(t, errors.Is(err, ErrNotFound))

	h.valueCode.Store(http.StatusOK)
	h.value.Store(`not json`)
	_, err = c.GetSelf(context.Background(), "environment.rpi.shutdown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}
