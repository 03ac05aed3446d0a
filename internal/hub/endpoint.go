package hub

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint resolves hub URLs from a configured address. The address may be
// a bare host:port or a full http(s) URL.
type Endpoint struct {
	scheme string
	host   string
	prefix string
}

func ParseEndpoint(address, basePath string) (*Endpoint, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("hub address is empty")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}

	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hub address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("hub address %q has no host", address)
	}

	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("unsupported hub scheme %q", u.Scheme)
	}

	prefix := strings.TrimRight(u.Path, "/") + "/" + strings.Trim(basePath, "/")
	return &Endpoint{
		scheme: u.Scheme,
		host:   u.Host,
		prefix: strings.TrimRight(prefix, "/"),
	}, nil
}

func (e *Endpoint) LoginURL() string {
	return e.httpURL("/auth/login")
}

// StreamURL is the websocket URL. subscribe=none tells the hub not to push
// deltas to this client; it only writes.
func (e *Endpoint) StreamURL(token string) string {
	scheme := "ws"
	if e.scheme == "https" {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("subscribe", "none")
	q.Set("token", token)
	u := url.URL{Scheme: scheme, Host: e.host, Path: e.prefix + "/stream", RawQuery: q.Encode()}
	return u.String()
}

// SelfURL maps a dotted path to the REST location under vessels/self.
func (e *Endpoint) SelfURL(path string) string {
	return e.httpURL("/api/vessels/self/" + strings.ReplaceAll(path, ".", "/"))
}

func (e *Endpoint) Host() string {
	return e.host
}

func (e *Endpoint) httpURL(suffix string) string {
	u := url.URL{Scheme: e.scheme, Host: e.host, Path: e.prefix + suffix}
	return u.String()
}
