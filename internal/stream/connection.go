package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/temoto/alive/v2"

	"github.com/speedwagon-io/skbridge/internal/hub"
	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/skbridge/internal/model"
)

const (
	DefaultWriteTimeout = 5 * time.Second
	readLimit           = 1 << 20
)

type SessionSource interface {
	Current() *hub.Session
	Reauthenticate(ctx context.Context, stale *hub.Session) (*hub.Session, error)
}

type Observer interface {
	ConnectionState(state string)
	ConnectAttempt(err error)
}

type Options struct {
	Label        string
	Backoff      *Backoff
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
	Observer     Observer
}

// Connection is the single websocket to the hub.
//   - Start() returns immediately, dialing happens in background
//   - Unlimited reconnect attempts with Backoff delay until Close()
//   - Send is serialized, one frame in flight
//   - Send while not Open returns ErrNotConnected, nothing is buffered
//   - Inbound frames are drained and discarded
type Connection struct {
	log      *slog.Logger
	endpoint *hub.Endpoint
	sessions SessionSource
	opt      Options
	alive    *alive.Alive

	writeMu sync.Mutex

	// owned by the supervisor goroutine
	reauthFor *hub.Session
	renewed   *hub.Session

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	ready chan struct{}
}

func NewConnection(log *slog.Logger, endpoint *hub.Endpoint, sessions SessionSource, opt Options) *Connection {
	if opt.Backoff == nil {
		opt.Backoff = NewBackoff(MinReconnectDelay, MinReconnectDelay, 1, 0)
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = DefaultWriteTimeout
	}
	if opt.Dialer == nil {
		d := *websocket.DefaultDialer
		opt.Dialer = &d
	}
	if opt.Observer == nil {
		opt.Observer = nopObserver{}
	}
	return &Connection{
		log:      log.With(slog.String("component", "stream")),
		endpoint: endpoint,
		sessions: sessions,
		opt:      opt,
		alive:    alive.NewAlive(),
		state:    Disconnected,
		ready:    make(chan struct{}),
	}
}

// Start launches the supervisor. Cancelling ctx has the same effect as Close.
func (c *Connection) Start(ctx context.Context) {
	if !c.alive.Add(1) {
		return
	}
	go c.supervise()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.alive.StopChan():
		}
	}()
}

// Send writes one envelope carrying path=value.
func (c *Connection) Send(ctx context.Context, path string, value any) error {
	data, err := model.NewEnvelope(c.opt.Label, model.NewSample(path, value)).ToJSON()
	if err != nil {
		return &SendError{Path: path, Err: fmt.Errorf("failed to marshal envelope: %w", err)}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn := c.openConn()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.opt.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warn("stream write failed, dropping connection", slog.String("path", path), sl.Err(err))
		c.drop(conn)
		return &SendError{Path: path, Err: err}
	}
	return nil
}

// WaitReady blocks until the stream is Open, ctx is done or the
// connection is closed.
func (c *Connection) WaitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, ready := c.state, c.ready
		c.mu.Unlock()

		if state == Open {
			return nil
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.alive.StopChan():
			return ErrClosed
		}
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Health(ctx context.Context) error {
	if s := c.State(); s != Open {
		return fmt.Errorf("stream is %s", s)
	}
	return nil
}

func (c *Connection) Close() error {
	// stop first so that a dial completing now cannot install its conn
	c.alive.Stop()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.state != Disconnected {
		c.setStateLocked(Closing)
	}
	c.mu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	}

	c.alive.Wait()

	c.mu.Lock()
	c.setStateLocked(Disconnected)
	c.mu.Unlock()
	return err
}

func (c *Connection) supervise() {
	defer c.alive.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	attempt := 0
	for c.alive.IsRunning() {
		conn, err := c.dial(ctx)
		c.opt.Observer.ConnectAttempt(err)
		if err != nil {
			if c.alive.IsRunning() {
				c.log.Warn("stream connect failed", slog.Int("attempt", attempt+1), sl.Err(err))
			}
			attempt++
		} else {
			attempt = 0
			c.log.Info("stream connection opened", slog.String("host", c.endpoint.Host()))
			c.readLoop(conn)
		}

		delay := c.opt.Backoff.NextDelay(attempt)
		select {
		case <-c.alive.StopChan():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	session := c.sessions.Current()
	if session == nil {
		return nil, &ConnectionError{Host: c.endpoint.Host(), Err: fmt.Errorf("no session")}
	}

	c.setState(Connecting)

	conn, resp, err := c.opt.Dialer.DialContext(ctx, c.endpoint.StreamURL(session.Token), nil)
	if err != nil {
		c.setState(Disconnected)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		if hub.IsRejected(status) {
			c.reauthenticate(ctx, session)
		}
		return nil, &ConnectionError{Host: c.endpoint.Host(), StatusCode: status, Err: err}
	}
	conn.SetReadLimit(readLimit)
	c.reauthFor, c.renewed = nil, nil

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive.IsRunning() {
		conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	c.setStateLocked(Open)
	return conn, nil
}

// reauthenticate renews a rejected session at most once per token. A token
// that was itself obtained here and gets rejected again is not renewed
// until a handshake succeeds.
func (c *Connection) reauthenticate(ctx context.Context, rejected *hub.Session) {
	if rejected == c.reauthFor || rejected == c.renewed {
		c.log.Warn("token rejected again, not re-authenticating")
		return
	}
	c.reauthFor = rejected

	s, err := c.sessions.Reauthenticate(ctx, rejected)
	if err != nil {
		c.log.Error("re-authentication failed", sl.Err(err))
		return
	}
	c.renewed = s
}

func (c *Connection) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if c.alive.IsRunning() {
				c.log.Warn("stream connection closed", sl.Err(err))
			}
			c.drop(conn)
			return
		}
	}
}

func (c *Connection) openConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open {
		return nil
	}
	return c.conn
}

// drop closes conn and marks the stream Disconnected if conn is still current.
func (c *Connection) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.state == Open {
			c.setStateLocked(Disconnected)
		}
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s)
}

func (c *Connection) setStateLocked(s State) {
	prev := c.state
	if prev == s {
		return
	}
	c.state = s
	switch {
	case s == Open:
		close(c.ready)
	case prev == Open:
		c.ready = make(chan struct{})
	}
	c.opt.Observer.ConnectionState(s.String())
	c.log.Debug("stream state", slog.String("from", prev.String()), slog.String("to", s.String()))
}

type nopObserver struct{}

func (nopObserver) ConnectionState(string) {}
func (nopObserver) ConnectAttempt(error)   {}
