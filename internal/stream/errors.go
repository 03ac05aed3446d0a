package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when the stream is not open.
	// The sample is dropped; nothing is queued.
	ErrNotConnected = errors.New("stream not connected")
	ErrClosed       = errors.New("stream closed")
)

// ConnectionError describes a failed dial or handshake.
type ConnectionError struct {
	Host       string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream connect to %s failed: status %d: %v", e.Host, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stream connect to %s failed: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SendError is a write failure on an open stream. The connection is
// dropped and the supervisor reconnects.
type SendError struct {
	Path string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.Path, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
