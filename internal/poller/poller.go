package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/speedwagon-io/skbridge/internal/hub"
	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/skbridge/internal/shutdown"
)

// PollError is a failed read of the shutdown flag. The cycle is treated
// as "flag not set".
type PollError struct {
	Path string
	Err  error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.Path, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

type ValueReader interface {
	GetSelf(ctx context.Context, path string) (*hub.Value, error)
}

type Publisher interface {
	Send(ctx context.Context, path string, value any) error
}

type Trigger interface {
	InitiateShutdown(ctx context.Context, source string) bool
}

type Observer interface {
	Polled(err error)
}

// staleSkew tolerates clock difference between the hub and this host when
// deciding whether a flag value predates the poller.
const staleSkew = 5 * time.Second

// Poller watches the remote shutdown flag. Every interval it polls the flag
// and fires the trigger at most once. Until a reset succeeds it also
// publishes false on the flag path; a set flag stamped before the poller
// started is ignored so that a leftover trigger cannot power off the host
// again after boot.
type Poller struct {
	log       *slog.Logger
	path      string
	interval  time.Duration
	reader    ValueReader
	publisher Publisher
	trigger   Trigger
	observer  Observer
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
	startedAt time.Time
}

func New(
	log *slog.Logger,
	path string,
	interval time.Duration,
	reader ValueReader,
	publisher Publisher,
	trigger Trigger,
	observer Observer,
) *Poller {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Poller{
		log:       log.With(slog.String("component", "poller"), slog.String("path", path)),
		path:      path,
		interval:  interval,
		reader:    reader,
		publisher: publisher,
		trigger:   trigger,
		observer:  observer,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start polls in the background until the flag fires, ctx is cancelled or
// Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.startedAt = time.Now()
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.done)

	p.log.Info("starting command poller", slog.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	reset := false
	for {
		if !reset {
			reset = p.resetFlag(ctx)
		}
		if p.pollOnce(ctx) {
			p.log.Warn("remote shutdown flag set, initiating shutdown")
			p.trigger.InitiateShutdown(ctx, shutdown.SourceRemote)
			return
		}

		select {
		case <-ctx.Done():
			p.log.Info("context cancelled, stopping command poller")
			return
		case <-p.stopCh:
			p.log.Info("stop signal received, stopping command poller")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Poller) resetFlag(ctx context.Context) bool {
	if err := p.publisher.Send(ctx, p.path, false); err != nil {
		p.log.Debug("failed to reset shutdown flag, retrying", sl.Err(err))
		return false
	}
	p.log.Info("shutdown flag reset")
	return true
}

// pollOnce reports whether the flag is set.
func (p *Poller) pollOnce(ctx context.Context) bool {
	set, err := p.read(ctx)
	p.observer.Polled(err)
	if err != nil {
		p.log.Warn("failed to poll shutdown flag", sl.Err(err))
		return false
	}
	return set
}

func (p *Poller) read(ctx context.Context) (bool, error) {
	v, err := p.reader.GetSelf(ctx, p.path)
	if errors.Is(err, hub.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &PollError{Path: p.path, Err: err}
	}
	if !isSet(v.Value) {
		return false, nil
	}
	if p.stale(v.Timestamp) {
		p.log.Info("ignoring shutdown flag set before start", slog.String("timestamp", v.Timestamp))
		return false, nil
	}
	return true, nil
}

// stale reports whether a hub timestamp is older than the poller. A missing
// or unparseable timestamp is not stale.
func (p *Poller) stale(timestamp string) bool {
	if timestamp == "" || p.startedAt.IsZero() {
		return false
	}
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return false
	}
	return ts.Before(p.startedAt.Add(-staleSkew))
}

// isSet reports whether raw is a number equal to 1. Booleans, strings and
// null never count.
func isSet(raw json.RawMessage) bool {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	return n == 1
}

type nopObserver struct{}

func (nopObserver) Polled(error) {}
