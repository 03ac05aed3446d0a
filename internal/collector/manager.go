package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/skbridge/internal/stream"
)

// Manager is the publish loop: every interval it reads each sensor in
// order and sends each value. A failing sensor or send never affects the
// others.
type Manager struct {
	log         *slog.Logger
	interval    time.Duration
	readTimeout time.Duration
	readers     []SensorReader
	publisher   Publisher
	observer    Observer
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	done        chan struct{}
}

func NewManager(
	log *slog.Logger,
	interval time.Duration,
	readTimeout time.Duration,
	readers []SensorReader,
	publisher Publisher,
	observer Observer,
) *Manager {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Manager{
		log:         log.With(slog.String("component", "publish")),
		interval:    interval,
		readTimeout: readTimeout,
		readers:     readers,
		publisher:   publisher,
		observer:    observer,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start runs the loop in the background until ctx is cancelled or Stop
// is called. The first cycle runs immediately.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	defer close(m.done)

	m.log.Info("starting publish loop",
		slog.Duration("interval", m.interval),
		slog.Int("metrics", len(m.readers)),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.collectAndSend(ctx)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("context cancelled, stopping publish loop")
			return
		case <-m.stopCh:
			m.log.Info("stop signal received, stopping publish loop")
			return
		case <-ticker.C:
			m.collectAndSend(ctx)
		}
	}
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Manager) collectAndSend(ctx context.Context) {
	start := time.Now()
	for _, r := range m.readers {
		if ctx.Err() != nil {
			return
		}
		m.publishOne(ctx, r)
	}
	m.observer.CycleDuration(time.Since(start))
}

func (m *Manager) publishOne(ctx context.Context, r SensorReader) {
	path := r.Path()
	defer func() {
		if p := recover(); p != nil {
			m.log.Error("metric reader panicked", slog.String("path", path), slog.Any("panic", p))
			m.observer.ReadFailed(path)
		}
	}()

	value, err := m.read(ctx, r)
	if err != nil {
		m.observer.ReadFailed(path)
		if errors.Is(err, ErrUnavailable) {
			m.log.Debug("metric unavailable", slog.String("path", path), slog.String("reader", r.Name()))
			return
		}
		m.log.Error("failed to read metric", slog.String("reader", r.Name()), sl.Err(err))
		return
	}

	if err := m.publisher.Send(ctx, path, value); err != nil {
		reason := "send_error"
		if errors.Is(err, stream.ErrNotConnected) {
			reason = "not_connected"
		}
		m.observer.SampleDropped(path, reason)
		m.log.Warn("sample dropped", slog.String("path", path), slog.String("reason", reason), sl.Err(err))
		return
	}

	m.observer.SampleSent(path)
	m.log.Debug("sample sent", slog.String("path", path), slog.Any("value", value))
}

func (m *Manager) read(ctx context.Context, r SensorReader) (any, error) {
	readCtx := ctx
	if m.readTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, m.readTimeout)
		defer cancel()
	}

	value, err := r.ReadMetric(readCtx)
	if err != nil {
		return nil, &MetricReadError{Path: r.Path(), Err: err}
	}
	switch value.(type) {
	case float64, bool:
		return value, nil
	default:
		return nil, &MetricReadError{Path: r.Path(), Err: fmt.Errorf("unsupported value type %T", value)}
	}
}
