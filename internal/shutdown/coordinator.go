package shutdown

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Request is one call to InitiateShutdown.
type Request struct {
	Source      string
	RequestedAt time.Time
	Executed    bool
	Err         error
}

type Recorder interface {
	Record(ctx context.Context, req Request) error
}

type Observer interface {
	ShutdownRequested(source string, executed bool)
}

// Coordinator latches the first shutdown request and runs the executor
// exactly once, no matter how many sources ask.
type Coordinator struct {
	log       *slog.Logger
	executor  Executor
	recorder  Recorder
	observer  Observer
	triggered atomic.Bool
}

func NewCoordinator(log *slog.Logger, executor Executor, recorder Recorder, observer Observer) *Coordinator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Coordinator{
		log:      log.With(slog.String("component", "shutdown")),
		executor: executor,
		recorder: recorder,
		observer: observer,
	}
}

// InitiateShutdown reports whether this call ran the executor.
func (c *Coordinator) InitiateShutdown(ctx context.Context, source string) bool {
	req := Request{Source: source, RequestedAt: time.Now().UTC()}

	if !c.triggered.CompareAndSwap(false, true) {
		c.log.Info("shutdown already triggered, ignoring request", slog.String("source", source))
		c.finish(ctx, req)
		return false
	}

	c.log.Warn("initiating host shutdown", slog.String("source", source))
	req.Executed = true
	if err := c.executor.Execute(ctx); err != nil {
		c.log.Error("failed to execute shutdown", slog.String("source", source), sl.Err(err))
		req.Err = err
	}
	c.finish(ctx, req)
	return true
}

func (c *Coordinator) Triggered() bool {
	return c.triggered.Load()
}

func (c *Coordinator) finish(ctx context.Context, req Request) {
	c.observer.ShutdownRequested(req.Source, req.Executed)
	if c.recorder == nil {
		return
	}
	// the request context may already be gone, the record should still land
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.recorder.Record(recCtx, req); err != nil {
		c.log.Error("failed to record shutdown request", sl.Err(err))
	}
}

type nopObserver struct{}

func (nopObserver) ShutdownRequested(string, bool) {}
