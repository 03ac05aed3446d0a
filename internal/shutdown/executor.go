package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
)

// Executor runs the host power-off. Execute returns once the command has
// been started; its exit status is only logged.
type Executor interface {
	Execute(ctx context.Context) error
}

type CommandExecutor struct {
	log  *slog.Logger
	argv []string
}

func NewCommandExecutor(log *slog.Logger, argv []string) *CommandExecutor {
	return &CommandExecutor{
		log:  log.With(slog.String("component", "executor")),
		argv: argv,
	}
}

func (e *CommandExecutor) Execute(ctx context.Context) error {
	if len(e.argv) == 0 {
		return errors.New("empty shutdown command")
	}

	// not bound to ctx, the command must outlive the process shutdown
	cmd := exec.Command(e.argv[0], e.argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.argv[0], err)
	}
	e.log.Info("shutdown command started", slog.Any("argv", e.argv), slog.Int("pid", cmd.Process.Pid))

	go func() {
		if err := cmd.Wait(); err != nil {
			e.log.Error("shutdown command failed", sl.Err(err))
			return
		}
		e.log.Info("shutdown command exited")
	}()
	return nil
}

// DryRunExecutor logs instead of powering off the host.
type DryRunExecutor struct {
	log *slog.Logger
}

func NewDryRunExecutor(log *slog.Logger) *DryRunExecutor {
	return &DryRunExecutor{log: log.With(slog.String("component", "executor"))}
}

func (e *DryRunExecutor) Execute(ctx context.Context) error {
	e.log.Warn("[DRY RUN] host shutdown requested, not executing")
	return nil
}
