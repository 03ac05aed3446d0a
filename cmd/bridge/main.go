package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/speedwagon-io/skbridge/internal/audit"
	"github.com/speedwagon-io/skbridge/internal/collector"
	"github.com/speedwagon-io/skbridge/internal/collector/adapters"
	"github.com/speedwagon-io/skbridge/internal/config"
	"github.com/speedwagon-io/skbridge/internal/control"
	"github.com/speedwagon-io/skbridge/internal/hub"
	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/skbridge/internal/metrics"
	"github.com/speedwagon-io/skbridge/internal/poller"
	"github.com/speedwagon-io/skbridge/internal/sender"
	"github.com/speedwagon-io/skbridge/internal/shutdown"
	"github.com/speedwagon-io/skbridge/internal/stream"
)

const stopTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (.yaml, .toml, .env or legacy .properties)")
	dryRun := pflag.Bool("dry-run", false, "log samples instead of streaming them and never power off the host")
	pflag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format, sl.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	log.Info("starting signal k bridge",
		slog.String("env", cfg.Env),
		slog.String("hub", cfg.Hub.URL),
		slog.Bool("dry_run", *dryRun),
	)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	err := run(ctx, log, cfg, options{DryRun: *dryRun, Notify: sdnotify(log)})
	cancel()
	if err != nil {
		log.Error("bridge failed", sl.Err(err))
		os.Exit(1)
	}

	log.Info("bridge stopped")
}

type options struct {
	DryRun bool
	// Readers defaults to the host sensors.
	Readers []collector.SensorReader
	// Executor defaults to the configured host command, or a logging
	// no-op in dry-run.
	Executor shutdown.Executor
	Notify   func(state string)
	// Started, if set, is closed once every component is running.
	Started chan<- struct{}
}

// run wires the bridge and blocks until ctx is cancelled. It only fails
// when startup fails, authentication at boot included.
func run(ctx context.Context, log *slog.Logger, cfg *config.Config, opts options) error {
	if opts.Notify == nil {
		opts.Notify = func(string) {}
	}
	if opts.Readers == nil {
		opts.Readers = adapters.Default(cfg.Publish)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	obs := metrics.New(reg)

	var (
		journal  *audit.Journal
		recorder shutdown.Recorder
	)
	if cfg.Audit.Enabled {
		var err error
		journal, err = audit.Open(log, cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("failed to open audit journal: %w", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				log.Error("failed to close audit journal", sl.Err(err))
			}
		}()
		if err := journal.Cleanup(ctx, cfg.Audit.MaxAge); err != nil {
			log.Warn("failed to clean up audit journal", sl.Err(err))
		}
		recorder = journal
		log.Info("audit journal enabled", slog.String("path", cfg.Audit.Path))
	}

	executor := opts.Executor
	if executor == nil {
		if opts.DryRun {
			executor = shutdown.NewDryRunExecutor(log)
		} else {
			executor = shutdown.NewCommandExecutor(log, cfg.Shutdown.Command)
		}
	}
	coordinator := shutdown.NewCoordinator(log, executor, recorder, obs)

	var (
		publisher  collector.Publisher
		streamConn *stream.Connection
		api        *hub.APIClient
		healthFunc func(ctx context.Context) error
	)
	if opts.DryRun {
		logSender := sender.NewLogSender(log, cfg.Hub.ClientName)
		publisher, healthFunc = logSender, logSender.Health
		log.Info("dry-run mode: samples will be logged instead of sent")
	} else {
		endpoint, err := hub.ParseEndpoint(cfg.Hub.URL, cfg.Hub.BasePath)
		if err != nil {
			return fmt.Errorf("failed to parse hub address: %w", err)
		}

		sessions := hub.NewSessionManager(log, endpoint, hub.Credentials{
			Username: cfg.Hub.Username,
			Password: cfg.Hub.Password,
		}, cfg.Hub.Timeout)

		if _, err := sessions.Authenticate(ctx); err != nil {
			return err
		}

		backoff := stream.NewBackoff(
			cfg.Stream.ReconnectDelay,
			cfg.Stream.ReconnectMaxDelay,
			cfg.Stream.ReconnectMultiplier,
			cfg.Stream.ReconnectJitter,
		)
		streamConn = stream.NewConnection(log, endpoint, sessions, stream.Options{
			Label:        cfg.Hub.ClientName,
			Backoff:      backoff,
			WriteTimeout: cfg.Stream.WriteTimeout,
			Observer:     obs,
		})
		streamConn.Start(ctx)
		defer func() {
			if err := streamConn.Close(); err != nil {
				log.Warn("failed to close stream", sl.Err(err))
			}
		}()

		readyCtx, readyCancel := context.WithTimeout(ctx, cfg.Stream.ReadyTimeout)
		if err := streamConn.WaitReady(readyCtx); err != nil {
			log.Warn("stream not open yet, continuing", sl.Err(err))
		}
		readyCancel()

		api = hub.NewAPIClient(log, sessions, cfg.Hub.Timeout)
		defer api.Close()

		publisher, healthFunc = streamConn, streamConn.Health
	}

	server := control.NewServer(log, cfg.Control.Address, coordinator, reg)
	server.AddChecker(control.NewStreamHealthChecker(healthFunc))
	if journal != nil {
		server.AddChecker(control.NewAuditHealthChecker(journal.Health))
		server.SetJournal(journal)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		if err := server.Stop(stopCtx); err != nil {
			log.Error("failed to stop control server", sl.Err(err))
		}
	}()

	manager := collector.NewManager(log, cfg.Publish.Interval, cfg.Publish.ReadTimeout, opts.Readers, publisher, obs)
	manager.Start(ctx)
	defer manager.Stop()

	if api != nil && cfg.Poller.Enabled {
		p := poller.New(log, cfg.Poller.ShutdownPath, cfg.Poller.Interval, api, publisher, coordinator, obs)
		p.Start(ctx)
		defer p.Stop()
	}

	opts.Notify(daemon.SdNotifyReady)
	if opts.Started != nil {
		close(opts.Started)
	}
	log.Info("bridge running", slog.String("control", server.Addr()))

	<-ctx.Done()
	opts.Notify(daemon.SdNotifyStopping)
	return nil
}

func sdnotify(log *slog.Logger) func(string) {
	return func(s string) {
		ok, err := daemon.SdNotify(false, s)
		if err != nil {
			log.Warn("sd_notify failed", slog.String("state", s), sl.Err(err))
			return
		}
		if ok {
			log.Debug("sd_notify", slog.String("state", s))
		}
	}
}
