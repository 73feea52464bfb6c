package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"nfewatch/internal/config"
	"nfewatch/internal/daemon"
	"nfewatch/internal/ipc"
	"nfewatch/internal/journal"
	"nfewatch/internal/logging"
	"nfewatch/internal/monitor"
	"nfewatch/internal/notifications"
	"nfewatch/internal/preflight"
	"nfewatch/internal/recordstore"
	"nfewatch/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the nfewatch daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, logPath, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RunLogTarget(cfg.Paths.LogDir, logPath))

	pidPath := filepath.Join(cfg.Paths.StateDir, "nfewatch.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := recordstore.New(cfg.Store.BaseURL,
		recordstore.WithAPIKey(cfg.Store.APIKey),
		recordstore.WithTimeout(cfg.StoreTimeout()),
	)
	if err != nil {
		return fmt.Errorf("create record store client: %w", err)
	}

	var outcomes *journal.Store
	if cfg.Journal.Enabled {
		outcomes, err = journal.Open(cfg)
		if err != nil {
			logger.Error("open outcome journal", logging.Error(err))
			return err
		}
	}

	logPreflight(signalCtx, logger, cfg)

	notifier := notifications.NewService(cfg)
	execOpts := []workflow.ExecutorOption{workflow.WithNotifier(notifier)}
	if outcomes != nil {
		execOpts = append(execOpts, workflow.WithRecorder(outcomes))
	}
	executor := workflow.NewExecutor(cfg, store, logger, execOpts...)
	scheduler := monitor.New(cfg, store, executor, logger)

	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Store:     store,
		Executor:  executor,
		Scheduler: scheduler,
		Journal:   outcomes,
		Notifier:  notifier,
		LogPath:   logPath,
	})
	if err != nil {
		if outcomes != nil {
			_ = outcomes.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		d.Shutdown(context.Background())
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("nfewatch daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("api_address", d.APIAddress()),
		logging.String("socket_path", cfg.SocketPath()),
		logging.String("log_path", logPath),
	)

	<-signalCtx.Done()
	logger.Info("nfewatch daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	remaining := d.Shutdown(context.Background())
	if remaining > 0 {
		logger.Warn("shutdown finished with tasks still running",
			logging.Int("running_tasks", remaining),
			logging.String(logging.FieldEventType, "shutdown_incomplete"),
		)
	}
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "monitor will retry on each tick"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
