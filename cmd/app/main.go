package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"

	"crypto_terminal/internal/app"
	"crypto_terminal/internal/infra"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		bootstrap.Shutdown(context.Background())
		os.Exit(1)
	}

	// 3. Continuous profiling (optional)
	if stopProfiler := startProfiler(bootstrap.Config); stopProfiler != nil {
		defer stopProfiler()
	}

	// 4. Sequencer, feed and API
	if err := bootstrap.Start(ctx); err != nil {
		slog.Error("❌ Startup failed", slog.Any("error", err))
		bootstrap.Shutdown(context.Background())
		os.Exit(1)
	}

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	bootstrap.Shutdown(shutdownCtx)
}

// startProfiler starts pyroscope when enabled and returns its stop function.
func startProfiler(cfg *infra.Config) func() {
	if !cfg.Profiling.Enabled {
		return nil
	}
	name := cfg.App.Name
	if name == "" {
		name = "crypto-terminal"
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.Profiling.ServerAddress,
		Tags: map[string]string{
			"version": cfg.App.Version,
		},
		Logger: slogProfilerLogger{slog.Default().With("module", "pyroscope")},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		slog.Warn("Pyroscope start failed, continuing without profiling", slog.Any("error", err))
		return nil
	}
	slog.Info("🕵️ Continuous profiling enabled", slog.String("server", cfg.Profiling.ServerAddress))
	return func() { _ = profiler.Stop() }
}

// slogProfilerLogger adapts slog to pyroscope's printf-style logger.
type slogProfilerLogger struct {
	l *slog.Logger
}

func (p slogProfilerLogger) Infof(format string, args ...interface{}) {
	p.l.Info(fmt.Sprintf(format, args...))
}

func (p slogProfilerLogger) Debugf(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p slogProfilerLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}
