// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on jroosing-HydraDNS/cmd/hydradns/main.go's
// flag-parse -> config-load -> logger-configure -> signal.NotifyContext
// -> run -> bounded-shutdown shape.
//

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Lainera/ormos"
	"github.com/Lainera/ormos/config"
	"github.com/Lainera/ormos/proxy"
)

func main() {
	os.Exit(run())
}

// exit codes, per §6.
const (
	exitOK          = 0
	exitRuntimeErr  = 1
	exitConfigError = 2
)

func run() int {
	var configPath string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "path to the YAML configuration file (required)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "ormos: -config is required")
		return exitConfigError
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ormos: %v\n", err)
		return exitConfigError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slogger := ormos.NewSLogger(logger)

	cfg := ormos.NewConfig()
	listeners, err := config.Load(configPath, cfg, slogger)
	if err != nil {
		logger.Error("configLoadFailed", slog.Any("err", err))
		return exitConfigError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("ormosStarting", slog.Int("listeners", len(listeners)))

	if err := serve(ctx, cfg, listeners, slogger); err != nil {
		logger.Error("ormosRuntimeError", slog.Any("err", err))
		return exitRuntimeErr
	}
	return exitOK
}

// serve builds one [*proxy.Listener] per configured [config.ListenerConfig]
// and runs all of them until ctx is done.
func serve(ctx context.Context, cfg *ormos.Config, listeners []config.ListenerConfig, logger ormos.SLogger) error {
	dial := ormos.Compose3(
		ormos.NewConnectFunc(cfg, "tcp", logger),
		ormos.NewObserveConnFunc(cfg, logger),
		ormos.NewCancelWatchFunc(),
	)
	splicer := proxy.NewSplicer(cfg, logger)

	var wg sync.WaitGroup
	errs := make(chan error, len(listeners))
	for _, lc := range listeners {
		l := proxy.NewListener(lc.Address, lc.Registry, lc.Pipeline, dial, splicer, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Serve(ctx); err != nil {
				errs <- fmt.Errorf("listener %s: %w", lc.Address, err)
			}
		}()
	}

	wg.Wait()
	close(errs)

	var combined error
	for err := range errs {
		combined = errors.Join(combined, err)
	}
	return combined
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
