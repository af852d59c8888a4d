// Command c3p0stat opens c3p0 pools described by a TOML file and serves their statistics over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/oss-evaluation-repository/swaldman-c3p0/log/zerologadapter"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "c3p0stat.toml", "path to configuration file")
	listen := pflag.String("listen", "", "listen address (overrides config)")
	logLevel := pflag.String("log-level", "", "trace, debug, info, warn, error or none (overrides config)")
	drain := pflag.Bool("drain", true, "wait for checked-out connections on shutdown")
	pflag.Parse()

	if err := run(*configPath, *listen, *logLevel, *drain); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, listen, logLevel string, drain bool) error {
	fc, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		fc.Listen = listen
	}
	if logLevel != "" {
		fc.LogLevel = logLevel
	}

	level, err := tracelog.LogLevelFromString(fc.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()

	provider, err := fc.provider()
	if err != nil {
		return err
	}
	config, err := fc.managerConfig(provider)
	if err != nil {
		return err
	}
	config.Logger = zerologadapter.NewLogger(zl)
	config.LogLevel = level

	m, err := c3p0.NewManager(config)
	if err != nil {
		return err
	}
	defer m.Close(drain)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := fc.credentials()
	if _, err := m.DefaultPool(ctx); err != nil {
		return fmt.Errorf("opening default pool: %w", err)
	}
	for _, cred := range creds {
		if _, err := m.Pool(ctx, cred); err != nil {
			return fmt.Errorf("opening pool for %s: %w", cred, err)
		}
	}

	handler, err := newRouter(m, creds, zl)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: fc.Listen, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		zl.Info().Str("listen", fc.Listen).Msg("serving pool statistics")
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
