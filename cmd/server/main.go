package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/tripthesia-aggregator/internal/app"
	"github.com/example/tripthesia-aggregator/internal/config"
	"github.com/example/tripthesia-aggregator/internal/obs"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $TRIP_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	ctx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// wire every component from config
	appConfig, err := app.SetAppConfig(cfg, logger)
	if err != nil {
		logger.Error("wire application", slog.Any("error", err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: appConfig.Router,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("initiating graceful shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		// hijacked websocket connections are not tracked by Shutdown
		appConfig.Hub.Close()
		// Cancel root context so ALL goroutines & requests stop
		rootCancel()
		close(idleConnsClosed)
	}()

	logger.Info("starting server", slog.String("addr", cfg.Server.Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
	<-idleConnsClosed
	logger.Info("server stopped")
}
