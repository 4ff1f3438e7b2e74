package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"durable-lists/internal/api"
	"durable-lists/internal/config"
	"durable-lists/internal/logging"
	"durable-lists/internal/otel"
	"durable-lists/internal/stores"
)

func main() {
	path := flag.String("config", "", "path to TOML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logging.Setup(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := otel.Setup(ctx, "durable-lists", cfg.OTEL)
	if err != nil {
		return err
	}

	engines, err := stores.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer engines.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(engines.Quests, engines.Flights),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("durable-lists listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := time.Duration(cfg.ShutdownTimeout) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		slog.Info("shutting down", slog.Duration("timeout", timeout))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return shutdownTracing(shutdownCtx)
	})
	return g.Wait()
}
