package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"glazestudio/internal/app"
	"glazestudio/internal/config"
	"glazestudio/internal/database"
	"glazestudio/internal/pkg/logger"
	"glazestudio/internal/repository"
	"glazestudio/internal/slotapi"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	l, err := logger.New(cfg.Log.Level, cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	if err := run(cfg, l); err != nil {
		l.Fatal("glaze web stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Ledger.DSN, l)
	if err != nil {
		return err
	}
	ledger := repository.NewCreationLedger(db)
	if err := ledger.Migrate(); err != nil {
		return err
	}

	client, err := slotapi.New(cfg.Backend.Origin, slotapi.WithLogger(l.Named("slotapi")))
	if err != nil {
		return err
	}

	a, err := app.New(cfg, client, ledger, l)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("glaze web listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("backend", cfg.Backend.Origin),
			zap.String("push", a.Channel.URL()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		l.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
