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

	"laundry-go-app/backend/internal/app"
	"laundry-go-app/backend/internal/bootstrap"
	"laundry-go-app/backend/internal/infra/logger"
	"laundry-go-app/backend/internal/infra/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := logger.Init(); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	appLog := logger.S().With("component", "main")

	metrics.MustRegister()

	resources, err := app.Bootstrap(ctx)
	if err != nil {
		appLog.Fatalw("bootstrap failed", "error", err)
	}
	defer func() {
		if err := resources.Close(); err != nil {
			appLog.Warnw("resource cleanup error", "error", err)
		}
	}()

	application, err := bootstrap.BuildApplication(ctx, appLog, resources)
	if err != nil {
		appLog.Fatalw("build application failed", "error", err)
	}

	srv := &http.Server{
		Addr:              ":" + resources.Config.Server.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Infow("http server listening",
			"addr", srv.Addr,
			"db_path", resources.Config.Storage.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatalw("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	appLog.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warnw("graceful shutdown failed", "error", err)
	}
}
