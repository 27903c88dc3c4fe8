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

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/health-records/internal/app"
	"github.com/jwalitptl/health-records/internal/config"
	"github.com/jwalitptl/health-records/internal/handler/health"
	promhandler "github.com/jwalitptl/health-records/internal/handler/prometheus"
	"github.com/jwalitptl/health-records/internal/middleware"
	"github.com/jwalitptl/health-records/pkg/logger"
)

func healthServer(a *app.App, addr string, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(log))
	health.NewHandler(a.HealthChecks()).RegisterRoutes(engine)
	engine.GET("/metrics", promhandler.New(a.Registry).Handler())

	srv := &http.Server{Addr: addr, Handler: engine, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg.Log).With("reminder-worker")

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal(err, "failed to initialise backends")
	}
	defer a.Close()

	srv := healthServer(a, cfg.Reminders.HealthAddr, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("worker started", "interval", cfg.Reminders.Interval.String(), "health_addr", cfg.Reminders.HealthAddr)
	a.ReminderWorker().Start(ctx)
	log.Info("shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "health server forced to shutdown")
	}
}
