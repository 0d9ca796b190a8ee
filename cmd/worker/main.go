package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classroll/internal/app"
	"classroll/internal/config"
	"classroll/internal/telemetry"
)

// Worker expires overdue sessions on a timer and consumes domain events.
func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Service:      "classroll-worker",
		LogFormat:    cfg.LogFormat,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Fatalf("telemetry setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	rt, err := app.Open(ctx, cfg, false)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer rt.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		app.RunSweeper(ctx, rt.Service, cfg.SweepInterval)
	}()
	go func() {
		defer wg.Done()
		if err := app.ConsumeEvents(ctx, rt.Queue); err != nil {
			log.Printf("event consumer stopped: %v", err)
		}
	}()

	log.Printf("worker started (sweep every %s, queue=%s)", cfg.SweepInterval, cfg.QueueBackend)
	<-ctx.Done()
	log.Println("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()
	log.Println("worker stopped")
}
