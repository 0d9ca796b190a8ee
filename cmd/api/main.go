package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/app"
	"classroll/internal/auth"
	"classroll/internal/cloudinary"
	"classroll/internal/config"
	"classroll/internal/httpapi"
	"classroll/internal/httpmiddleware"
	"classroll/internal/qr"
	"classroll/internal/telemetry"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Service:      "classroll-api",
		LogFormat:    cfg.LogFormat,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	rt, err := app.Open(ctx, cfg, cfg.AutoMigrate)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.InProcessEvents() {
		go func() {
			if err := app.ConsumeEvents(ctx, rt.Queue); err != nil {
				log.Printf("event consumer stopped: %v", err)
			}
		}()
		go app.RunSweeper(ctx, rt.Service, cfg.SweepInterval)
	}

	var uploader httpapi.QRUploader
	if cfg.CloudinaryConfigured() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured, hosted QR images disabled")
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if rt.Redis != nil {
		limiter = httpmiddleware.NewRedisWindow(rt.Redis.Client, cfg.RateLimitPerMin)
	}

	checks := map[string]httpapi.HealthCheck{}
	if rt.DB != nil {
		checks["db"] = rt.DB.Healthy
	}
	if rt.Redis != nil {
		checks["redis"] = rt.Redis.Healthy
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Service:     rt.Service,
		Issuer:      auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Limiter:     limiter,
		QR:          qr.NewPNG(),
		QRSize:      cfg.QRSize,
		Uploader:    uploader,
		CORSOrigins: cfg.CORSOrigins,
		Checks:      checks,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      tel.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s (store=%s, queue=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
