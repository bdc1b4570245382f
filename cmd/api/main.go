package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ndtdesk/api/internal/app"
	"ndtdesk/api/internal/blob"
	"ndtdesk/api/internal/cache"
	"ndtdesk/api/internal/config"
	"ndtdesk/api/internal/email"
	"ndtdesk/api/internal/notify"
	"ndtdesk/api/internal/push"
	"ndtdesk/api/internal/realtime"
	"ndtdesk/api/internal/sched"
	"ndtdesk/api/internal/search"
	"ndtdesk/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	// Documents land in MinIO when configured, on local disk otherwise.
	var blobs blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := blob.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		log.Printf("Storing documents in MinIO bucket %s", cfg.MinioBucket)
		blobs = minioStore
	} else {
		diskStore, err := blob.NewDiskStore(cfg.UploadsDir)
		if err != nil {
			log.Fatalf("uploads dir failed: %v", err)
		}
		log.Printf("Storing documents under %s", cfg.UploadsDir)
		blobs = diskStore
	}

	sqlSearch := search.NewSQLSearch(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, sqlSearch)
	if meiliClient != nil {
		go searchService.ReindexAllFromDB(ctx)
	}

	// Redis response cache is optional; without it every read hits Postgres.
	var responseCache app.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.New(cfg.RedisURL, time.Duration(cfg.CacheTTLSeconds)*time.Second)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		log.Printf("Using Redis for dictionary and stats caching")
		responseCache = redisCache
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("SMTP not configured, email notifications disabled")
	}

	pusher := push.NewService(push.Config{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	})
	if !pusher.IsConfigured() {
		log.Printf("VAPID keys not configured, push notifications disabled")
	}

	notifier := notify.NewService(notify.Config{
		AppURL:      cfg.AppURL,
		SummaryTopN: cfg.SummaryTopN,
	}, dataStore, mailer, pusher)

	hub := realtime.NewHub(cfg.CORSOrigin)

	if cfg.SchedulerEnabled {
		scheduler := sched.New(notifier)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("scheduler failed: %v", err)
		}
		defer scheduler.Stop()
	} else {
		log.Printf("Scheduler disabled, deadline sweeps will not run")
	}

	service := app.NewService(dataStore, searchService, notifier, hub, blobs, responseCache)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, hub)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("NDT Desk API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
