package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/triageai/backend/internal/audit"
	"github.com/triageai/backend/internal/auth"
	"github.com/triageai/backend/internal/config"
	"github.com/triageai/backend/internal/httpserver"
	"github.com/triageai/backend/internal/service"
	"github.com/triageai/backend/internal/store"
	"github.com/triageai/backend/internal/triage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.LoadFromEnv()

	// Database (optional; memory store for dev)
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
		log.Println("connected to postgres")
	}

	var st store.Store
	if db != nil {
		st = store.NewPGStore(db)
	} else {
		st = store.NewMemoryStore()
		log.Println("no postgres configured; using in-memory store (dev only)")
	}

	// Audit log: Postgres when available, file store otherwise
	var auditLog audit.Store
	var auditPG *audit.PGStore
	if db != nil {
		auditPG = audit.NewPGStore(db)
		auditLog = auditPG
	} else {
		auditLog = audit.NewFileStore(cfg.AuditDir)
	}

	ctx := context.Background()
	settings := triage.NewSettingsStore(ctx, st)
	capacity := triage.NewCapacityTracker(st)
	engine := triage.NewEngine(st, capacity, settings, auditLog)
	scheduler := triage.NewScheduler(engine, cfg.DebounceFloor, cfg.StalenessCeiling)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	go func() {
		if err := scheduler.Run(schedCtx); err != nil && err != context.Canceled {
			log.Printf("[triage.scheduler] exited with error: %v", err)
		}
	}()

	svc := service.New(st, scheduler)

	// --- Audit streamer wiring (DB-first durable pipeline) ---
	var streamerCancel context.CancelFunc
	if auditPG != nil && cfg.KafkaBrokers != "" && cfg.KafkaTopic != "" {
		rawBrokers := strings.Split(cfg.KafkaBrokers, ",")
		brokers := make([]string, 0, len(rawBrokers))
		for _, b := range rawBrokers {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		producer, err := audit.NewKafkaProducer(audit.KafkaProducerConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("failed to initialize kafka producer: %v", err)
		}
		log.Printf("kafka producer initialized (brokers=%v topic=%s)", brokers, cfg.KafkaTopic)

		var archiver audit.Archiver
		if cfg.S3Bucket != "" {
			a, err := audit.NewS3Archiver(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				log.Fatalf("failed to initialize s3 archiver: %v", err)
			}
			archiver = a
			log.Printf("s3 archiver initialized (bucket=%s prefix=%s)", cfg.S3Bucket, cfg.S3Prefix)
		}

		streamer := audit.NewStreamer(auditPG, producer, archiver, audit.StreamerConfig{})
		ctxStr, cancel := context.WithCancel(context.Background())
		streamerCancel = cancel
		go func() {
			if err := streamer.Run(ctxStr); err != nil && err != context.Canceled {
				log.Printf("[audit.streamer] exited with error: %v", err)
			}
		}()
		log.Println("audit streamer started")
	} else if cfg.KafkaBrokers != "" || cfg.KafkaTopic != "" {
		log.Println("audit streamer not started: requires postgres plus KAFKA_BROKERS and KAFKA_TOPIC")
	}

	// Auth: mutating routes open when no secret is configured (dev only)
	var verifier *auth.Verifier
	if cfg.AuthSecret != "" {
		verifier = auth.NewVerifier(cfg.AuthSecret)
	} else {
		log.Println("AUTH_SECRET not set; mutating routes are unauthenticated (dev only)")
	}

	server := httpserver.New(svc, st, engine, settings, capacity, auditLog, scheduler, verifier)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("starting triage server on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}

	schedCancel()
	if streamerCancel != nil {
		streamerCancel()
		// short grace period so in-flight shipping settles and the producer closes
		time.Sleep(2 * time.Second)
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("server stopped")
}
