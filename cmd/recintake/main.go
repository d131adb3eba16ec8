package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/recintake/recintake/internal/ai"
	"github.com/recintake/recintake/internal/auth"
	"github.com/recintake/recintake/internal/database"
	"github.com/recintake/recintake/internal/geoip"
	"github.com/recintake/recintake/internal/recording"
	"github.com/recintake/recintake/internal/server"
	"github.com/recintake/recintake/internal/shortlink"
	"github.com/recintake/recintake/internal/storage"
	"github.com/recintake/recintake/internal/transcode"
	"github.com/recintake/recintake/internal/transcribe"
)

func main() {
	port := getEnv("PORT", "8080")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(databaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	log.Println("database migrations applied")

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       getEnv("S3_ENDPOINT", "http://localhost:3900"),
		PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		Bucket:         getEnv("S3_BUCKET", "recintake"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		Region:         getEnv("S3_REGION", "eu-central-1"),
	})
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}

	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("storage bucket check failed: %v", err)
	}
	log.Println("storage bucket ready")

	baseURL := getEnv("BASE_URL", "http://localhost:8080")

	resolver := auth.NewResolver(jwtSecret, auth.NewUserinfoClient(os.Getenv("USERINFO_URL")))

	transcoder := transcode.NewRunner(getEnv("FFMPEG_PATH", "ffmpeg"))

	speechAPIURL := os.Getenv("SPEECH_API_URL")
	if speechAPIURL == "" {
		log.Fatal("SPEECH_API_URL is required")
	}
	transcriber := transcribe.NewClient(
		speechAPIURL,
		os.Getenv("SPEECH_API_KEY"),
		getEnv("SPEECH_API_MODEL", "whisper-1"),
		os.Getenv("SPEECH_API_LANGUAGE"),
		os.Getenv("SPEECH_API_PROMPT"),
	)

	summarizer := ai.NewClient(
		os.Getenv("AI_BASE_URL"),
		os.Getenv("AI_API_KEY"),
		getEnv("AI_MODEL", "mistral-small-latest"),
	)

	geo := geoip.New(os.Getenv("GEOIP_DB_PATH"))

	linkStore := shortlink.NewStore(db.Pool)
	linkHandler := shortlink.NewHandler(linkStore, db.Pool, geo, baseURL)

	recHandler := recording.NewHandler(
		db.Pool,
		store,
		transcoder,
		transcriber,
		summarizer,
		linkStore,
		baseURL,
		getEnvInt64("MAX_UPLOAD_BYTES", 500*1024*1024),
	)

	srv := server.New(server.Config{
		Pinger:          db,
		Resolver:        resolver,
		Recording:       recHandler,
		Links:           linkHandler,
		BaseURL:         baseURL,
		StorageEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
	})

	recording.SweepTempDir(os.TempDir(), 24*time.Hour)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	recording.StartOrphanSweeper(sweepCtx, db.Pool, store, 10*time.Minute)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads stream the whole recording in one request and the pipeline
		// runs synchronously, so these are deliberately generous.
		ReadTimeout:  15 * time.Minute,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("recintake listening on :%s", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	log.Println("shutdown complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
