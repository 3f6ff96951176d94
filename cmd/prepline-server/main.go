// Package main provides the prepline registry server entry point: the
// persistence backend for dataset version lineage and the status write
// path used by transformation processors.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang/glog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/prepline/prepline/internal/registry"
	"github.com/prepline/prepline/pkg/session"
)

func main() {
	var (
		listenAddr   string
		databaseType string
		databaseDSN  string
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&databaseType, "db-type", "sqlite", "Database type (sqlite, postgres or mysql)")
	flag.StringVar(&databaseDSN, "db-dsn", "file:prepline.db", "Database connection string")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	// Set up structured logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting prepline registry",
		"listen", listenAddr,
		"dbType", databaseType,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gormDB, err := setupDatabase(databaseType, databaseDSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	store := registry.NewStore(gormDB)
	if err := store.AutoMigrate(); err != nil {
		glog.Fatalf("Failed to migrate schema: %v", err)
	}

	parser := &session.Parser{}
	if secret := os.Getenv("PREPLINE_SESSION_SECRET"); secret != "" {
		parser.Secret = []byte(secret)
		logger.Info("session tokens will be verified")
	} else {
		logger.Info("no session secret configured, tokens are parsed unverified")
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	r.Use(session.Middleware(parser))
	r.Mount("/api/lineage/v1alpha1", registry.Router(store))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("registry listening", "addr", listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Fatalf("Server failed: %v", err)
	}
	logger.Info("registry stopped")
}

func setupDatabase(databaseType, databaseDSN string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	switch databaseType {
	case "sqlite":
		return gorm.Open(sqlite.Open(databaseDSN), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(databaseDSN), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(databaseDSN), cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", databaseType)
	}
}
