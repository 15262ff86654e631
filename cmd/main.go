/*
Package main is the entry point for the livechat server.

It is responsible for loading configuration, initializing the global logging system,
opening the configured document store, wiring the chat services, setting up the HTTP
server and the WebSocket Hub, and gracefully handling operating system interrupt signals
(SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
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

	"livechat/internal/app/chat"
	"livechat/internal/app/db"
	"livechat/internal/app/docstore"
	"livechat/internal/app/experience"
	"livechat/internal/app/firestoredoc"
	"livechat/internal/app/live"
	"livechat/internal/app/redisdoc"
	"livechat/internal/app/storage"
	"livechat/internal/app/user"
	"livechat/internal/configs"
	"livechat/internal/handler"
	"livechat/internal/pkg/logx"
)

// openStore connects the document store backend selected by the configuration.
func openStore(ctx context.Context, cfg *configs.AppConfig) (docstore.Store, error) {
	switch cfg.DocstoreBackend {
	case configs.BackendRedis:
		return redisdoc.Open(cfg.RedisURL)
	case configs.BackendPostgres:
		pool, err := db.NewPool(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return db.NewStore(pool), nil
	case configs.BackendFirestore:
		return firestoredoc.Open(ctx, cfg.FirestoreProjectID)
	default:
		logx.Warn("Using the in-memory document store. Data is lost on restart.")
		return docstore.NewMemory(), nil
	}
}

func main() {
	if err := configs.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("docstore_backend", cfg.DocstoreBackend).
		Bool("storage_enabled", cfg.StorageEnabled()).
		Dur("feed_scroll_debounce", cfg.FeedScrollDebounce).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open document store", "backend", cfg.DocstoreBackend)
	}

	var storageService storage.StorageService
	if cfg.StorageEnabled() {
		storageService, err = storage.NewStorageService(storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize storage service")
		}
	}

	resolver := user.NewResolver(store)
	directory := user.NewDirectory(store)
	engine := experience.NewEngine(store)

	// Initialize the WebSocket Hub
	hub := live.NewHub(store, resolver, live.Options{
		ScrollDebounce: cfg.FeedScrollDebounce,
		JWTSecret:      cfg.JWTSecret,
	})
	go hub.Run()

	deps := &handler.AppDeps{
		Config:         cfg,
		Store:          store,
		Resolver:       resolver,
		Directory:      directory,
		Experience:     engine,
		Composer:       chat.NewComposer(store, resolver, engine, chat.NewQuoteBox(), hub),
		Contacts:       chat.NewContactBook(store, directory),
		Hub:            hub,
		StorageService: storageService,
	}

	// Setup HTTP server and routes
	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("livechat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	hub.Stop()

	if err := store.Close(); err != nil {
		logx.Error(err, "Failed to close document store")
	}

	logx.Info("Server gracefully stopped.")
}
