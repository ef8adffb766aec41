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

	"carelink/api/internal/app"
	"carelink/api/internal/config"
	"carelink/api/internal/moderation"
	"carelink/api/internal/search"
	"carelink/api/internal/session"
	"carelink/api/internal/store"
	"carelink/api/internal/suggest"
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

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		searchService.ReindexAllFromPG(ctx)
	}

	classifier := moderation.NewHTTPClassifier(cfg.ClassifierURL)
	gate := moderation.NewGate(classifier, cfg.ClassifierTimeout, cfg.ClassifierRetries, moderation.ParseFallbackPolicy(cfg.ModerationFallback))

	// With no backend configured the orchestrator still enforces the
	// minimum-context rule and reports the service as unavailable.
	var suggesterClient suggest.Suggester
	if strings.TrimSpace(cfg.SuggestionURL) != "" {
		suggesterClient = suggest.NewHTTPSuggester(cfg.SuggestionURL)
	}
	suggester := suggest.NewOrchestrator(suggesterClient, cfg.SuggestionTimeout, cfg.SuggestionMinLen)

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, gate, suggester, searchService)
	} else {
		log.Printf("Using PostgreSQL for session storage")
		service = app.New(cfg, dataStore, gate, suggester, searchService)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("CareLink forum API listening on %s", cfg.Addr)
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
