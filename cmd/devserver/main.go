package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"chatline/internal/config"
	"chatline/internal/devserver"
	"chatline/internal/devserver/presence"
	"chatline/internal/devserver/repo"
	"chatline/internal/logging"
	"chatline/internal/security"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.Init(os.Stdout, cfg.LogLevel)

	var store repo.Store
	switch cfg.StoreDriver {
	case "sqlite":
		db, err := repo.OpenSQLite(cfg.SQLiteDSN)
		if err != nil {
			log.Error("open sqlite", "dsn", cfg.SQLiteDSN, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := repo.MigrateSQLite(db); err != nil {
			log.Error("migrate sqlite", "error", err)
			os.Exit(1)
		}
		if err := repo.SeedSQLite(context.Background(), db); err != nil {
			log.Error("seed sqlite", "error", err)
			os.Exit(1)
		}
		store = repo.NewSQLiteStore(db)
	default:
		store = repo.NewMemorySeeded().AsStore()
	}

	var tracker presence.Tracker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Error("ping redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		tracker = presence.NewRedisTracker(client)
	} else {
		tracker = presence.NewMemoryTracker()
	}

	tokens := security.NewTokenService(cfg.JWTSecret, cfg.SessionTTL())
	hub := devserver.NewHub()
	server := devserver.New(store, tracker, hub, tokens, log, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting chatline dev server", "addr", cfg.HTTPAddr(), "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
	}
}
