// Package main runs the halogen API server: HTTP endpoints, the chat
// websocket and the push notification worker in one process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/halogen-labs/halogen/internal/app/httpapi"
	"github.com/halogen-labs/halogen/internal/app/maintenance"
	"github.com/halogen-labs/halogen/internal/app/services/accounts"
	"github.com/halogen-labs/halogen/internal/app/services/chats"
	"github.com/halogen-labs/halogen/internal/app/services/companies"
	"github.com/halogen-labs/halogen/internal/app/services/creators"
	"github.com/halogen-labs/halogen/internal/app/services/notifications"
	"github.com/halogen-labs/halogen/internal/app/storage/postgres"
	"github.com/halogen-labs/halogen/internal/config"
	"github.com/halogen-labs/halogen/internal/embedding"
	"github.com/halogen-labs/halogen/internal/filestore"
	"github.com/halogen-labs/halogen/internal/google"
	"github.com/halogen-labs/halogen/internal/oauth"
	"github.com/halogen-labs/halogen/internal/platform/migrations"
	"github.com/halogen-labs/halogen/internal/rpc"
	"github.com/halogen-labs/halogen/internal/twitch"
	"github.com/halogen-labs/halogen/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := logger.NewDefault("halogen")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Errorf("configuration failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Errorf("database open failed")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Errorf("database unreachable")
		os.Exit(1)
	}
	if err := migrations.Apply(ctx, db.DB); err != nil {
		log.WithError(err).Errorf("migrations failed")
		os.Exit(1)
	}
	store := postgres.New(db)

	var cache *redis.Client
	if cfg.Redis.Address != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warnf("redis unreachable, session cache disabled")
			cache = nil
		}
	}

	files := filestore.New(cfg.Storage.Path)
	encoder := embedding.NewVoyage(cfg.Embedding.VoyageAPIKey, cfg.Embedding.Model)

	var sender notifications.Sender
	if cfg.Push.ProjectID != "" {
		fcm, err := notifications.NewFCMSender(ctx, cfg.Push.ProjectID, cfg.Push.CredentialsFile)
		if err != nil {
			log.WithError(err).Errorf("fcm setup failed")
			os.Exit(1)
		}
		sender = fcm
	} else {
		log.Infof("push delivery disabled, no FCM project configured")
	}

	accountsSvc := accounts.New(store, cache, cfg.Session.TTL,
		oauth.NewGoogle(cfg.OAuth.Google), oauth.NewTwitch(cfg.OAuth.Twitch),
		twitch.NewClient(cfg.OAuth.Twitch.ClientID), log)
	creatorsSvc := creators.New(store, encoder, files, log)
	companiesSvc := companies.New(store, encoder, files, log)
	notifySvc := notifications.New(store, sender, log)
	chatsSvc := chats.New(store, notifySvc, log)

	go notifySvc.Run(ctx)

	registry := rpc.NewRegistry()
	chatsSvc.RegisterRPC(registry)
	ws := rpc.NewServer(registry, notifySvc, log)

	job := maintenance.NewJob(store, store, log)
	if err := job.Start(cfg.Maintenance.Schedule); err != nil {
		log.WithError(err).Errorf("maintenance schedule invalid")
		os.Exit(1)
	}
	defer job.Stop()

	handler := httpapi.NewHandler(cfg, accountsSvc, creatorsSvc, companiesSvc,
		google.NewClient(), files, ws, log)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("address", cfg.Server.Address).Infof("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Infof("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Errorf("server failed")
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warnf("shutdown incomplete")
	}
}
