package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/katatrina/schoolhub-BE/api"
	db "github.com/katatrina/schoolhub-BE/internal/db/sqlc"
	"github.com/katatrina/schoolhub-BE/internal/event"
	"github.com/katatrina/schoolhub-BE/internal/housekeeping"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/tokenstore"
	"github.com/katatrina/schoolhub-BE/internal/util"
	"github.com/katatrina/schoolhub-BE/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configurations
	config, err := util.LoadConfig("./app.env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config file 😣")
	}

	log.Info().Msg("configurations loaded successfully ✅")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create connection pool
	connPool, err := pgxpool.New(ctx, config.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to validate db connection string 😣")
	}
	defer connPool.Close()

	store := db.NewStore(connPool)
	if err = store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db 😣")
	}
	log.Info().Msg("connected to db ✅")

	if err = store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate db schema 😣")
	}
	log.Info().Msg("db schema is up to date ✅")

	if err = bootstrapAdmin(ctx, config, store); err != nil {
		log.Fatal().Err(err).Msg("failed to create bootstrap admin 😣")
	}

	redisDb := redis.NewClient(&redis.Options{
		Addr:     config.RedisServerAddress,
		Password: "", // no password set
		DB:       0,  // use default DB
	})
	defer redisDb.Close()

	if err = redisDb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis 😣")
	}
	log.Info().Msg("connected to redis ✅")

	repo, closeRepo, err := newNotificationRepository(ctx, config, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create notification repository 😣")
	}
	defer closeRepo()

	// Local hub for this instance's websocket connections; the bridge
	// fans every event out to all instances through redis.
	hub := event.NewHub(event.WithFilter(notification.SubscriberCanView))
	go hub.Run(ctx)

	bridge := event.NewRedisBridge(redisDb, config.EventsChannel, hub)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			log.Error().Err(err).Msg("event bridge stopped")
		}
	}()

	var routerOpts []notification.RouterOption
	if config.DiscordBotToken != "" && config.DiscordChannelID != "" {
		mirror, err := notification.NewDiscordMirror(config.DiscordBotToken, config.DiscordChannelID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create discord mirror 😣")
		}
		routerOpts = append(routerOpts, notification.WithMirror(mirror))
		log.Info().Msg("discord mirror enabled ✅")
	}
	router := notification.NewRouter(repo, bridge, routerOpts...)

	redisOpt := asynq.RedisClientOpt{Addr: config.RedisServerAddress}
	taskDistributor := worker.NewTaskDistributor(redisOpt)
	defer taskDistributor.Close()
	taskInspector := worker.NewTaskInspector(redisOpt)
	defer taskInspector.Close()

	taskProcessor := worker.NewRedisTaskProcessor(redisOpt, router)
	if err = taskProcessor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start task processor 😣")
	}
	defer taskProcessor.Shutdown()
	log.Info().Msg("task processor started ✅")

	janitor, err := housekeeping.NewJanitor(router, config.NotificationRetention)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create retention janitor 😣")
	}
	if err = janitor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start retention janitor 😣")
	}
	defer janitor.Stop()
	log.Info().Dur("retention", config.NotificationRetention).Msg("retention janitor started ✅")

	refreshStore := tokenstore.NewRedisStore(redisDb)

	server, err := api.NewServer(&config, store, router, refreshStore, hub, taskDistributor, taskInspector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create HTTP server 😣")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(config.HTTPServerAddress)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped 😣")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down HTTP server")
	}
}

// newNotificationRepository picks the storage backend for notifications.
// The returned func releases it.
func newNotificationRepository(ctx context.Context, config util.Config, store db.Store) (notification.Repository, func(), error) {
	switch config.NotificationBackend {
	case util.NotificationBackendFirestore:
		firebaseApp, err := firebase.NewApp(ctx,
			&firebase.Config{ProjectID: config.FirebaseProjectID},
			option.WithCredentialsFile(config.FirebaseCredentialsFile),
		)
		if err != nil {
			return nil, nil, err
		}

		repo, err := notification.NewFirestoreRepository(ctx, firebaseApp)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("project_id", config.FirebaseProjectID).Msg("notifications stored in firestore ✅")
		return repo, func() { repo.Close() }, nil

	case util.NotificationBackendMemory:
		log.Warn().Msg("notifications stored in memory, they are lost on restart")
		return notification.NewMemoryRepository(), func() {}, nil

	default:
		return store, func() {}, nil
	}
}

func bootstrapAdmin(ctx context.Context, config util.Config, store db.Store) error {
	if config.BootstrapAdminEmail == "" {
		return nil
	}
	if config.BootstrapAdminPassword == "" {
		return errors.New("BOOTSTRAP_ADMIN_PASSWORD is required with BOOTSTRAP_ADMIN_EMAIL")
	}

	hashedPassword, err := util.HashPassword(config.BootstrapAdminPassword)
	if err != nil {
		return err
	}

	created, err := store.EnsureUser(ctx, db.CreateUserParams{
		ID:             uuid.NewString(),
		FullName:       "Administrator",
		Email:          config.BootstrapAdminEmail,
		HashedPassword: hashedPassword,
		Role:           notification.RoleAdmin,
	})
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("email", config.BootstrapAdminEmail).Msg("bootstrap admin created ✅")
	}
	return nil
}
