package app

import (
	"context"
	"database/sql"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libamqp "parkingops/backend/libs/amqp"
	libredis "parkingops/backend/libs/redis"
	"parkingops/backend/services/parking-service/internal/config"
	"parkingops/backend/services/parking-service/internal/db"
	"parkingops/backend/services/parking-service/internal/events"
	httpserver "parkingops/backend/services/parking-service/internal/http"
	"parkingops/backend/services/parking-service/internal/http/handlers"
	"parkingops/backend/services/parking-service/internal/http/middleware"
	redisstore "parkingops/backend/services/parking-service/internal/redis"
	"parkingops/backend/services/parking-service/internal/repository"
	"parkingops/backend/services/parking-service/internal/service"
	"parkingops/backend/services/parking-service/internal/ws"
)

// App wires parking-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	broker      *libamqp.Channel
	hub         *ws.Hub
	logger      *zap.Logger
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.NewPostgres(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a := &App{db: sqlDB, logger: logger}

	if cfg.Database.ApplySchema {
		if err := db.ApplySchema(ctx, sqlDB); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}

	a.redisClient, err = libredis.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.hub = ws.NewHub(logger)
	publishers := events.Multi{a.hub}
	if strings.TrimSpace(cfg.AMQP.URL) != "" {
		a.broker, err = libamqp.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		publishers = append(publishers, events.NewAMQPPublisher(a.broker.Raw(), a.broker.Exchange()))
	} else {
		logger.Info("amqp url not set, session events stay in-process")
	}

	sessionRepo := repository.NewSessionRepository(sqlDB)
	ledgerRepo := repository.NewLedgerRepository(sqlDB)
	directoryRepo := repository.NewDirectoryRepository(sqlDB)
	scheduleRepo := repository.NewScheduleRepository(sqlDB)
	accessRepo := repository.NewAccessRepository(sqlDB)

	scheduleCache := redisstore.NewScheduleCache(a.redisClient, cfg.Redis.ScheduleTTL)
	schedules := service.NewCachedScheduleSource(scheduleRepo, scheduleCache, logger)
	orderLock := redisstore.NewOrderLock(a.redisClient, cfg.Redis.LockTTL, 0, logger)

	lifecycle := service.NewSessionLifecycle(service.LifecycleDeps{
		Sessions:  sessionRepo,
		Directory: directoryRepo,
		Gate:      service.NewAccessGate(accessRepo),
		Resolver:  service.NewFeeScheduleResolver(schedules, loc),
		Publisher: publishers,
		Logger:    logger,
	})
	webhooks := service.NewWebhookProcessor(service.WebhookDeps{
		Sessions:  sessionRepo,
		Ledger:    ledgerRepo,
		Directory: directoryRepo,
		Locker:    orderLock,
		Publisher: publishers,
		Logger:    logger,
	})

	feed := ws.NewServer(a.hub, cfg.Feed.WriteTimeout, logger)
	issuer := middleware.NewTokenIssuer(cfg.JWT.Secret, 0)

	routes := httpserver.Routes{
		Sessions:            handlers.NewSessionsHandler(lifecycle, logger),
		Webhook:             handlers.NewWebhookHandler(webhooks, logger),
		InvalidateSchedules: handlers.NewInvalidateSchedulesHandler(schedules, logger),
		Feed:                feed.HandleWS,
		Health: handlers.NewHealthHandler(
			handlers.HealthCheck{Name: "postgres", Check: sqlDB.PingContext},
			handlers.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
				return a.redisClient.Ping(ctx).Err()
			}},
		),
	}

	router := httpserver.NewRouter(routes, middleware.AuthMiddleware(issuer))
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger,
		middleware.RecoveryMiddleware(logger),
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(logger),
	)
	return a, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.hub != nil {
		a.hub.CloseAll()
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warn("failed to close amqp channel", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
