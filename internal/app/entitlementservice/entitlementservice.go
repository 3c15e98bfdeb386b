package entitlementservice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/gigwise/entitlement-service/internal/cache"
	"github.com/gigwise/entitlement-service/internal/config"
	"github.com/gigwise/entitlement-service/internal/events"
	"github.com/gigwise/entitlement-service/internal/generation"
	"github.com/gigwise/entitlement-service/internal/identity"
	"github.com/gigwise/entitlement-service/internal/migrations"
	adminservice "github.com/gigwise/entitlement-service/internal/services/admin"
	billingservice "github.com/gigwise/entitlement-service/internal/services/billing"
	gateservice "github.com/gigwise/entitlement-service/internal/services/generationgate"
	"github.com/gigwise/entitlement-service/internal/storage/repository"
)

// App хранит собранные зависимости сервиса и HTTP-сервер.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	usage      *cache.UsageCounter
	rabbitConn *amqp.Connection
}

// New собирает сервис: хранилище аудита с миграциями, счётчик в Redis,
// клиенты провайдера идентификации и сервиса генерации, издатель событий
// и HTTP-сервер с маршрутами.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	usage, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := events.Connect(cfg.Rabbit.URL, cfg.Rabbit.ConnRetries, cfg.Rabbit.ConnDelay)
	if err != nil {
		return nil, err
	}
	rabbitCh, err := events.SetupChannel(rabbitConn)
	if err != nil {
		return nil, err
	}
	publisher := events.NewPublisher(rabbitCh)

	identityClient := identity.New(cfg.Identity)
	generationClient := generation.New(cfg.Generation)

	adminService := adminservice.New(logger, identityClient, db, publisher)
	billingService := billingservice.New(logger, identityClient, db, publisher)
	gateService := gateservice.New(logger, generationClient, usage, identityClient, db)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, identityClient, adminService, billingService, gateService,
		cfg.Billing.WebhookSecret, cfg.Admin.Emails)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		db:         db,
		usage:      usage,
		rabbitConn: rabbitConn,
	}, nil
}

// Run запускает HTTP-сервер и ждёт отмены контекста, после чего
// останавливает сервер с дренажом активных запросов.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.rabbitConn.Close()
		_ = a.usage.Db.Close()
		_ = a.db.DB.Close()
		return err
	}
}
