package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/estate-auth/internal/config"
	"github.com/prperemyshlev/estate-auth/internal/notify"
	"github.com/prperemyshlev/estate-auth/pkg/database"
	"github.com/prperemyshlev/estate-auth/pkg/observability"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const serviceName = "estate-auth"

type Infrastructure interface {
	Postgres() *database.Postgres
	Redis() *database.Redis
	Logger() *zap.Logger
	Mailer() notify.Mailer
	AuthMetrics() *observability.AuthMetrics
	MetricsHandler() http.Handler
	MeterProvider() *metric.MeterProvider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	postgres       *database.Postgres
	redis          *database.Redis
	logger         *zap.Logger
	mailer         notify.Mailer
	authMetrics    *observability.AuthMetrics
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
}

var _ Infrastructure = &infrastructure{}

// NewInfrastructure connects every external dependency once at startup.
// Anything opened before a failure is closed again.
func NewInfrastructure(ctx context.Context, cfg config.Config) (*infrastructure, error) {
	i := &infrastructure{}

	logger, err := observability.InitLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	i.logger = logger

	postgres, err := database.NewPostgres(cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	i.postgres = postgres

	if cfg.Postgres.MigrateOnBoot {
		if err := postgres.Migrate(); err != nil {
			_ = i.postgres.Close()
			return nil, err
		}
		logger.Info("Database migrations applied")
	}

	redis, err := database.NewRedis(cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = i.postgres.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	i.redis = redis

	mailer, err := notify.NewMailer(cfg.SMTP, logger)
	if err != nil {
		i.closeStores()
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}
	i.mailer = mailer
	if !cfg.SMTP.Enabled() {
		logger.Warn("SMTP is not configured, emails will be logged instead of sent")
	}

	meterProvider, metricsHandler, err := observability.InitTelemetry(serviceName)
	if err != nil {
		i.closeStores()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	i.meterProvider = meterProvider
	i.metricsHandler = metricsHandler

	authMetrics, err := observability.NewAuthMetrics(meterProvider.Meter(serviceName))
	if err != nil {
		i.closeStores()
		_ = meterProvider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize auth metrics: %w", err)
	}
	i.authMetrics = authMetrics

	return i, nil
}

func (i *infrastructure) closeStores() {
	_ = i.postgres.Close()
	_ = i.redis.Close()
}

func (i *infrastructure) Postgres() *database.Postgres {
	return i.postgres
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) Mailer() notify.Mailer {
	return i.mailer
}

func (i *infrastructure) AuthMetrics() *observability.AuthMetrics {
	return i.authMetrics
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *infrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	errs := make(chan error, 3)

	go func() { errs <- i.postgres.Close() }()
	go func() { errs <- i.redis.Close() }()
	go func() { errs <- observability.Shutdown(ctx, i.meterProvider, i.logger) }()

	return errors.Join(<-errs, <-errs, <-errs)
}
