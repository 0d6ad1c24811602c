package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/estate-auth/internal/config"
	"github.com/prperemyshlev/estate-auth/internal/handler"
	"github.com/prperemyshlev/estate-auth/internal/notify"
	"github.com/prperemyshlev/estate-auth/internal/repository"
	"github.com/prperemyshlev/estate-auth/internal/service"
	"github.com/prperemyshlev/estate-auth/internal/utils"
	"github.com/prperemyshlev/estate-auth/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra   Infrastructure
	config  *config.Config
	router  *gin.Engine
	server  *http.Server
	janitor *Janitor
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()
	repos := repository.NewRepositories(infra.Postgres())

	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	notifier, err := notify.NewNotifier(infra.Mailer(), cfg.Registration, cfg.Reset.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Registration.AdminOnlyOTP && !cfg.Registration.NotifyApprovers() {
		logger.Warn("ADMIN_ONLY_OTP is set without ADMIN_OTP_RECIPIENTS, codes go to registrants")
	}

	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	authService := service.NewAuthService(service.Dependencies{
		Users:    repos.User,
		OTPs:     repos.OTP,
		Resets:   repos.PasswordReset,
		Tokens:   repos.Token,
		JWT:      jwtManager,
		Notifier: notifier,
		OTPGuard: service.NewRedisOTPGuard(infra.Redis()),
		Metrics:  infra.AuthMetrics(),
		Logger:   logger,
	}, service.OptionsFromConfig(cfg))

	authHandler := handler.NewAuthHandler(authService, logger, cfg.Env == "production")

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS))

	limit := func() gin.HandlerFunc {
		return handler.RateLimitMiddleware(
			rateLimiter,
			cfg.Security.RateLimitRequests,
			cfg.Security.RateLimitWindow.Duration,
			handler.RouteIPKey,
			logger,
		)
	}

	setupRoutes(router, authHandler, authService, limit, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	janitor := NewJanitor(map[string]ExpiredDeleter{
		"otp_codes":             repos.OTP,
		"password_reset_tokens": repos.PasswordReset,
		"refresh_tokens":        repos.Token,
	}, cfg.Janitor.Interval.Duration, logger)

	return &App{
		infra:   infra,
		config:  cfg,
		router:  router,
		server:  srv,
		janitor: janitor,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	authHandler *handler.AuthHandler,
	authService service.AuthService,
	limit func() gin.HandlerFunc,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", limit(), authHandler.Register)
			auth.POST("/resend-otp", limit(), authHandler.ResendOTP)
			auth.POST("/verify-email", limit(), authHandler.VerifyEmail)
			auth.POST("/login", limit(), authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
			auth.POST("/forgot-password", limit(), authHandler.ForgotPassword)
			auth.POST("/reset-password", limit(), authHandler.ResetPassword)
			auth.GET("/me", handler.AuthMiddleware(authService), authHandler.GetMe)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.janitor.Run(janitorCtx)
	}()

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	stopJanitor()
	wg.Wait()

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// drain in-flight requests before closing the stores they use
	if err := a.server.Shutdown(ctx); err != nil {
		a.infra.Logger().Error("HTTP server shutdown failed", zap.Error(err))
		return errors.Join(err, a.infra.Shutdown(ctx))
	}

	if err := a.infra.Shutdown(ctx); err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
