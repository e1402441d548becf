package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/todoapp/auth-service/handlers"
	"github.com/todoapp/auth-service/internal/auth"
	"github.com/todoapp/auth-service/internal/config"
	"github.com/todoapp/auth-service/internal/sessions"
	"github.com/todoapp/auth-service/internal/storage"
	"github.com/todoapp/auth-service/internal/users"
	"github.com/todoapp/auth-service/pkg/logger"
	"github.com/todoapp/auth-service/pkg/metrics"
	"github.com/todoapp/auth-service/pkg/middleware"
)

var startTime = time.Now()

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	// debug output in development, LOG_LEVEL otherwise
	logger.Configure(cfg.Server.LogLevel, cfg.Server.Environment)
	logger.Debugf("startup: LOG_LEVEL=%s env=%s", logger.LevelString(), cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open storage: %v", err)
	}
	defer func() { _ = backends.Close(context.Background()) }()
	if err := backends.EnsureSchema(ctx); err != nil {
		logger.Fatalf("failed to prepare storage: %v", err)
	}

	providers := auth.BuildProviders(ctx, cfg)
	sessionsSvc := sessions.NewService(backends.Sessions,
		sessions.WithMaxAge(cfg.Session.MaxAge),
		sessions.WithUpdateAge(cfg.Session.UpdateAge),
	)
	authSvc := auth.NewService(providers, users.NewService(backends.Users), sessionsSvc)
	revocations := sessions.NewRevocations(backends.Redis)

	if !cfg.Server.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		Production:  cfg.Server.IsProduction(),
		Development: cfg.Server.IsDevelopment(),
	}))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: every opened backend answers and at least one provider is usable
	r.GET("/ready", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := backends.Ready(pingCtx)
		deps["providers"] = providers.Len() > 0
		ready := true
		for _, ok := range deps {
			ready = ready && ok
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	var limits handlers.RouteLimits
	if cfg.RateLimit.Enabled {
		// per-IP on the sign-in flow, per-user behind authentication
		limiter := func() gin.HandlerFunc {
			if cfg.RateLimit.UseRedis && backends.Redis != nil {
				win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
				return middleware.RedisRateLimitMiddleware(backends.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
			}
			return middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
		limits = handlers.RouteLimits{Anonymous: limiter(), User: limiter()}
	}
	handlers.RegisterAPI(r.Group("/api"), handlers.APIRoutes{
		Auth:          handlers.NewAuthHandler(cfg, authSvc, revocations),
		Sessions:      handlers.NewSessionClaims(authSvc),
		AccessTokens:  handlers.NewAccessTokenVerifier(cfg, revocations),
		SessionCookie: handlers.SessionCookieName(cfg.Server.IsProduction()),
		Limits:        limits,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	logger.Infof("Config summary: sessions=%s users=%s redis=%v providers=%v jwt_secret_set=%v",
		cfg.Storage.SessionBackend, cfg.Storage.UserBackend, backends.Redis != nil, providers.Names(), cfg.JWT.Secret != "")

	go func() {
		logger.Infof("Starting auth service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
