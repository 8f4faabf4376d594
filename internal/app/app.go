package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	redisadapter "github.com/floralens/server/internal/adapter/outbound/redis"
	"github.com/floralens/server/internal/adapter/outbound/plantid"
	"github.com/floralens/server/internal/adapter/outbound/plantnet"
	"github.com/floralens/server/internal/infra/httpclient"
	"github.com/floralens/server/internal/module/auth"
	"github.com/floralens/server/internal/module/identify"
	"github.com/floralens/server/internal/module/identify/breaker"
	"github.com/floralens/server/internal/module/identify/quota"
	"github.com/floralens/server/internal/port/outbound"
	sharedcache "github.com/floralens/server/internal/shared/cache"
	"github.com/floralens/server/internal/shared/config"
	"github.com/floralens/server/internal/shared/logger"
	"github.com/floralens/server/internal/utils/metrics"
	"github.com/floralens/server/internal/utils/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App wires the identification gateway together.
type App struct {
	config  *config.Config
	redis   *goredis.Client
	router  *gin.Engine
	logger  *logger.Logger
	metrics *metrics.Metrics

	identifyService *identify.Service
	identifyHandler *identify.Handler
}

// LoadConfig loads the application configuration.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	// Initialize logger
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	app := &App{
		config:  cfg,
		logger:  log,
		metrics: metrics.New(""),
	}

	// Redis backs quota counters, the fingerprint lock and the result cache.
	redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	app.redis = redisClient

	// Upstream provider
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	// Identification gateway
	quotaManager := quota.NewManager(
		redisadapter.NewCounter(redisClient),
		&quota.Config{
			ServiceName:      provider.Name(),
			Limit:            cfg.Identify.Quota.Limit,
			Period:           quota.Period(cfg.Identify.Quota.Period),
			WarningThreshold: cfg.Identify.Quota.WarningThreshold,
			FailOpen:         cfg.Identify.Quota.FailOpen,
		},
		log,
	)

	cb := breaker.New[*outbound.RawIdentification](
		&breaker.Config{
			Name:             provider.Name(),
			FailureThreshold: cfg.Identify.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Identify.Breaker.SuccessThreshold,
			ResetTimeout:     cfg.Identify.Breaker.ResetTimeout,
		},
		log,
	)

	app.identifyService = identify.NewService(
		provider,
		quotaManager,
		cb,
		redisadapter.NewResultCache(redisClient),
		redisadapter.NewLock(redisClient),
		&identify.Config{
			LockAcquireTimeout: cfg.Identify.Lock.AcquireTimeout,
			LockExpireAfter:    cfg.Identify.Lock.ExpireAfter,
			LockRetryInterval:  cfg.Identify.Lock.RetryInterval,
			LockFailOpen:       cfg.Identify.Lock.FailOpen,
			CacheTTL:           cfg.Identify.CacheTTL,
		},
		log,
		app.metrics,
	)
	app.identifyHandler = identify.NewHandler(app.identifyService, log)

	app.setupRouter()

	return app, nil
}

// buildProvider constructs the configured upstream identification client.
func buildProvider(cfg *config.Config) (outbound.IdentificationProviderPort, error) {
	client := httpclient.New(cfg.HTTPClient)

	switch cfg.Identify.Provider {
	case "plantid":
		return plantid.NewClient(cfg.Identify.PlantID.BaseURL, cfg.Identify.PlantID.APIKey, client), nil
	case "plantnet":
		return plantnet.NewClient(
			cfg.Identify.PlantNet.BaseURL,
			cfg.Identify.PlantNet.APIKey,
			cfg.Identify.PlantNet.Project,
			client,
		), nil
	default:
		return nil, fmt.Errorf("unknown identification provider: %q", cfg.Identify.Provider)
	}
}

// setupRouter configures routes and middleware.
func (a *App) setupRouter() {
	router := gin.New()

	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(a.logger))
	router.Use(middleware.Metrics(a.metrics))
	router.Use(middleware.CORS(nil))

	router.GET("/healthz", a.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		Secret: a.config.Auth.JWTSecret,
		Issuer: a.config.Auth.Issuer,
	})
	rateLimiter := redisadapter.NewRateLimiter(a.redis)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAuth(jwtManager))
	v1.Use(middleware.RateLimitByUser(rateLimiter, a.config.RateLimit.Limit, a.config.RateLimit.Window))
	a.identifyHandler.RegisterRoutes(v1)

	a.router = router
}

// healthz reports liveness of the gateway and its backing store.
func (a *App) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	redisStatus := "ok"
	status := http.StatusOK
	if err := a.redis.Ping(ctx).Err(); err != nil {
		// Degraded, not down: quota and lock fail open without Redis.
		redisStatus = "unreachable"
	}

	c.JSON(status, gin.H{
		"status":  "ok",
		"redis":   redisStatus,
		"breaker": a.identifyService.BreakerState(),
	})
}

// Router returns the gin engine.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases application resources.
func (a *App) Stop() {
	if a.redis != nil {
		if err := sharedcache.Close(a.redis); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
}
