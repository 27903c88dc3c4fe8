package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/health-records/internal/handler"
	"github.com/jwalitptl/health-records/internal/handler/health"
	promhandler "github.com/jwalitptl/health-records/internal/handler/prometheus"
	"github.com/jwalitptl/health-records/internal/middleware"
	"github.com/jwalitptl/health-records/pkg/httputil"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/metrics"
)

const APIPrefix = "/api/v1"

type Handler interface {
	RegisterRoutes(*gin.RouterGroup, *middleware.AuthMiddleware)
}

type RouterConfig struct {
	RequestTimeout   time.Duration
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	Security         middleware.SecurityConfig
	MaxBodyBytes     int64
	// UnlimitedRoutes bypass MaxBodyBytes.
	UnlimitedRoutes  []string
}

type Router struct {
	config   RouterConfig
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   *health.Handler
	metrics  *promhandler.Handler
	handlers []Handler
}

func NewRouter(
	config RouterConfig,
	log *logger.Logger,
	m *metrics.Metrics,
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	metricsH *promhandler.Handler,
	handlers ...Handler,
) *Router {
	handler.ConfigureBinding()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.NoRoute(func(c *gin.Context) {
		httputil.RespondWithMessage(c, http.StatusNotFound, "route not found")
	})
	engine.NoMethod(func(c *gin.Context) {
		httputil.RespondWithMessage(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Metrics(m),
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(config.Security),
	)
	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return &Router{
		config:   config,
		engine:   engine,
		auth:     auth,
		health:   healthH,
		metrics:  metricsH,
		handlers: handlers,
	}
}

func (r *Router) Setup() {
	config := r.config
	if r.health != nil {
		r.health.RegisterRoutes(r.engine)
	}
	if r.metrics != nil {
		r.engine.GET("/metrics", r.metrics.Handler())
	}

	api := r.engine.Group(APIPrefix)
	api.Use(middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}))
	if config.MaxBodyBytes > 0 {
		api.Use(middleware.SizeLimit(middleware.SizeLimitConfig{
			MaxBodySize: config.MaxBodyBytes,
			SkipRoutes:  config.UnlimitedRoutes,
		}))
	}
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	for _, h := range r.handlers {
		h.RegisterRoutes(api, r.auth)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
