package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/http/middleware"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/service/ingest"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Ingestor interface {
	Ingest(ctx context.Context, ev model.WebhookEvent) (ingest.Outcome, error)
}

type Broadcaster interface {
	Run(ctx context.Context, mode model.TriggerMode) (model.RunSummary, error)
}

// Deps are the services behind the routes. Deliveries and Redis are optional.
type Deps struct {
	Ingestor    Ingestor
	Broadcaster Broadcaster
	Deliveries  repository.DeliveriesRepository
	Redis       *redis.Client
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(gommonlog.WARN)
	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout
	e.Server.WriteTimeout = cfg.HTTP.WriteTimeout
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.Trigger.APIKey)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ops:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	// the webhook is never throttled: a non-200 makes the social client retry
	e.Any("/api/webhook", webhookHandler(deps.Ingestor))

	trigger := broadcastHandler(deps.Broadcaster, cfg.Trigger)
	e.Any("/api/broadcast", trigger, rlMW)
	e.Any("/api/cron/broadcast", trigger, rlMW)

	v1 := e.Group("/v1", authMW, rlMW)
	v1.GET("/reports/deliveries", listDeliveriesHandler(deps.Deliveries))

	return &Server{e: e}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
