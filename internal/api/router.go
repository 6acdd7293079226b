package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunov7/formerr-hooks/internal/config"
	"github.com/brunov7/formerr-hooks/internal/health"
	"github.com/brunov7/formerr-hooks/internal/logging"
	"github.com/brunov7/formerr-hooks/internal/webhook"
)

// NewRouter wires public endpoints and the authenticated API.
// Public: /healthz, /metrics. Authenticated: webhook CRUD, test, trigger.
func NewRouter(cfg config.Config, st SubscriptionStore, pool *pgxpool.Pool, disp *webhook.Dispatcher, pub EventPublisher, promReg *prometheus.Registry, logger *logging.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", gin.WrapF(health.HTTPHandler(pool)))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	authGroup := r.Group("/")
	authGroup.Use(APIKeyMiddleware(cfg.API.Keys))

	RegisterWebhookRoutes(authGroup, st, disp)
	RegisterTriggerRoutes(authGroup, disp, pub, cfg.NSQ.EventsTopic, logger)

	return r
}
