package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/config"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/mailer"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/service"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/szamlazz"
)

// NewRouter assembles the gin engine: CORS, request ids, logging, rate
// limiting, bearer auth on /v1, plus health and metrics endpoints.
func NewRouter(svc *service.LedgerService, agent *szamlazz.Client, mail *mailer.Mailer, cfg *config.Config, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/", AuthMiddleware(cfg.Auth.Token))
	RegisterHandlers(authed, svc, agent, mail)
	return r
}
