package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/adapters/ingest"
	"github.com/dkeye/rtcpulse/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, handler *ingest.Handler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthcheck", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/bindcheck", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("bind check hit")
		c.Status(200)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("origin", c.GetHeader("Origin")).Msg("ws endpoint hit")
		handler.HandleConnection(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Int("port", cfg.Port).Msg("router setup")
	return r
}
