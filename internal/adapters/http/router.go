package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/unhidra/gateway/internal/adapters/gateway"
	"github.com/unhidra/gateway/internal/app"
	"github.com/unhidra/gateway/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, registry *app.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctrl := gateway.NewController(cfg, registry)

	r.GET("/ws", func(c *gin.Context) {
		ctrl.HandleWS(ctx, c)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, registry.Snapshot())
	})

	log.Info().Str("module", "adapters.http").Int("allowed_origins", len(cfg.AllowedOrigins)).Msg("router setup")

	return r
}
