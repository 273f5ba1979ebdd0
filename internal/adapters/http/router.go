package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AydenGen/podcast-together/internal/adapters/push"
	"github.com/AydenGen/podcast-together/internal/app"
	"github.com/AydenGen/podcast-together/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, svc *app.Service, hub *push.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	api := r.Group("/api")

	// the operate endpoint is POST only, but other methods must answer with
	// the wrong-method wire code rather than a transport-level 404
	h := NewOperateHandler(svc)
	api.Any("/room-operate", h.Handle)

	api.GET("/room-ws", func(c *gin.Context) {
		hub.HandleConnect(ctx, c)
	})

	return r
}
