package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wapcast-server/internal/auth"
	"github.com/vovakirdan/wapcast-server/internal/config"
	"github.com/vovakirdan/wapcast-server/internal/core"
	"github.com/vovakirdan/wapcast-server/internal/metrics"
	"github.com/vovakirdan/wapcast-server/internal/store"
)

// NewServer builds the HTTP server: health, metrics, the WebSocket endpoint
// and the collaborator REST API. presence may be nil.
func NewServer(hub *core.Hub, presence store.PresenceStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/metrics", metricsHandler(hub, logger))
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, cfg, logger)))

	api := router.Group("/api")
	api.Use(LoggerMiddleware(logger))
	if cfg.APISecret != "" {
		api.Use(AuthMiddleware(&auth.JWTConfig{
			Secret:   []byte(cfg.APISecret),
			Issuer:   cfg.APIIssuer,
			Audience: cfg.APIAudience,
		}, logger))
	} else {
		logger.Warn().Msg("api_secret is empty, REST API is unauthenticated")
	}

	handlers := NewAPIHandlers(hub, presence, logger)
	api.POST("/emit", handlers.Emit)
	api.POST("/broadcast", handlers.Broadcast)
	api.POST("/rooms/:room/emit", handlers.EmitToRoom)
	api.GET("/rooms/:room/members", handlers.Members)
	api.POST("/users/:userId/emit", handlers.EmitToUser)
	api.GET("/users/:userId/presence", handlers.Presence)
	api.POST("/watchers/:label/emit", handlers.EmitToWatchers)
	api.GET("/stats", handlers.Stats)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

func metricsHandler(src metrics.Source, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", metrics.ContentType())
		c.Status(stdhttp.StatusOK)
		if err := metrics.Write(c.Writer, src); err != nil {
			logger.Warn().Err(err).Msg("failed to write metrics")
		}
	}
}
