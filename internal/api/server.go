// Package api exposes the marketplace over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/sneakerbid/internal/auction"
	"github.com/jensholdgaard/sneakerbid/internal/broadcast"
	"github.com/jensholdgaard/sneakerbid/internal/config"
	"github.com/jensholdgaard/sneakerbid/internal/health"
	"github.com/jensholdgaard/sneakerbid/internal/identity"
	"github.com/jensholdgaard/sneakerbid/internal/media"
	"github.com/jensholdgaard/sneakerbid/internal/notification"
	"github.com/jensholdgaard/sneakerbid/internal/telemetry"
)

// Deps are the collaborators requests are routed to.
type Deps struct {
	Auctions      *auction.Manager
	Notifications *notification.Manager
	Hub           *broadcast.Hub
	Tokens        *identity.Tokens
	Uploader      media.Uploader
	Health        *health.Handler
	Logger        *slog.Logger
}

// Server routes HTTP requests to the auction and notification managers.
type Server struct {
	router         *gin.Engine
	auctions       *auction.Manager
	notifications  *notification.Manager
	hub            *broadcast.Hub
	tokens         *identity.Tokens
	uploader       media.Uploader
	health         *health.Handler
	logger         *slog.Logger
	allowedOrigins []string
	keepAlive      time.Duration
	maxUpload      int64
}

// NewServer creates a new HTTP server and sets up routing.
func NewServer(cfg *config.Config, d Deps) *Server {
	uploader := d.Uploader
	if uploader == nil {
		uploader = media.Disabled{}
	}
	s := &Server{
		auctions:       d.Auctions,
		notifications:  d.Notifications,
		hub:            d.Hub,
		tokens:         d.Tokens,
		uploader:       uploader,
		health:         d.Health,
		logger:         d.Logger,
		allowedOrigins: cfg.Server.AllowedOrigins,
		keepAlive:      cfg.Broadcast.KeepAlive,
		maxUpload:      cfg.Media.MaxUploadBytes,
	}
	if s.keepAlive <= 0 {
		s.keepAlive = 15 * time.Second
	}
	s.setupRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	if s.health != nil {
		router.GET("/healthz", gin.WrapF(s.health.LivenessHandler()))
		router.GET("/readyz", gin.WrapF(s.health.ReadinessHandler()))
	}

	api := router.Group("/api")
	api.GET("/auctions", s.listOpenAuctions)
	api.GET("/auctions/:id", s.getAuction)
	api.GET("/auctions/:id/events", s.streamAuctionEvents)
	api.GET("/events", s.streamGlobalEvents)

	authed := api.Group("", authMiddleware(s.tokens))
	authed.POST("/auctions", s.createAuction)
	authed.DELETE("/auctions/:id", s.deleteAuction)
	authed.PUT("/auctions/:id/bid", s.placeBid)
	authed.POST("/auctions/:id/bid", s.placeBid)
	authed.PUT("/auctions/:id/buy-now", s.buyNow)
	authed.POST("/auctions/:id/buy-now", s.buyNow)
	authed.POST("/auctions/:id/images", s.uploadImages)

	authed.GET("/me/auctions/selling", s.listSelling)
	authed.GET("/me/auctions/bidding", s.listBidding)

	authed.GET("/notifications", s.listNotifications)
	authed.PUT("/notifications/:id/read", s.markNotificationRead)

	s.router = router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ctx := c.Request.Context()
		telemetry.LogWithTrace(ctx, logger).DebugContext(ctx, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
