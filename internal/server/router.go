// Package server assembles the HTTP surface of the messaging service.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

// Options carries everything the router needs.
type Options struct {
	ServiceName    string
	Service        handlers.ChatService
	Verifier       middleware.TokenVerifier
	Realtime       gin.HandlerFunc
	Media          *handlers.MediaHandler
	MediaBasePath  string
	Audit          *telemetry.AuditEmitter
	Presence       handlers.OnlineLister
	MaxUploadBytes int64
	DebugRoutes    bool
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(opts.ServiceName),
		observability.RequestIDMiddleware(),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	conversations := handlers.NewConversationHandler(opts.Service, opts.Audit)
	messages := handlers.NewMessageHandler(opts.Service, opts.MaxUploadBytes)

	api := router.Group("/conversations", middleware.AuthMiddleware(opts.Verifier))
	api.GET("", conversations.ListConversations)
	api.POST("/direct", conversations.ResolveDirect)
	api.POST("/groups", conversations.CreateGroup)
	api.GET("/groups/:id", conversations.GetGroup)
	api.POST("/groups/:id/participants", conversations.AddParticipant)
	api.DELETE("/groups/:id/participants/:user_id", conversations.RemoveParticipant)

	api.GET("/:id/messages", messages.GetMessages)
	api.POST("/:id/messages", messages.PostMessage)
	api.POST("/:id/read", messages.MarkRead)
	api.POST("/:id/delivered", messages.MarkDelivered)
	api.GET("/:id/unread", messages.Unread)
	api.PUT("/:id/messages/:message_id/reaction", messages.React)
	api.DELETE("/:id/messages/:message_id", messages.DeleteMessage)

	if opts.Media != nil {
		base := opts.MediaBasePath
		if base == "" {
			base = "/media"
		}
		router.GET(base+"/:id", opts.Media.Get)
	}
	if opts.Realtime != nil {
		router.GET("/ws", opts.Realtime)
	}

	handlers.RegisterDebugRoutes(router, opts.Audit, opts.Presence, opts.DebugRoutes)
	return router
}
