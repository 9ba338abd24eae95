package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thereayou/esim-portal/internal/config"
	"github.com/thereayou/esim-portal/internal/handlers"
	"github.com/thereayou/esim-portal/internal/metrics"
	"github.com/thereayou/esim-portal/internal/middleware"
	"github.com/thereayou/esim-portal/internal/services"
)

type Deps struct {
	Config    config.Config
	Logger    *zap.Logger
	Authn     *services.Authenticator
	AuthH     *handlers.AuthHandler
	UserH     *handlers.UserHandler
	MessagesH *handlers.HTTPMessageHandler
	WSH       *handlers.WebSocketHandler
	Health    gin.HandlerFunc
}

func APIEndpoints(r *gin.Engine, d Deps) {
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(d.Logger))
	r.Use(middleware.CORSMiddleware(d.Config.FrontendURL))

	requireAuth := middleware.AuthMiddleware(d.Authn, d.Logger)
	adminOnly := middleware.AdminOnly()

	// Служебные
	if d.Health != nil {
		r.GET("/health", d.Health)
	}
	r.GET("/metrics", metrics.Handler())

	// Auth endpoints
	auth := r.Group("/auth")
	{
		auth.POST("/register", d.AuthH.Register)
		auth.POST("/login", d.AuthH.Login)
		auth.POST("/logout", requireAuth, d.AuthH.Logout)
	}

	r.GET("/ws", middleware.WSAuthMiddleware(d.Authn, d.Logger), d.WSH.HandleWebSocket)

	// API endpoints
	api := r.Group("/api/v1", requireAuth)
	{
		users := api.Group("/users")
		users.GET("/me", d.UserH.GetMe)
		users.GET("/:id", adminOnly, d.UserH.GetUser)

		messages := api.Group("/messages")
		messages.GET("/conversation/self", d.MessagesH.GetOwnConversation)
		messages.PUT("/mark-read", d.MessagesH.MarkRead)

		support := messages.Group("", adminOnly)
		support.GET("/conversation/:userId", d.MessagesH.GetConversation)
		support.GET("/conversations", d.MessagesH.GetConversations)
		support.POST("/pin", d.MessagesH.Pin)
		support.POST("/unpin", d.MessagesH.Unpin)
		support.GET("/pinned/:userId", d.MessagesH.GetPinned)
		support.GET("/export/:userId", d.MessagesH.ExportConversation)
		support.POST("/attachment", d.MessagesH.SendWithAttachment)

		admin := api.Group("/admin", adminOnly)
		admin.POST("/sessions/:userId/disconnect", d.UserH.ForceDisconnect)
	}
}
