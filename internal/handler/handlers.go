package handler

import (
	"github.com/gin-gonic/gin"
	"realtime_chat/internal/config"
	"realtime_chat/internal/realtime"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Conversation *ConversationHandler
	Message      *MessageHandler
	Reaction     *ReactionHandler
	Presence     *PresenceHandler
	File         *FileHandler
	Report       *ReportHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, router *realtime.Router, cfg *config.Config, log logger.Logger, checks ...HealthCheck) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(checks...),
		Conversation: NewConversationHandler(services.Conversation, services.Receipt, log),
		Message:      NewMessageHandler(services.Message, services.Receipt, log),
		Reaction:     NewReactionHandler(services.Reaction, log),
		Presence:     NewPresenceHandler(services.Presence, log),
		File:         NewFileHandler(services.File, cfg.Upload.MaxBytes, log),
		Report:       NewReportHandler(services.Report, log),
		WebSocket:    NewWebSocketHandler(router, services.Conversation, services.Presence, cfg.Realtime, cfg.Server.CORSAllowedOrigins, log),
	}
}

// RegisterRoutes mounts the authenticated API on api. The caller applies
// authentication and rate limiting to the group.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	conversations := api.Group("/conversations")
	{
		conversations.POST("/dm", h.Conversation.CreateDM)
		conversations.POST("/groups", h.Conversation.CreateGroup)
		conversations.GET("", h.Conversation.List)
		conversations.GET("/:id", h.Conversation.Get)
		conversations.POST("/:id/members", h.Conversation.AddMember)
		conversations.DELETE("/:id/members/:userId", h.Conversation.RemoveMember)
		conversations.POST("/:id/leave", h.Conversation.Leave)
		conversations.POST("/:id/read", h.Conversation.MarkRead)
		conversations.GET("/:id/messages", h.Message.GetMessages)
		conversations.POST("/:id/messages", h.Message.SendMessage)
	}

	messages := api.Group("/messages")
	{
		messages.GET("/receipts", h.Message.GetReceipts)
		messages.GET("/search", h.Message.SearchMessages)
		messages.GET("/:messageId", h.Message.GetMessage)
		messages.PATCH("/:messageId", h.Message.EditMessage)
		messages.DELETE("/:messageId", h.Message.DeleteMessage)
		messages.GET("/:messageId/thread", h.Message.GetThread)
		messages.POST("/:messageId/thread", h.Message.ReplyInThread)
		messages.GET("/:messageId/thread/count", h.Message.GetThreadCount)
		messages.GET("/:messageId/thread/subscription", h.Message.GetThreadSubscription)
		messages.PUT("/:messageId/thread/subscription", h.Message.SetThreadSubscription)
		messages.GET("/:messageId/reactions", h.Reaction.List)
		messages.POST("/:messageId/reactions", h.Reaction.Toggle)
		messages.POST("/:messageId/report", h.Report.ReportMessage)
	}

	users := api.Group("/users")
	{
		users.PUT("/me/status", h.Presence.UpdateStatus)
		users.GET("/presence", h.Presence.Get)
		users.POST("/:userId/report", h.Report.ReportUser)
	}

	api.POST("/files", h.File.Upload)
}
