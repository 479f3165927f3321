package service

import (
	"realtime_chat/internal/config"
	"realtime_chat/internal/metrics"
	"realtime_chat/internal/repository"
	"realtime_chat/pkg/logger"
)

type Services struct {
	Conversation ConversationService
	Message      MessageService
	Reaction     ReactionService
	Receipt      ReceiptService
	Presence     PresenceService
	File         FileService
	Report       ReportService
	RateLimit    RateLimitService
}

func NewServices(repos *repository.Repositories, rt Realtime, storage ObjectStorage, cfg *config.Config, m *metrics.Metrics, log logger.Logger) *Services {
	conversations := NewConversationService(repos.Conversation, rt, log)

	return &Services{
		Conversation: conversations,
		Message:      NewMessageService(repos.Message, repos.ThreadSubscription, conversations, rt, m, log),
		Reaction:     NewReactionService(repos.Reaction, repos.Message, conversations, rt, log),
		Receipt:      NewReceiptService(repos.ReadReceipt, repos.Message, conversations, rt, log),
		Presence:     NewPresenceService(repos.Presence, rt, cfg.Presence, m, log),
		File:         NewFileService(storage, cfg.Upload.MaxBytes, log),
		Report:       NewReportService(repos.Report, repos.Message, conversations, log),
		RateLimit:    NewRateLimitService(repos.RateLimit, cfg.RateLimit.PerMinute, log),
	}
}
