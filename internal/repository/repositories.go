package repository

import (
	"github.com/redis/go-redis/v9"
	"realtime_chat/pkg/logger"
)

type Repositories struct {
	Conversation ConversationRepository
	Message      MessageRepository
	Reaction     ReactionRepository
	ReadReceipt  ReadReceiptRepository
	Report       ReportRepository
	Presence     PresenceRepository
	RateLimit    RateLimitRepository

	ThreadSubscription ThreadSubscriptionRepository
}

// NewRepositories builds the PostgreSQL and Redis backed repositories.
// Either backend may be nil; the matching fields are then left nil for the
// caller to fill (see memory.Fill).
func NewRepositories(db DB, rdb *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{}

	if db != nil {
		repos.Conversation = NewConversationRepository(db, log)
		repos.Message = NewMessageRepository(db, log)
		repos.Reaction = NewReactionRepository(db, log)
		repos.ReadReceipt = NewReadReceiptRepository(db, log)
		repos.Report = NewReportRepository(db, log)
		repos.ThreadSubscription = NewThreadSubscriptionRepository(db, log)
		log.Info("PostgreSQL repositories initialized")
	} else {
		log.Warn("No database configured, relational repositories not initialized")
	}

	if rdb != nil {
		repos.Presence = NewPresenceRepository(rdb, log)
		repos.RateLimit = NewRateLimitRepository(rdb, log)
		log.Info("Redis repositories initialized")
	} else {
		log.Warn("No Redis configured, presence and rate limit repositories not initialized")
	}

	return repos
}
