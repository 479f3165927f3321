package service

import (
	"context"
	"time"

	"realtime_chat/internal/repository"
	"realtime_chat/pkg/logger"
)

type RateLimitService interface {
	// Allow counts one request for key and reports whether it is within
	// the configured rate, plus how many requests remain in the window.
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Limit() int
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	limit         int
	window        time.Duration
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, perMinute int, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		limit:         perMinute,
		window:        time.Minute,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string) (bool, int, error) {
	if s.limit <= 0 {
		return true, 0, nil
	}
	return s.rateLimitRepo.Hit(ctx, key, s.limit, s.window)
}

func (s *rateLimitService) Limit() int {
	return s.limit
}
