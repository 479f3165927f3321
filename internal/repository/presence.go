package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

const (
	// PresenceTTL bounds how long an idle user's row is kept.
	PresenceTTL = 7 * 24 * time.Hour

	PresenceKeyPrefix = "presence:state:%s"
)

type PresenceRepository interface {
	Save(ctx context.Context, state *domain.PresenceState) error
	// Touch records a heartbeat without changing the stored status.
	Touch(ctx context.Context, userID string, at time.Time) error
	// Get fails with NotFound for users never seen.
	Get(ctx context.Context, userID string) (*domain.PresenceState, error)
	// GetMany omits users never seen.
	GetMany(ctx context.Context, userIDs []string) (map[string]*domain.PresenceState, error)
}

type presenceRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewPresenceRepository(rdb *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{rdb: rdb, log: log}
}

func presenceKey(userID string) string {
	return fmt.Sprintf(PresenceKeyPrefix, userID)
}

func (r *presenceRepository) Save(ctx context.Context, state *domain.PresenceState) error {
	key := presenceKey(state.UserID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"status", string(state.Status),
			"last_activity_at", strconv.FormatInt(state.LastActivityAt.UnixMilli(), 10),
		)
		if !state.LastHeartbeatAt.IsZero() {
			pipe.HSet(ctx, key, "last_heartbeat_at", strconv.FormatInt(state.LastHeartbeatAt.UnixMilli(), 10))
		}
		if state.LastSeen != nil {
			pipe.HSet(ctx, key, "last_seen", strconv.FormatInt(state.LastSeen.UnixMilli(), 10))
		} else {
			pipe.HDel(ctx, key, "last_seen")
		}
		pipe.Expire(ctx, key, PresenceTTL)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to save presence", "error", err, "user_id", state.UserID)
		return apperrors.Unavailable(err, "save presence")
	}
	return nil
}

func (r *presenceRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	key := presenceKey(userID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "last_heartbeat_at", strconv.FormatInt(at.UnixMilli(), 10))
		pipe.Expire(ctx, key, PresenceTTL)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to record heartbeat", "error", err, "user_id", userID)
		return apperrors.Unavailable(err, "touch presence")
	}
	return nil
}

func (r *presenceRepository) Get(ctx context.Context, userID string) (*domain.PresenceState, error) {
	fields, err := r.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		r.log.Error("Failed to get presence", "error", err, "user_id", userID)
		return nil, apperrors.Unavailable(err, "get presence")
	}
	if len(fields) == 0 {
		return nil, apperrors.NotFound("presence for %s not found", userID)
	}
	return decodePresence(userID, fields), nil
}

func (r *presenceRepository) GetMany(ctx context.Context, userIDs []string) (map[string]*domain.PresenceState, error) {
	result := make(map[string]*domain.PresenceState, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = pipe.HGetAll(ctx, presenceKey(id))
		}
		return nil
	})
	if err != nil {
		r.log.Error("Failed to get presence batch", "error", err, "count", len(userIDs))
		return nil, apperrors.Unavailable(err, "get presence")
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		result[userIDs[i]] = decodePresence(userIDs[i], fields)
	}
	return result, nil
}

func decodePresence(userID string, fields map[string]string) *domain.PresenceState {
	state := &domain.PresenceState{
		UserID: userID,
		Status: domain.PresenceStatus(fields["status"]),
	}
	if !state.Status.Valid() {
		state.Status = domain.PresenceOffline
	}
	if ms, err := strconv.ParseInt(fields["last_activity_at"], 10, 64); err == nil {
		state.LastActivityAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields["last_heartbeat_at"], 10, 64); err == nil {
		state.LastHeartbeatAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		seen := time.UnixMilli(ms).UTC()
		state.LastSeen = &seen
	}
	return state
}
