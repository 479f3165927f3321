package domain

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

type PresenceState struct {
	UserID         string         `json:"user_id"`
	Status         PresenceStatus `json:"status"`
	LastSeen       *time.Time     `json:"last_seen,omitempty"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	// LastHeartbeatAt is stored with the state so any instance can tell a
	// live user from one whose server went away without a disconnect.
	LastHeartbeatAt time.Time `json:"-"`
}
