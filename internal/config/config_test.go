package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("BROKER_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, 3, cfg.Presence.MissThreshold)
	assert.Equal(t, 90*time.Second, cfg.Presence.OfflineAfter())
	assert.Equal(t, 300*time.Second, cfg.Presence.AwayTimeout)
	assert.Equal(t, int64(10_000_000), cfg.Upload.MaxBytes)
	assert.Equal(t, 128, cfg.Realtime.SendBuffer)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("BROKER_DRIVER", "memory")
	t.Setenv("UPLOAD_MAX_BYTES", "5MiB")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WS_INBOUND_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(5<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 2.5, cfg.Realtime.InboundRPS)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err = Load()
	assert.ErrorContains(t, err, "unknown storage driver")

	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("BROKER_DRIVER", "kafka")
	_, err = Load()
	assert.ErrorContains(t, err, "unknown broker driver")
}
