package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"drawspace-backend/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg := config.Load()
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Canvas.SnapshotCoalesceWindow)
	assert.Equal(t, 60*time.Second, cfg.Canvas.HeartbeatTimeout)
	assert.Equal(t, 20, cfg.Canvas.DefaultMaxCollaborators)
	assert.Equal(t, 4096, cfg.Canvas.MaxCanvasDimension)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", ":9090")
	t.Setenv("CANVAS_SNAPSHOT_WINDOW", "250ms")
	t.Setenv("CANVAS_MAX_COLLABORATORS", "5")
	t.Setenv("CANVAS_HEARTBEAT_TIMEOUT", "30")

	cfg := config.Load()
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Canvas.SnapshotCoalesceWindow)
	assert.Equal(t, 5, cfg.Canvas.DefaultMaxCollaborators)
	// bare numbers are read as seconds
	assert.Equal(t, 30*time.Second, cfg.Canvas.HeartbeatTimeout)
}
