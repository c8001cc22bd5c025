package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waymark-app/waymark/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("WAYMARK_SERVER_URL", "https://api.example.com")
	t.Setenv("WAYMARK_BEARER", "tok")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.ServerURL)
	assert.Equal(t, "tok", cfg.Bearer)
	assert.Equal(t, "data/mailbox.db", cfg.MailboxPath)
	assert.Equal(t, "127.0.0.1:7411", cfg.WakeAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 25*time.Second, cfg.ActionBudget)
}

func TestLoad_MissingRequiredListsAll(t *testing.T) {
	t.Setenv("WAYMARK_SERVER_URL", "")
	t.Setenv("WAYMARK_BEARER", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WAYMARK_SERVER_URL")
	assert.Contains(t, err.Error(), "WAYMARK_BEARER")
}

func TestLoad_TrimsTrailingSlash(t *testing.T) {
	t.Setenv("WAYMARK_SERVER_URL", "https://api.example.com/")
	t.Setenv("WAYMARK_BEARER", "tok")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.ServerURL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("WAYMARK_MAILBOX_PATH", "/tmp/box.db")
	t.Setenv("WAYMARK_RECONCILE_INTERVAL", "90s")
	t.Setenv("WAYMARK_ACTION_BUDGET", "10s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/box.db", cfg.MailboxPath)
	assert.Equal(t, 90*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 10*time.Second, cfg.ActionBudget)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("WAYMARK_RECONCILE_INTERVAL", "soon")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
}
