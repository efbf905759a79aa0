package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.App.Port)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Session.RotateAfter)
	assert.Equal(t, 14, cfg.Lending.OverdueDays)
	assert.Equal(t, 2, cfg.Lending.FeePerDay)
	assert.Equal(t, 50, cfg.Lending.MaxFee)
	assert.False(t, cfg.Supabase.Enabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ADMIN_EMAILS", " Boss@Example.com ,,ops@example.com")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("OVERDUE_DAYS", "7")
	t.Setenv("WEB_ORIGIN", "https://lend.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, []string{"boss@example.com", "ops@example.com"}, cfg.Auth.AdminEmails)
	assert.True(t, cfg.Auth.IsAdminEmail("BOSS@example.com"))
	assert.False(t, cfg.Auth.IsAdminEmail(""))
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 7, cfg.Lending.OverdueDays)
	assert.True(t, cfg.App.SecureCookies())
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestDSNString(t *testing.T) {
	d := DBConfig{Host: "db", Port: 6543, User: "lend", Password: "pw", Name: "games", SSLMode: "require"}
	assert.Equal(t, "host=db user=lend password=pw dbname=games port=6543 sslmode=require", d.DSNString())

	d.DSN = "postgres://lend@db/games"
	assert.Equal(t, "postgres://lend@db/games", d.DSNString())
}
