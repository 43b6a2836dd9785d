package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/prediction"
)

func reset(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv(EnvToken, "")
	t.Setenv(EnvDeprecatedToken, "")
	t.Setenv(EnvLegacyClient, "")
	t.Setenv("IDEAFORGE_REPLICATE_API_TOKEN", "")
	SetDefaults()
}

func TestDefaults(t *testing.T) {
	reset(t)
	s := Load()
	assert.Equal(t, "https://api.replicate.com/v1", s.Replicate.BaseURL)
	assert.Equal(t, 3000, s.Server.Port)
	assert.Equal(t, "midnight", s.Theme)
	assert.Equal(t, 128, s.Cache.Size)
	assert.Equal(t, time.Second, s.Poll.Interval)
	assert.Equal(t, 120, s.Poll.MaxAttempts)
	assert.Equal(t, 30*time.Second, s.Poll.CreateTimeout)
	assert.Equal(t, 10*time.Second, s.Poll.StatusTimeout)
	assert.Empty(t, s.Server.AllowedOrigins)
}

func TestAllowedOriginsFromEnv(t *testing.T) {
	reset(t)
	t.Setenv("IDEAFORGE_SERVER_ALLOWED_ORIGINS", "http://localhost:5173, https://ideas.example.com")
	s := Load()
	assert.Equal(t, []string{"http://localhost:5173", "https://ideas.example.com"}, s.Server.AllowedOrigins)
}

func TestPrefixedEnvOverrides(t *testing.T) {
	reset(t)
	t.Setenv("IDEAFORGE_SERVER_PORT", "8088")
	t.Setenv("IDEAFORGE_POLL_INTERVAL", "250ms")
	s := Load()
	assert.Equal(t, 8088, s.Server.Port)
	assert.Equal(t, 250*time.Millisecond, s.Poll.Interval)
}

func TestTokenResolution(t *testing.T) {
	reset(t)
	assert.Empty(t, Token())

	t.Setenv(EnvDeprecatedToken, "old")
	assert.Equal(t, "old", Token())

	viper.Set(KeyToken, "from-file")
	assert.Equal(t, "from-file", Token())

	t.Setenv(EnvToken, "canonical")
	viper.Reset()
	SetDefaults()
	assert.Equal(t, "canonical", Token())
}

func TestLegacyClientToken(t *testing.T) {
	reset(t)
	assert.False(t, LegacyClientToken())
	t.Setenv(EnvLegacyClient, "r8_public")
	assert.True(t, LegacyClientToken())
}

func TestInitConfigWithFile(t *testing.T) {
	reset(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replicate_api_token: r8_file\ntheme: pastel\npoll:\n  max_attempts: 5\n"), 0o600))

	t.Chdir(dir)
	require.NoError(t, InitConfig(path))
	assert.Equal(t, "r8_file", Token())
	s := Load()
	assert.Equal(t, "pastel", s.Theme)
	assert.Equal(t, 5, s.Poll.MaxAttempts)

	require.NoError(t, SaveToken("r8_new"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "r8_new")
}

func TestApply(t *testing.T) {
	c := prediction.New("http://relay", nil, "")
	var s Settings
	s.Poll.MaxAttempts = 3
	s.Poll.Interval = time.Millisecond
	s.Apply(c)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, time.Millisecond, c.PollInterval)
	assert.Equal(t, prediction.DefaultCreateTimeout, c.CreateTimeout)
}
