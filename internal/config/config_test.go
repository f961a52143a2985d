package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 2, c.Game.MinPlayers)
	assert.Equal(t, 5, c.Game.IDLength)
	assert.Equal(t, 20*time.Second, c.Game.AnswerTimeout)
	assert.Equal(t, "dev", c.Answer.DefaultModel)

	intro := c.Game.Stages["intro"]
	assert.Equal(t, 5*time.Second, intro.Duration)
	assert.True(t, intro.Skippable)
	assert.Equal(t, 15*time.Second, c.Game.Stages["eliminate"].Duration)
	assert.False(t, c.Game.Stages["answer"].Skippable)

	require.Len(t, c.Answer.Models, 2)
	assert.Equal(t, "mock", c.Answer.Models[0].Provider)
	assert.Equal(t, 5*time.Second, c.Answer.Models[0].Delay)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
game:
  min_players: 3
  answer_timeout: 5s
answer:
  default_model: fast
  models:
    - name: fast
      provider: mock
      delay: 10ms
      text: hello
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 3, c.Game.MinPlayers)
	assert.Equal(t, 5*time.Second, c.Game.AnswerTimeout)
	require.Len(t, c.Answer.Models, 1)
	assert.Equal(t, 10*time.Millisecond, c.Answer.Models[0].Delay)
	assert.Equal(t, "127.0.0.1:9090", ServerConfig{Host: "127.0.0.1", Port: 9090}.Address())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigLoad))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		code   apperrors.ErrorCode
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, apperrors.ErrConfigValidate},
		{"min players", func(c *Config) { c.Game.MinPlayers = 0 }, apperrors.ErrConfigValidate},
		{"negative stage", func(c *Config) {
			c.Game.Stages["intro"] = StageConfig{Duration: -time.Second}
		}, apperrors.ErrConfigValidate},
		{"no models", func(c *Config) { c.Answer.Models = nil }, apperrors.ErrConfigMissing},
		{"bad provider", func(c *Config) { c.Answer.Models[0].Provider = "gemini" }, apperrors.ErrConfigValidate},
		{"unknown default", func(c *Config) { c.Answer.DefaultModel = "missing" }, apperrors.ErrConfigValidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			require.NoError(t, c.Validate())
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}
