package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wfunc/ai-imposter/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestBuildWritesFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := build(&config.LogConfig{
		Level:  "debug",
		Format: "json",
		Output: "file",
		File:   config.LogFileConfig{Path: dir, Filename: "test.log", MaxSize: 1},
	})
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, l.Sync())
	assert.FileExists(t, dir+"/test.log")

	SetLevel("error")
	assert.Equal(t, zapcore.ErrorLevel, Level())
	SetLevel("info")
}

func TestGameHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	LogGameEvent(l, "player_joined", "ab12c", zap.String("player_id", "p1"))
	LogStageTransition(l, "ab12c", "lobby", "intro", "start_game")
	LogAnswerCall(l, "dev", time.Millisecond, errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "game_event", entries[0].Message)
	assert.Equal(t, "ab12c", entries[0].ContextMap()["session_id"])
	assert.Equal(t, "intro", entries[1].ContextMap()["to"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}
