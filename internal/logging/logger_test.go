package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestInit_AdjustsLevelWithoutReplacingLogger(t *testing.T) {
	Init("info")
	first := Logger()
	assert.False(t, first.Enabled(context.Background(), slog.LevelDebug))

	Init("debug")
	assert.Same(t, first, Logger())
	assert.True(t, first.Enabled(context.Background(), slog.LevelDebug))
	Init("info")
}
