package observability

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/supportdesk/ticket-lifecycle/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(config.LoggerConfig{Level: "warn", Format: format}, "test")
		require.NoError(t, err)
		require.False(t, logger.Core().Enabled(zapcore.InfoLevel), format)
		require.True(t, logger.Core().Enabled(zapcore.WarnLevel), format)
	}
}
