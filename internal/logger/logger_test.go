package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_parseLevel(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(input)
		require.NoError(t, err, "level %q", input)
		require.Equal(t, want, got, "level %q", input)
	}

	for _, input := range []string{"", "verbose"} {
		_, err := parseLevel(input)
		require.Error(t, err, "level %q has to be rejected", input)
	}
}

func TestLogger_NewWriter(t *testing.T) {
	t.Parallel()

	t.Run("production writes json", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWriter(&buf, EnvProduction, LevelInfo)
		require.NoError(t, err)

		l.With("component", "auth").Info("user logged in", "user_id", "42")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "production logger must write json: %s", buf.String())
		require.Equal(t, "user logged in", entry["msg"])
		require.Equal(t, "INFO", entry["level"])
		require.Equal(t, "auth", entry["component"])
		require.Equal(t, "42", entry["user_id"])

		source, ok := entry["source"].(map[string]any)
		require.True(t, ok, "source has to be attached")
		require.Equal(t, "logger_test.go", source["file"], "caller file without directory, not the wrapper")
	})

	t.Run("development writes text", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWriter(&buf, EnvDevelopment, LevelInfo)
		require.NoError(t, err)

		l.WithGroup("req").Warn("slow request", "id", 1)

		require.Contains(t, buf.String(), `msg="slow request"`)
		require.Contains(t, buf.String(), "level=WARN")
		require.Contains(t, buf.String(), "req.id=1")
	})

	t.Run("level filters lower records", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWriter(&buf, EnvDevelopment, LevelWarn)
		require.NoError(t, err)

		l.Debug("debug")
		l.Info("info")
		require.Empty(t, buf.String())

		l.Error("failed")
		require.Contains(t, buf.String(), "msg=failed")
	})

	t.Run("unknown level fails", func(t *testing.T) {
		_, err := New(EnvProduction, "verbose")
		require.Error(t, err)
	})
}

func TestLogger_NewNoOpLogger(t *testing.T) {
	t.Parallel()

	l := NewNoOpLogger().With("component", "test")
	require.NotPanics(t, func() {
		l.Error("dropped")
		l.WithGroup("g").Info("dropped")
	})
}
