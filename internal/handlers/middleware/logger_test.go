package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

// Keeps every record with its fields
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level string, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[args[i].(string)] = args[i+1]
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args...) }

func TestLoggerMiddleware(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, target string, h http.HandlerFunc) logEntry {
		t.Helper()
		l := &recordingLogger{}

		req := httptest.NewRequest(http.MethodPost, target, nil)
		req.RemoteAddr = "10.0.0.7:51234"
		LoggerMiddleware(l)(h).ServeHTTP(httptest.NewRecorder(), req)

		require.Len(t, l.entries, 1, "one record per request")
		return l.entries[0]
	}

	t.Run("request fields without query", func(t *testing.T) {
		entry := serve(t, "/auth/set-new-password?t=secret&tid=1", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("accepted"))
		})

		assert.Equal(t, "info", entry.level)
		assert.Equal(t, "HTTP request served", entry.msg)
		assert.Equal(t, http.MethodPost, entry.fields["method"])
		assert.Equal(t, "/auth/set-new-password", entry.fields["path"], "query may carry secrets")
		assert.Equal(t, "10.0.0.7", entry.fields["ip"])
		assert.Equal(t, http.StatusAccepted, entry.fields["status"])
		assert.Equal(t, len("accepted"), entry.fields["size"])
		assert.Contains(t, entry.fields, "duration")
	})

	t.Run("implicit ok status", func(t *testing.T) {
		entry := serve(t, "/users", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{}"))
		})

		assert.Equal(t, http.StatusOK, entry.fields["status"])
	})

	t.Run("client errors stay on info", func(t *testing.T) {
		entry := serve(t, "/auth/login", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		assert.Equal(t, "info", entry.level)
		assert.Equal(t, http.StatusUnauthorized, entry.fields["status"])
	})

	t.Run("server failures on error level", func(t *testing.T) {
		entry := serve(t, "/auth/register", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		assert.Equal(t, "error", entry.level)
		assert.Equal(t, http.StatusInternalServerError, entry.fields["status"])
	})
}
