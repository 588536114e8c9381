// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/infra-healer/internal/config"
)

// syncBuffer is a goroutine-safe in-memory WriteSyncer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

func TestNewLogger(t *testing.T) {
	t.Run("console with colors", func(t *testing.T) {
		out := &syncBuffer{}
		logger := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "healer",
			Colors:      config.ColorConfig{Info: "cyan"},
		}, out)

		logger.Named("triage-classifier").Info("Classified failure.")

		output := out.String()
		assert.Contains(t, output, colorCyan+"INFO"+colorReset)
		assert.Contains(t, output, "healer.triage-classifier.")
		assert.Contains(t, output, "Classified failure.")
	})

	t.Run("default colors", func(t *testing.T) {
		out := &syncBuffer{}
		NewLogger(config.LoggerConfig{Level: "info", Format: "console"}, out).Warn("careful")
		assert.Contains(t, out.String(), colorYellow+"WARN"+colorReset)
	})

	t.Run("json", func(t *testing.T) {
		out := &syncBuffer{}
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, out)
		logger.Warn("This is a JSON message.", zap.String("key", "value"))
		logger.Debug("filtered out")

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(out.String()), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		out := &syncBuffer{}
		logger := NewLogger(config.LoggerConfig{Level: "loud", Format: "json"}, out)
		logger.Debug("hidden")
		logger.Info("shown")
		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "healer.log")
		logger := NewLogger(config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1}, &syncBuffer{})
		logger.Error("This should go to the file.")
		require.NoError(t, logger.Sync())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"This should go to the file."`)
	})
}

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("only the first call counts", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}

		logger1 := Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, out)
		logger2 := Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, out)
		assert.Same(t, logger1, logger2)
		assert.Same(t, logger1, GetLogger())

		logger2.Info("test")
		Sync()
		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})

	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
		assert.Nil(t, globalLogger.Load())
	})
}
