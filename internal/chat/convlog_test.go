package chat

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		UserID:     "user-1",
		SessionID:  "sess-1",
		Channel:    "chat_ws",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: "which university has the best CS program?",
	})

	line := waitForLogLine(t, filepath.Join(dir, "user-1", "sess-1.ndjson"))
	var got ConversationLogEvent
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, "which university has the best CS program?", got.ContentRaw)
	assert.NotEmpty(t, got.Content)
	assert.NotEmpty(t, got.Timestamp)
}

func TestConversationLoggerGlobalFileAndClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "all.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, nil)
	require.NoError(t, err)

	for _, sid := range []string{"tab:1", "tab-2"} {
		logger.Log(ConversationLogEvent{UserID: "user-1", SessionID: sid, ContentRaw: "hi"})
	}
	// Close drains the queue before returning.
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(global)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
	assert.FileExists(t, filepath.Join(dir, "user-1", "tab_1.ndjson"))

	// Logging after Close is dropped silently.
	logger.Log(ConversationLogEvent{UserID: "user-1", SessionID: "tab-2", ContentRaw: "late"})
}

func TestConversationLoggerDisabled(t *testing.T) {
	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.IsType(t, noopConversationLogger{}, logger)
	logger.Log(ConversationLogEvent{})
	assert.NoError(t, logger.Close())
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	clean := cleanForReadability("\x1b[31merror\x1b[0m plain")
	assert.NotContains(t, clean, "\x1b[31m")
	assert.Contains(t, clean, "error plain")
}

func TestCleanForReadabilitySqueezesBlankLines(t *testing.T) {
	assert.Equal(t, "a\n\nb", cleanForReadability("a  \r\n\n\n\n\nb\n"))
}

func TestSafePathComponent(t *testing.T) {
	assert.Equal(t, "unknown", safePathComponent(""))
	assert.Equal(t, "unknown", safePathComponent(".."))
	assert.Equal(t, "_etc_passwd", safePathComponent("/etc/passwd"))
	assert.Equal(t, "anon_abc", safePathComponent("anon_abc"))
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			return lines[len(lines)-1]
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
