package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/agentdesk/internal/config"
)

// TranscriptEntry is one NDJSON transcript line.
type TranscriptEntry struct {
	Timestamp time.Time `json:"ts"`
	ConnID    string    `json:"conn_id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

// TranscriptLogger appends chat turns to per-conversation NDJSON files,
// one file per connection grouped by user. Writes happen on a background
// goroutine; Log never blocks the chat path, entries are dropped when the
// queue is full.
type TranscriptLogger struct {
	dir    string
	queue  chan TranscriptEntry
	logger *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTranscriptLogger creates the logger and starts its writer goroutine.
// Returns (nil, nil) when transcript logging is disabled.
func NewTranscriptLogger(cfg config.TranscriptLogConfig, logger *slog.Logger) (*TranscriptLogger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	t := &TranscriptLogger{
		dir:    cfg.Dir,
		queue:  make(chan TranscriptEntry, queueSize),
		logger: logger,
	}
	t.wg.Add(1)
	go t.writeLoop()
	return t, nil
}

// Log enqueues one entry. Safe to call concurrently; drops when full.
func (t *TranscriptLogger) Log(entry TranscriptEntry) {
	select {
	case t.queue <- entry:
	default:
		t.logger.Warn("transcript queue full, dropping entry",
			"conn_id", entry.ConnID, "user_id", entry.UserID)
	}
}

// Close stops the writer after draining queued entries.
func (t *TranscriptLogger) Close() error {
	t.closeOnce.Do(func() {
		close(t.queue)
	})
	t.wg.Wait()
	return nil
}

func (t *TranscriptLogger) writeLoop() {
	defer t.wg.Done()
	for entry := range t.queue {
		if err := t.append(entry); err != nil {
			t.logger.Error("transcript write failed",
				"conn_id", entry.ConnID, "user_id", entry.UserID, "error", err)
		}
	}
}

func (t *TranscriptLogger) append(entry TranscriptEntry) error {
	userDir := filepath.Join(t.dir, sanitizePathComponent(entry.UserID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}

	path := filepath.Join(userDir, sanitizePathComponent(entry.ConnID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode transcript entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

// sanitizePathComponent keeps IDs from escaping the transcript directory.
func sanitizePathComponent(s string) string {
	if s == "" {
		return "unknown"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
