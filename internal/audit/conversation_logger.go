// Package audit writes an append-only NDJSON record of every thread conversation.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event types.
const (
	EventUserMessage = "user_message"
	EventDecision    = "decision"
	EventOutcome     = "outcome"
)

// Event is one line of a thread's conversation log.
type Event struct {
	Timestamp  time.Time      `json:"ts"`
	ThreadID   string         `json:"thread_id"`
	RequestID  string         `json:"request_id,omitempty"`
	Direction  string         `json:"direction"` // inbound | outbound
	EventType  string         `json:"event_type"`
	Status     string         `json:"status,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records conversation events.
type ConversationLogger interface {
	Log(event Event)
	Close() error
}

// Config controls the NDJSON logger.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Noop discards all events.
type Noop struct{}

// Log does nothing.
func (Noop) Log(Event) {}

// Close does nothing.
func (Noop) Close() error { return nil }

// FileLogger appends events to <dir>/<thread_id>.ndjson from a single writer goroutine.
type FileLogger struct {
	dir    string
	queue  chan Event
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

var errEmptyDir = errors.New("conversation log dir is required")

// NewConversationLogger returns a Noop logger when disabled.
func NewConversationLogger(cfg Config, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if cfg.Dir == "" {
		return nil, errEmptyDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &FileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues the event. Events are dropped with a warning when the queue is full.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Content == "" && event.ContentRaw != "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"thread_id", event.ThreadID, "event_type", event.EventType)
	}
}

// Close drains pending events and stops the writer.
func (l *FileLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
	})
	return nil
}

func (l *FileLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		if err := l.write(event); err != nil {
			l.logger.Warn("failed to write conversation log", "thread_id", event.ThreadID, "error", err)
		}
	}
}

func (l *FileLogger) write(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	path := filepath.Join(l.dir, safeFileName(event.ThreadID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

var (
	ansiPattern   = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	unsafePathRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

func cleanForReadability(raw string) string {
	clean := ansiPattern.ReplaceAllString(raw, "")
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	return strings.TrimSpace(clean)
}

func safeFileName(threadID string) string {
	name := unsafePathRun.ReplaceAllString(threadID, "_")
	name = strings.Trim(name, ".")
	if name == "" {
		return "unknown"
	}
	return name
}
