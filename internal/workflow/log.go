package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/claimflow/internal/model"
)

// EventLog is the append-only, in-session audit trail of workflow steps.
type EventLog struct {
	now     func() time.Time
	logger  *slog.Logger
	entries []model.LogEntry
	mu      sync.RWMutex
}

func newEventLog(now func() time.Time, logger *slog.Logger) *EventLog {
	return &EventLog{now: now, logger: logger}
}

// Append records an entry and mirrors it to the structured logger.
func (l *EventLog) Append(kind model.LogKind, message, detail string) model.LogEntry {
	entry := model.LogEntry{
		Timestamp: l.now(),
		Kind:      kind,
		Message:   message,
		Detail:    detail,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	l.logger.LogAttrs(context.Background(), slog.LevelDebug, message,
		slog.String("kind", string(kind)),
		slog.String("detail", detail))

	return entry
}

// Entries returns a copy of the log in append order.
func (l *EventLog) Entries() []model.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Since returns the entries appended after the first n.
func (l *EventLog) Since(n int) []model.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(l.entries) {
		return nil
	}
	out := make([]model.LogEntry, len(l.entries)-n)
	copy(out, l.entries[n:])
	return out
}

// Len returns the number of entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
