package model

import "time"

// LogKind classifies a workflow log entry.
type LogKind string

// Log kinds.
const (
	LogSuccess LogKind = "success"
	LogError   LogKind = "error"
	LogInfo    LogKind = "info"
)

// LogEntry is one line of the user-visible workflow audit trail.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      LogKind   `json:"kind"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
}
