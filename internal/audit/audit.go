// Package audit provides structured event logging for sandbox sessions.
// Events are stored as JSON Lines (JSONL), one file per project.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType classifies a session event.
type EventType string

const (
	EventSessionStart EventType = "session-start"
	EventProvision    EventType = "provision"
	EventReuse        EventType = "reuse"
	EventRecreate     EventType = "recreate"
	EventExec         EventType = "exec"
	EventSync         EventType = "sync"
	EventConflict     EventType = "conflict"
	EventSessionEnd   EventType = "session-end"
	EventAbort        EventType = "abort"
	EventTeardown     EventType = "teardown"
	EventError        EventType = "error"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Session   string    `json:"session,omitempty"`
	Details   string    `json:"details,omitempty"`
	Paths     []string  `json:"paths,omitempty"`
}

// Logger writes and reads audit events for one project.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger creates a new audit logger writing to path.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Path returns the event log location.
func (l *Logger) Path() string {
	return l.path
}

// Record appends an event to the log.
func (l *Logger) Record(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// RecordEvent is a convenience method that creates and records an event.
func (l *Logger) RecordEvent(eventType EventType, session, details string) error {
	return l.Record(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Session:   session,
		Details:   details,
	})
}

// Events reads all events in chronological order.
func (l *Logger) Events() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// SessionEvents returns the events recorded for one session.
func (l *Logger) SessionEvents(session string) ([]Event, error) {
	all, err := l.Events()
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, e := range all {
		if e.Session == session {
			events = append(events, e)
		}
	}
	return events, nil
}

// Remove deletes the audit log.
func (l *Logger) Remove() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
