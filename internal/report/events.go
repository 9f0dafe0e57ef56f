package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventFetch     EventType = "fetch"
	EventTransform EventType = "transform"
	EventReconcile EventType = "reconcile"
	EventDelete    EventType = "delete"
	EventChunk     EventType = "chunk"
	EventDegrade   EventType = "degrade"
	EventVerify    EventType = "verify"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in the migration pipeline
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	RunID      string            `json:"run_id,omitempty"`
	Strategy   string            `json:"strategy,omitempty"`
	GroupKey   string            `json:"group_key,omitempty"`
	ChunkIndex int               `json:"chunk_index,omitempty"`
	ChunkSize  int               `json:"chunk_size,omitempty"`
	Attempt    int               `json:"attempt,omitempty"`
	Count      int               `json:"count,omitempty"`
	Expected   int               `json:"expected,omitempty"`
	Actual     int               `json:"actual,omitempty"`
	Action     string            `json:"action,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Duration   int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger for one run. minLevel
// determines which events are written (e.g. LevelInfo skips LevelDebug).
func NewEventLogger(outputDir, runID string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("run-%s.jsonl", runID))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    runID,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogFetch logs the source dataset download
func (l *EventLogger) LogFetch(url string, sizeBytes int, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventFetch,
		Count:    sizeBytes,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
		Extra:    map[string]string{"url": url},
	})
}

// LogTransform logs the flattening stage with its skip accounting
func (l *EventLogger) LogTransform(groupKey string, voicings, skipped, groups int) error {
	level := LevelInfo
	if skipped > 0 {
		level = LevelWarning
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventTransform,
		GroupKey: groupKey,
		Count:    voicings,
		Extra: map[string]string{
			"skipped": fmt.Sprintf("%d", skipped),
			"groups":  fmt.Sprintf("%d", groups),
		},
	})
}

// LogReconcile logs the reconciliation decision
func (l *EventLogger) LogReconcile(strategy string, toDelete, toInsert, duplicates int) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventReconcile,
		Strategy: strategy,
		Count:    toInsert,
		Extra: map[string]string{
			"to_delete":  fmt.Sprintf("%d", toDelete),
			"duplicates": fmt.Sprintf("%d", duplicates),
		},
	})
}

// LogDelete logs one batched delete against the partition
func (l *EventLogger) LogDelete(chunkIndex, chunkSize int, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventDelete,
		ChunkIndex: chunkIndex,
		ChunkSize:  chunkSize,
		Error:      errMsg,
	})
}

// LogChunk logs one insert chunk attempt
func (l *EventLogger) LogChunk(chunkIndex, chunkSize, attempt int, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventChunk,
		ChunkIndex: chunkIndex,
		ChunkSize:  chunkSize,
		Attempt:    attempt,
		Duration:   duration.Milliseconds(),
		Error:      errMsg,
	})
}

// LogChunkFailed logs a chunk whose retry budget is exhausted
func (l *EventLogger) LogChunkFailed(chunkIndex, chunkSize int, reason string) error {
	return l.Log(&Event{
		Level:      LevelError,
		Event:      EventChunk,
		ChunkIndex: chunkIndex,
		ChunkSize:  chunkSize,
		Action:     "failed",
		Reason:     reason,
	})
}

// LogDegrade logs a large chunk being retried as smaller sub-chunks
func (l *EventLogger) LogDegrade(chunkIndex, chunkSize, subChunkSize int) error {
	return l.Log(&Event{
		Level:      LevelWarning,
		Event:      EventDegrade,
		ChunkIndex: chunkIndex,
		ChunkSize:  chunkSize,
		Count:      subChunkSize,
	})
}

// LogVerifyChunk logs a per-chunk verification re-query
func (l *EventLogger) LogVerifyChunk(chunkIndex, expected, actual int) error {
	level := LevelDebug
	if actual < expected {
		level = LevelWarning
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventVerify,
		ChunkIndex: chunkIndex,
		Expected:   expected,
		Actual:     actual,
		Action:     "chunk",
	})
}

// LogVerify logs the final partition verification
func (l *EventLogger) LogVerify(expected, actual int, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	} else if actual != expected {
		level = LevelWarning
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventVerify,
		Expected: expected,
		Actual:   actual,
		Error:    errMsg,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, reason string, err error) error {
	return l.Log(&Event{
		Level:  LevelError,
		Event:  event,
		Reason: reason,
		Error:  err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
