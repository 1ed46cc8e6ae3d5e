package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MEKXH/autorecord/internal/recorder"
)

const (
	auditFileMode = 0644
	auditDirMode  = 0755
)

// Decision event types, one per engine entry point.
const (
	TypeAppStart  = "app_start"
	TypePublish   = "publish"
	TypeUnpublish = "unpublish"
)

// Recorder lifecycle event types, reported by the recorder registry.
const (
	TypeRecorderCreate = "recorder_create"
	TypeRecorderStart  = "recorder_start"
	TypeRecorderStop   = "recorder_stop"
)

// Event is one audit record written as a single JSON line. Decision events
// carry Mode, Action and Reason; recorder events carry State and the file
// settings the recorder was created with.
type Event struct {
	Time        time.Time `json:"time"`
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id,omitempty"`
	Application string    `json:"application"`
	Stream      string    `json:"stream,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	Action      string    `json:"action,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	State       string    `json:"state,omitempty"`
	Format      string    `json:"format,omitempty"`
	Segment     string    `json:"segment,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NewRecorderEvent describes a recorder lifecycle change. The event time is
// when the recorder started writing for starts and its creation time for
// creates; stops are stamped on append.
func NewRecorderEvent(kind string, info recorder.Info) Event {
	ev := Event{
		Type:        kind,
		Application: info.Application,
		Stream:      info.Stream,
		State:       string(info.State),
		Format:      info.Params.FileFormat,
		Segment:     info.Params.SegmentationType,
	}
	switch kind {
	case TypeRecorderCreate:
		ev.Time = info.CreatedAt
	case TypeRecorderStart:
		ev.Time = info.StartedAt
	}
	return ev
}

// Writer appends audit events to <stateDir>/audit.jsonl.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates an append-only audit writer rooted at stateDir.
func NewWriter(stateDir string) *Writer {
	return &Writer{
		path: filepath.Join(stateDir, "audit.jsonl"),
	}
}

// Path returns the audit log location.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one event as one JSONL line.
func (w *Writer) Append(event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), auditDirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	encoded = append(encoded, '\n')

	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	return nil
}
