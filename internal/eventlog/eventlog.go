// Package eventlog appends session events as JSON lines under
// <stateDir>/<session>/events.jsonl.
package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const FileName = "events.jsonl"

type Logger struct {
	path string
	mu   sync.Mutex
	seq  uint64
	now  func() time.Time
}

type Record struct {
	Timestamp     string `json:"timestamp"`
	Seq           uint64 `json:"seq"`
	Source        string `json:"source"`
	Type          string `json:"type"`
	Payload       any    `json:"payload"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
}

func New(stateDir string, sessionID string) *Logger {
	if sessionID == "" {
		sessionID = "sess_unknown"
	}
	dir := filepath.Join(stateDir, sessionID)
	_ = os.MkdirAll(dir, 0o755)
	return &Logger{path: filepath.Join(dir, FileName), now: time.Now}
}

func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append is best effort. A nil Logger drops everything.
func (l *Logger) Append(source string, eventType string, payload any, correlationID string, causationID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	rec := Record{
		Timestamp:     l.now().UTC().Format(time.RFC3339Nano),
		Seq:           l.seq,
		Source:        source,
		Type:          eventType,
		Payload:       payload,
		CorrelationID: correlationID,
		CausationID:   causationID,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(l.path), 0o755)
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	_, _ = f.Write(append(b, '\n'))
	_ = f.Close()
}

// Count returns the number of events appended by this logger.
func (l *Logger) Count() uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

type Alert struct {
	At            string         `json:"at"`
	Severity      Severity       `json:"severity"`
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Context       map[string]any `json:"context,omitempty"`
	CorrelationID string         `json:"correlation_id"`
}

func NewAlert(sev Severity, code, message string, ctx map[string]any) Alert {
	return Alert{
		At:            time.Now().UTC().Format(time.RFC3339Nano),
		Severity:      sev,
		Code:          code,
		Message:       message,
		Context:       ctx,
		CorrelationID: NewCorrelationID(),
	}
}

func NewCorrelationID() string {
	return uuid.NewString()
}
