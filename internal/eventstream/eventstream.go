// Package eventstream writes a portable, jq-friendly JSONL mirror of
// mission events, complementing the SQLite event store for post-mission
// analysis without requiring a database connection to read.
package eventstream

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one line of the JSONL stream.
type Record struct {
	Timestamp    string         `json:"timestamp"`
	EventType    string         `json:"event_type"`
	MissionID    string         `json:"mission_id"`
	RoundID      string         `json:"round_id"`
	UnitID       string         `json:"unit_id"`
	WorkerID     string         `json:"worker_id"`
	Details      map[string]any `json:"details"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	CostUSD      float64        `json:"cost_usd"`
}

// Option configures an emitted Record.
type Option func(*Record)

func WithRound(roundID string) Option      { return func(r *Record) { r.RoundID = roundID } }
func WithUnit(unitID string) Option        { return func(r *Record) { r.UnitID = unitID } }
func WithWorker(workerID string) Option     { return func(r *Record) { r.WorkerID = workerID } }
func WithDetails(d map[string]any) Option  { return func(r *Record) { r.Details = d } }
func WithTokens(input, output int) Option  { return func(r *Record) { r.InputTokens = input; r.OutputTokens = output } }
func WithCost(costUSD float64) Option      { return func(r *Record) { r.CostUSD = costUSD } }

// Stream is an append-only JSONL writer. A nil *os.File (unopened
// stream) makes Emit a no-op, mirroring the teacher source's guard.
type Stream struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// New creates a Stream bound to path; call Open before Emit.
func New(path string) *Stream {
	return &Stream{path: path}
}

// Open creates the parent directory and opens the file for appending.
func (s *Stream) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create event stream directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	s.file = f
	return nil
}

// Close closes the underlying file, if open.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Emit appends one record and flushes immediately. A Stream that was
// never opened silently drops the event rather than erroring, so
// callers can wire this in optionally without nil-checking everywhere.
func (s *Stream) Emit(eventType string, missionID string, opts ...Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}

	rec := Record{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		MissionID: missionID,
		Details:   map[string]any{},
	}
	for _, opt := range opts {
		opt(&rec)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event stream record: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("write event stream record: %w", err)
	}
	return s.file.Sync()
}
