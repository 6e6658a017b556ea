package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/talgya/sosim/internal/logging"
	"github.com/talgya/sosim/internal/model"
)

// Sink consumes the result of each tick. Sinks see events in the order
// Update produced them.
type Sink interface {
	Record(tick int, ur model.UpdateResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(tick int, ur model.UpdateResult) error

func (f SinkFunc) Record(tick int, ur model.UpdateResult) error { return f(tick, ur) }

// MemorySink keeps events and diagnostics in memory. A positive Limit keeps
// only the most recent entries of each.
type MemorySink struct {
	Limit int

	mu          sync.Mutex
	events      []model.LogEvent
	diagnostics []model.Diagnostic
}

// NewMemorySink creates a sink keeping at most limit entries (0 = all).
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{Limit: limit}
}

func (m *MemorySink) Record(_ int, ur model.UpdateResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ur.Events...)
	m.diagnostics = append(m.diagnostics, ur.Diagnostics...)
	if m.Limit > 0 {
		m.events = trim(m.events, m.Limit)
		m.diagnostics = trim(m.diagnostics, m.Limit)
	}
	return nil
}

func trim[T any](s []T, limit int) []T {
	if len(s) <= limit {
		return s
	}
	return slices.Clone(s[len(s)-limit:])
}

// Events returns the kept events, oldest first.
func (m *MemorySink) Events() []model.LogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// Diagnostics returns the kept diagnostics, oldest first.
func (m *MemorySink) Diagnostics() []model.Diagnostic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.diagnostics)
}

// LogSink writes every event (at trace level) and diagnostic through a slog
// logger.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Record(tick int, ur model.UpdateResult) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, ev := range ur.Events {
		logger.Log(context.Background(), logging.LevelTrace, "event",
			"tick", tick,
			"id", ev.ID,
			"type", ev.Type,
			"subject", ev.SubjectID,
			"action", ev.ActionID,
			"detail", ev.Detail,
		)
	}
	for _, d := range ur.Diagnostics {
		logger.Info("diagnostic",
			"tick", d.Tick,
			"code", d.Code,
			"subject", d.SubjectID,
			"action", d.ActionID,
			"detail", d.Detail,
		)
	}
	return nil
}
