package engine

import (
	"log/slog"
	"maps"

	"github.com/talgya/sosim/internal/model"
)

// Stats aggregates what the engine has produced so far.
type Stats struct {
	Ticks       int                          `json:"ticks"`
	Events      int                          `json:"events"`
	Diagnostics int                          `json:"diagnostics"`
	ByType      map[model.EventType]int      `json:"by_type"`
	ByCode      map[model.DiagnosticCode]int `json:"by_code"`

	// Since the last report.
	windowEvents int
	windowDiags  int
}

func newStats() Stats {
	return Stats{
		ByType: make(map[model.EventType]int),
		ByCode: make(map[model.DiagnosticCode]int),
	}
}

func (s *Stats) record(ur model.UpdateResult) {
	s.Ticks++
	s.Events += len(ur.Events)
	s.Diagnostics += len(ur.Diagnostics)
	s.windowEvents += len(ur.Events)
	s.windowDiags += len(ur.Diagnostics)
	for _, ev := range ur.Events {
		s.ByType[ev.Type]++
	}
	for _, d := range ur.Diagnostics {
		s.ByCode[d.Code]++
	}
}

func (s Stats) clone() Stats {
	s.ByType = maps.Clone(s.ByType)
	s.ByCode = maps.Clone(s.ByCode)
	return s
}

// report logs a periodic summary and resets the window counters.
func (e *Engine) report(tick int) {
	ws := e.World.Stats()
	slog.Info("tick report",
		"tick", tick,
		"agents", ws.Agents,
		"organizations", ws.Organizations,
		"events_window", e.stats.windowEvents,
		"diagnostics_window", e.stats.windowDiags,
		"events_total", e.stats.Events,
		"moves", e.stats.ByType[model.EventLocationChange],
		"messages", e.stats.ByType[model.EventMessageSent],
		"functions", e.stats.ByType[model.EventFunctionExecuted],
		"rejected_moves", e.stats.ByCode[model.DiagInvalidMove],
	)
	e.stats.windowEvents = 0
	e.stats.windowDiags = 0
}
