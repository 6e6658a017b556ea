package model

import "github.com/talgya/sosim/internal/geo"

// EventType classifies a log event.
type EventType string

const (
	EventLocationChange   EventType = "LOCATION_CHANGE"
	EventMessageSent      EventType = "MESSAGE_SENT"
	EventFunctionExecuted EventType = "FUNCTION_EXECUTED"
	EventStateChange      EventType = "STATE_CHANGE"
)

// LogEvent is one entry of the append-only event stream produced by Update.
type LogEvent struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Tick      int         `json:"tick"`
	SubjectID string      `json:"subject_id"`
	ActionID  string      `json:"action_id,omitempty"`
	Location  []geo.Coord `json:"location,omitempty"`
	PeerID    string      `json:"peer_id,omitempty"`    // Recipient of a message
	MessageID string      `json:"message_id,omitempty"` // Message carried by MESSAGE_SENT
	Detail    string      `json:"detail,omitempty"`
}

// DiagnosticCode classifies a diagnostic.
type DiagnosticCode string

const (
	DiagDuplicateID       DiagnosticCode = "DUPLICATE_ID"
	DiagStructural        DiagnosticCode = "STRUCTURAL"
	DiagInvalidMove       DiagnosticCode = "INVALID_MOVE"
	DiagInvalidState      DiagnosticCode = "INVALID_STATE"
	DiagPreconditionError DiagnosticCode = "PRECONDITION_ERROR"
	DiagNotFound          DiagnosticCode = "NOT_FOUND"
	DiagMissingHook       DiagnosticCode = "MISSING_HOOK"
	DiagActionFailed      DiagnosticCode = "ACTION_FAILED"
)

// Diagnostic records an expected failure (a rejected insertion, a rejected
// move) so that it is observable without being a log event.
type Diagnostic struct {
	Tick      int            `json:"tick"`
	Code      DiagnosticCode `json:"code"`
	SubjectID string         `json:"subject_id"`
	ActionID  string         `json:"action_id,omitempty"`
	Detail    string         `json:"detail"`
}
