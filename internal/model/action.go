package model

import "fmt"

// ActionKind is the capability type of an action.
type ActionKind uint8

const (
	ActionFunction ActionKind = iota
	ActionMove
	ActionCommunicate
)

// String returns the action kind name.
func (k ActionKind) String() string {
	switch k {
	case ActionFunction:
		return "function"
	case ActionMove:
		return "move"
	case ActionCommunicate:
		return "communicate"
	default:
		return fmt.Sprintf("ActionKind(%d)", k)
	}
}

// Profile carries the optional cost/benefit/duration annotations of an action.
type Profile struct {
	Cost     float64 `json:"cost,omitempty"`
	Benefit  float64 `json:"benefit,omitempty"`
	Duration int     `json:"duration,omitempty"` // ticks
}

// Action is a unit of behavior an agent can propose during Run and commit
// during Update. Actions are built once and reused across ticks.
type Action interface {
	ID() string
	Name() string
	Kind() ActionKind
	Profile() Profile

	// CheckPrecondition is evaluated during Run. It must not mutate state.
	CheckPrecondition() (bool, error)

	// Execute commits the action's effect during Update and returns the log
	// events it produced.
	Execute(tick int) ([]LogEvent, error)
}
