package model

import (
	"errors"
	"fmt"
)

// DuplicateIDError is returned when a node is inserted with an id that is
// already present anywhere in the World.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate id %q", e.ID)
}

// StructuralError reports a composition problem: a cycle in the organization
// tree, a second parent, or a reference to an owner that is not in the World.
type StructuralError struct {
	ID     string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error at %q: %s", e.ID, e.Reason)
}

// InvalidMoveError is the normal outcome of a commit whose delta would leave
// a dimension outside its domain.
type InvalidMoveError struct {
	AgentID  string
	ActionID string
	DimID    string
	Delta    int
}

func (e *InvalidMoveError) Error() string {
	return fmt.Sprintf("agent %q action %q: delta %d on %q violates domain", e.AgentID, e.ActionID, e.Delta, e.DimID)
}

// InvalidStateError is returned when a state-variable adjustment would leave
// the variable outside its domain. The variable is left unchanged.
type InvalidStateError struct {
	AgentID string
	VarID   string
	Delta   int
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("agent %q: delta %d on state %q violates domain", e.AgentID, e.Delta, e.VarID)
}

// MissingCapabilityHookError is returned when a communicate action is given to
// an agent that cannot build messages.
type MissingCapabilityHookError struct {
	AgentID  string
	ActionID string
}

func (e *MissingCapabilityHookError) Error() string {
	return fmt.Sprintf("agent %q has no message hook for communicate action %q", e.AgentID, e.ActionID)
}

// NotFoundError is returned by removals and lookups of absent ids.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// DuplicateIDs collects the ids of every DuplicateIDError in err, including
// errors combined with errors.Join.
func DuplicateIDs(err error) []string {
	var ids []string
	walkErrors(err, func(e error) {
		if d, ok := e.(*DuplicateIDError); ok {
			ids = append(ids, d.ID)
		}
	})
	return ids
}

func walkErrors(err error, fn func(error)) {
	if err == nil {
		return
	}
	fn(err)
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			walkErrors(e, fn)
		}
	case interface{ Unwrap() error }:
		walkErrors(u.Unwrap(), fn)
	}
}

// DiagnosticFor converts an error into a diagnostic with the matching code.
func DiagnosticFor(tick int, subjectID, actionID string, err error) Diagnostic {
	code := DiagActionFailed
	var (
		dup  *DuplicateIDError
		st   *StructuralError
		mv   *InvalidMoveError
		is   *InvalidStateError
		hook *MissingCapabilityHookError
		nf   *NotFoundError
	)
	switch {
	case errors.As(err, &mv):
		code = DiagInvalidMove
	case errors.As(err, &is):
		code = DiagInvalidState
	case errors.As(err, &dup):
		code = DiagDuplicateID
	case errors.As(err, &st):
		code = DiagStructural
	case errors.As(err, &hook):
		code = DiagMissingHook
	case errors.As(err, &nf):
		code = DiagNotFound
	}
	return Diagnostic{Tick: tick, Code: code, SubjectID: subjectID, ActionID: actionID, Detail: err.Error()}
}
