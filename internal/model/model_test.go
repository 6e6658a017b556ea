package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNode struct {
	Identity
	kind Kind
}

func (s *stubNode) Kind() Kind { return s.kind }

func node(id string, k Kind) *stubNode {
	return &stubNode{Identity: NewIdentity(id, id), kind: k}
}

type stubAction struct{ id string }

func (s stubAction) ID() string { return s.id }
func (s stubAction) Name() string { return s.id }
func (s stubAction) Kind() ActionKind { return ActionFunction }
func (s stubAction) Profile() Profile { return Profile{} }
func (s stubAction) CheckPrecondition() (bool, error) { return true, nil }
func (s stubAction) Execute(int) ([]LogEvent, error) { return nil, nil }

func TestNewIdentityDefaults(t *testing.T) {
	id := NewIdentity("a1", "Alpha")
	assert.Equal(t, "a1", id.ID())
	assert.Equal(t, "Alpha", id.Name())
	assert.Equal(t, Flags{Static: true, Activated: true, Available: true}, id.Lifecycle())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "organization", KindOrganization.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.True(t, KindEnvironment.IsContainer())
	assert.False(t, KindAgent.IsContainer())
	assert.False(t, KindWorld.IsContainer())
}

func TestDuplicateIDsUnwrapsJoin(t *testing.T) {
	err := errors.Join(
		&DuplicateIDError{ID: "a"},
		fmt.Errorf("add org: %w", &DuplicateIDError{ID: "b"}),
		&StructuralError{ID: "c", Reason: "cycle"},
		errors.Join(&DuplicateIDError{ID: "d"}),
	)
	assert.Equal(t, []string{"a", "b", "d"}, DuplicateIDs(err))
	assert.Nil(t, DuplicateIDs(nil))
}

func TestDiagnosticFor(t *testing.T) {
	tests := []struct {
		err  error
		want DiagnosticCode
	}{
		{&DuplicateIDError{ID: "a"}, DiagDuplicateID},
		{&StructuralError{ID: "a", Reason: "cycle"}, DiagStructural},
		{fmt.Errorf("wrapped: %w", &InvalidMoveError{AgentID: "a", DimID: "x", Delta: 3}), DiagInvalidMove},
		{&InvalidStateError{AgentID: "a", VarID: "fuel", Delta: -1}, DiagInvalidState},
		{&MissingCapabilityHookError{AgentID: "a", ActionID: "c"}, DiagMissingHook},
		{&NotFoundError{Kind: KindAgent, ID: "z"}, DiagNotFound},
		{errors.New("boom"), DiagActionFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			d := DiagnosticFor(7, "s", "act", tt.err)
			assert.Equal(t, tt.want, d.Code)
			assert.Equal(t, 7, d.Tick)
			assert.Equal(t, "s", d.SubjectID)
			assert.Equal(t, "act", d.ActionID)
			assert.Equal(t, tt.err.Error(), d.Detail)
		})
	}
}

func TestRunResultWalkOrder(t *testing.T) {
	root := &RunResult{Subject: node("world", KindWorld)}
	env := &RunResult{Subject: node("env", KindEnvironment)}
	env.AddChild(&RunResult{Subject: node("a1", KindAgent), Actions: []Action{stubAction{"m1"}}})
	org := &RunResult{Subject: node("org", KindOrganization)}
	org.AddChild(&RunResult{Subject: node("a2", KindAgent), Actions: []Action{stubAction{"f1"}, stubAction{"f2"}}})
	root.AddChild(env)
	root.AddChild(org)

	var seen []string
	root.Walk(func(r *RunResult) bool {
		seen = append(seen, r.Subject.ID())
		return r.Subject.ID() != "org"
	})
	assert.Equal(t, []string{"world", "env", "a1", "org"}, seen)
	assert.Equal(t, 3, root.ActionCount())
}

func TestRunResultEqual(t *testing.T) {
	build := func(actionID string) *RunResult {
		r := &RunResult{Subject: node("org", KindOrganization)}
		r.AddChild(&RunResult{Subject: node("a1", KindAgent), Actions: []Action{stubAction{actionID}}})
		return r
	}
	require.True(t, build("m1").Equal(build("m1")))
	assert.False(t, build("m1").Equal(build("m2")))
	assert.False(t, build("m1").Equal(&RunResult{Subject: node("org", KindOrganization)}))
	assert.False(t, build("m1").Equal(nil))

	var nilResult *RunResult
	assert.True(t, nilResult.Equal(nil))
}

func TestUpdateResultMerge(t *testing.T) {
	var ur UpdateResult
	ur.Merge(UpdateResult{Events: []LogEvent{{ID: "a-1"}}})
	ur.Merge(UpdateResult{
		Events:      []LogEvent{{ID: "b-1"}},
		Diagnostics: []Diagnostic{{Code: DiagInvalidMove}},
	})
	require.Len(t, ur.Events, 2)
	assert.Equal(t, "a-1", ur.Events[0].ID)
	assert.Equal(t, "b-1", ur.Events[1].ID)
	assert.Len(t, ur.Diagnostics, 1)
}
