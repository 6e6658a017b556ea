// Per-tick action selection. Every tick an agent scans its capabilities,
// keeps the ones whose preconditions hold and picks among candidate moves.
package agents

import (
	"fmt"
	"log/slog"

	"github.com/talgya/sosim/internal/entropy"
	"github.com/talgya/sosim/internal/model"
)

// MovePolicy chooses which candidate moves an agent enacts this tick. It must
// be a pure function of its inputs so that Run can be repeated.
type MovePolicy interface {
	Pick(a *Agent, tick int, candidates []model.Action) []model.Action
}

// RandomMovePolicy picks a single candidate. The pick depends on the seed,
// the agent id and the tick only.
type RandomMovePolicy struct {
	Source *entropy.Source
}

// NewRandomMovePolicy returns a random policy for seed. Seed 0 draws a seed
// from crypto/rand.
func NewRandomMovePolicy(seed uint64) RandomMovePolicy {
	return RandomMovePolicy{Source: entropy.NewSource(seed)}
}

func (p RandomMovePolicy) Pick(a *Agent, tick int, candidates []model.Action) []model.Action {
	if len(candidates) == 0 {
		return nil
	}
	i := p.Source.IntN(a.ID(), tick, len(candidates))
	return candidates[i : i+1]
}

// FirstMovePolicy always picks the first candidate in capability order.
type FirstMovePolicy struct{}

func (FirstMovePolicy) Pick(_ *Agent, _ int, candidates []model.Action) []model.Action {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[:1]
}

// DefaultMovePolicy is used by agents built without WithMovePolicy.
var DefaultMovePolicy MovePolicy = NewRandomMovePolicy(0)

// PolicyByName resolves a configured policy name ("random" or "first").
func PolicyByName(name string, seed uint64) (MovePolicy, error) {
	switch name {
	case "", "random":
		return NewRandomMovePolicy(seed), nil
	case "first":
		return FirstMovePolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown move policy %q", name)
	}
}

// selectActions partitions capabilities by kind. Function and communicate
// actions are selected as soon as their preconditions hold; moves become
// candidates and the move policy's picks are appended last.
func (a *Agent) selectActions(tick int) []model.Action {
	var (
		selected   []model.Action
		candidates []model.Action
		seq        int
	)

	for _, act := range a.capabilities {
		switch act.Kind() {
		case model.ActionFunction:
			if a.checkPrecondition(act, tick) {
				selected = append(selected, act)
			}

		case model.ActionMove:
			if a.checkPrecondition(act, tick) {
				candidates = append(candidates, act)
			}

		case model.ActionCommunicate:
			bound, ok := a.bindMessage(act, tick, seq)
			seq++
			if ok && a.checkPrecondition(bound, tick) {
				selected = append(selected, bound)
			}
		}
	}

	if len(candidates) > 0 {
		selected = append(selected, a.policy.Pick(a, tick, candidates)...)
	}
	return selected
}

// checkPrecondition treats an error as false and notes it for Update.
func (a *Agent) checkPrecondition(act model.Action, tick int) bool {
	ok, err := act.CheckPrecondition()
	if err != nil {
		slog.Warn("precondition error",
			"agent", a.ID(), "action", act.ID(), "tick", tick, "error", err)
		a.notes = append(a.notes, model.Diagnostic{
			Tick:      tick,
			Code:      model.DiagPreconditionError,
			SubjectID: a.ID(),
			ActionID:  act.ID(),
			Detail:    err.Error(),
		})
		return false
	}
	return ok
}

// bindMessage runs the message hook and returns a bound copy of act.
func (a *Agent) bindMessage(act model.Action, tick, seq int) (model.Action, bool) {
	b, ok := act.(binder)
	if !ok || a.hook == nil {
		// AddCapability rejects these, so reaching here means the agent was
		// assembled by hand.
		panic(&model.MissingCapabilityHookError{AgentID: a.ID(), ActionID: act.ID()})
	}
	payload, err := a.hook(a, act, tick)
	if err != nil {
		slog.Warn("message hook error",
			"agent", a.ID(), "action", act.ID(), "tick", tick, "error", err)
		a.notes = append(a.notes, model.DiagnosticFor(tick, a.ID(), act.ID(), err))
		return nil, false
	}
	return b.Bind(NewMessage(a.ID(), b.Recipient(), tick, seq, payload)), true
}
