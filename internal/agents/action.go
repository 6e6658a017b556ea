package agents

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/talgya/sosim/internal/model"
)

// Precondition decides whether an action can be enacted this tick. It is
// evaluated during Run and must only read state.
type Precondition func(owner *Agent) (bool, error)

// ownable is implemented by actions that need a reference to their agent.
type ownable interface {
	setOwner(a *Agent)
}

// binder is implemented by communicate actions. Bind returns a copy of the
// action carrying msg; the receiver is not modified.
type binder interface {
	model.Action
	Recipient() string
	Bind(msg Message) model.Action
}

// ActionBase holds what every built-in action shares.
type ActionBase struct {
	id      string
	name    string
	owner   *Agent
	profile model.Profile

	// When is the optional precondition. A nil When is always true.
	When Precondition
}

func newBase(id, name string) ActionBase {
	return ActionBase{id: id, name: name}
}

func (b *ActionBase) ID() string             { return b.id }
func (b *ActionBase) Name() string           { return b.name }
func (b *ActionBase) Owner() *Agent          { return b.owner }
func (b *ActionBase) Profile() model.Profile { return b.profile }
func (b *ActionBase) setOwner(a *Agent)      { b.owner = a }

// SetProfile sets the cost/benefit/duration annotations.
func (b *ActionBase) SetProfile(p model.Profile) { b.profile = p }

// CheckPrecondition evaluates When against the owning agent.
func (b *ActionBase) CheckPrecondition() (bool, error) {
	if b.When == nil {
		return true, nil
	}
	return b.When(b.owner)
}

func (b *ActionBase) requireOwner() error {
	if b.owner == nil {
		return fmt.Errorf("action %q is not bound to an agent", b.id)
	}
	return nil
}

// FuncContext is handed to a function action's effect.
type FuncContext struct {
	Agent  *Agent
	Action *FunctionAction
	Tick   int
}

// Event allocates an event on behalf of the acting agent.
func (c FuncContext) Event(t model.EventType, detail string) model.LogEvent {
	ev := c.Agent.newEvent(t, c.Tick, c.Action.ID())
	ev.Detail = detail
	return ev
}

// AdjustState changes one of the agent's state variables.
func (c FuncContext) AdjustState(id string, delta int) (model.LogEvent, error) {
	return c.Agent.AdjustState(id, delta, c.Tick, c.Action.ID())
}

// Effect is the arbitrary effect of a function action. It runs during Update
// and may only change the acting agent.
type Effect func(ctx FuncContext) ([]model.LogEvent, error)

// FunctionAction runs an arbitrary effect.
type FunctionAction struct {
	ActionBase
	Effect Effect
}

// NewFunctionAction creates a function action. A nil effect only records that
// the action ran.
func NewFunctionAction(id, name string, effect Effect) *FunctionAction {
	return &FunctionAction{ActionBase: newBase(id, name), Effect: effect}
}

func (f *FunctionAction) Kind() model.ActionKind { return model.ActionFunction }

// Execute runs the effect and appends a FUNCTION_EXECUTED event. An effect
// error discards the effect's events.
func (f *FunctionAction) Execute(tick int) ([]model.LogEvent, error) {
	if err := f.requireOwner(); err != nil {
		return nil, err
	}
	ctx := FuncContext{Agent: f.owner, Action: f, Tick: tick}

	var events []model.LogEvent
	if f.Effect != nil {
		evs, err := f.Effect(ctx)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", f.id, err)
		}
		events = evs
	}
	return append(events, ctx.Event(model.EventFunctionExecuted, f.name)), nil
}

// MoveAction shifts the agent's location by a per-dimension delta.
type MoveAction struct {
	ActionBase
	Deltas map[string]int // Dimension id to delta
}

// NewMoveAction creates a move action. The delta map is copied.
func NewMoveAction(id, name string, deltas map[string]int) *MoveAction {
	return &MoveAction{ActionBase: newBase(id, name), Deltas: maps.Clone(deltas)}
}

// ZipDeltas pairs dimension ids with deltas positionally.
func ZipDeltas(dimIDs []string, deltas []int) (map[string]int, error) {
	if len(dimIDs) != len(deltas) {
		return nil, fmt.Errorf("zip deltas: %d dimensions but %d deltas", len(dimIDs), len(deltas))
	}
	out := make(map[string]int, len(dimIDs))
	for i, id := range dimIDs {
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("zip deltas: dimension %q listed twice", id)
		}
		out[id] = deltas[i]
	}
	return out, nil
}

func (m *MoveAction) Kind() model.ActionKind { return model.ActionMove }

// DimensionIDs returns the dimensions this move touches, sorted.
func (m *MoveAction) DimensionIDs() []string {
	return slices.Sorted(maps.Keys(m.Deltas))
}

// Execute commits the move all-or-nothing. A domain violation returns an
// *model.InvalidMoveError and leaves the location untouched.
func (m *MoveAction) Execute(tick int) ([]model.LogEvent, error) {
	if err := m.requireOwner(); err != nil {
		return nil, err
	}
	return m.owner.commitMove(m, tick)
}

// commitMove validates every targeted dimension on a clone of the current
// location, then swaps the clone in.
func (a *Agent) commitMove(m *MoveAction, tick int) ([]model.LogEvent, error) {
	if a.location == nil {
		return nil, &model.InvalidMoveError{AgentID: a.ID(), ActionID: m.ID()}
	}
	next := a.location.Clone()

	// Targets follow the location's dimension order.
	var targets []int
	for i, d := range next.Dims {
		delta, ok := m.Deltas[d.ID]
		if !ok {
			continue
		}
		if !d.CheckUpdateValid(delta) {
			return nil, &model.InvalidMoveError{AgentID: a.ID(), ActionID: m.ID(), DimID: d.ID, Delta: delta}
		}
		targets = append(targets, i)
	}
	for _, i := range targets {
		d := next.Dims[i]
		d.UpdateValue(m.Deltas[d.ID])
	}
	a.location = next

	ev := a.newEvent(model.EventLocationChange, tick, m.ID())
	ev.Location = next.Coords()
	ev.Detail = next.String()
	return []model.LogEvent{ev}, nil
}

// CommunicateAction sends a message built by the agent's message hook. The
// action held in the capability list is never bound; Run binds a copy.
type CommunicateAction struct {
	ActionBase
	RecipientID string

	message *Message
}

// NewCommunicateAction creates a communicate action addressed to recipient.
func NewCommunicateAction(id, name, recipient string) *CommunicateAction {
	return &CommunicateAction{ActionBase: newBase(id, name), RecipientID: recipient}
}

func (c *CommunicateAction) Kind() model.ActionKind { return model.ActionCommunicate }

// Recipient returns the addressee id.
func (c *CommunicateAction) Recipient() string { return c.RecipientID }

// Bind returns a copy of c carrying msg.
func (c *CommunicateAction) Bind(msg Message) model.Action {
	bound := *c
	bound.message = &msg
	return &bound
}

// Message returns the bound message, if any.
func (c *CommunicateAction) Message() (Message, bool) {
	if c.message == nil {
		return Message{}, false
	}
	return *c.message, true
}

var errUnbound = errors.New("communicate action has no bound message")

// Execute hands the bound message to the owner's router and records a
// MESSAGE_SENT event. An unknown recipient yields the router's error.
func (c *CommunicateAction) Execute(tick int) ([]model.LogEvent, error) {
	if err := c.requireOwner(); err != nil {
		return nil, err
	}
	if c.message == nil {
		return nil, fmt.Errorf("action %q: %w", c.id, errUnbound)
	}
	if c.owner.router == nil {
		return nil, fmt.Errorf("agent %q has no router", c.owner.ID())
	}
	if err := c.owner.router.Deliver(*c.message); err != nil {
		return nil, err
	}

	ev := c.owner.newEvent(model.EventMessageSent, tick, c.id)
	ev.PeerID = c.message.RecipientID
	ev.MessageID = c.message.ID.String()
	return []model.LogEvent{ev}, nil
}
