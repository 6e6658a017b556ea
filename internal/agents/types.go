// Package agents provides the actionable entities of a model: agents, their
// actions and mailboxes, and the per-tick action selection policy.
package agents

import (
	"fmt"
	"slices"

	"github.com/talgya/sosim/internal/geo"
	"github.com/talgya/sosim/internal/model"
)

// Role distinguishes the kinds of actionable entity.
type Role uint8

const (
	RoleConstituent    Role = iota // Member of an organization
	RoleSystemEntity               // Operated by an infrastructure
	RoleResourceEntity             // Part of an environment
)

var roleNames = [...]string{"constituent", "system_entity", "resource_entity"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", r)
}

// MessageHook builds the payload a communicate action carries this tick. It
// runs during Run and must not mutate anything outside the agent.
type MessageHook func(a *Agent, act model.Action, tick int) (any, error)

// Router delivers a message to its recipient's mailbox. The World implements it.
type Router interface {
	Deliver(msg Message) error
}

// Agent is a leaf node that proposes actions during Run and commits them
// during Update.
type Agent struct {
	model.Identity
	Role    Role   `json:"role"`
	OwnerID string `json:"owner_id,omitempty"` // Container holding the agent
	WorldID string `json:"world_id,omitempty"`

	capabilities []model.Action
	mailbox      *Mailbox
	router       Router
	hook         MessageHook
	policy       MovePolicy

	location *geo.Location
	state    []*geo.DimVar

	// Per-tick buffers, owned by Run.
	inbox     []Message
	inboxTick int
	selected  []model.Action
	notes     []model.Diagnostic

	history  []Message
	eventSeq int
}

// Option configures an agent at construction.
type Option func(*Agent)

// WithLocation sets the starting location. The agent takes ownership of loc.
func WithLocation(loc *geo.Location) Option {
	return func(a *Agent) { a.location = loc }
}

// WithMessageHook installs the hook that binds payloads to communicate actions.
func WithMessageHook(h MessageHook) Option {
	return func(a *Agent) { a.hook = h }
}

// WithMovePolicy replaces the default random move policy.
func WithMovePolicy(p MovePolicy) Option {
	return func(a *Agent) { a.policy = p }
}

// WithStateVar adds a copy of v as a state variable, so one option can be
// shared by many agents.
func WithStateVar(v *geo.DimVar) Option {
	return func(a *Agent) { a.state = append(a.state, v.Clone()) }
}

// WithOwner names the container the agent belongs to.
func WithOwner(id string) Option {
	return func(a *Agent) { a.OwnerID = id }
}

// NewAgent creates an agent with an empty mailbox.
func NewAgent(id, name string, role Role, opts ...Option) *Agent {
	a := &Agent{
		Identity:  model.NewIdentity(id, name),
		Role:      role,
		mailbox:   NewMailbox(),
		inboxTick: -1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.policy == nil {
		a.policy = DefaultMovePolicy
	}
	return a
}

// Kind returns model.KindAgent.
func (a *Agent) Kind() model.Kind { return model.KindAgent }

// Validate reports construction problems: a missing mailbox, or communicate
// capabilities without a message hook.
func (a *Agent) Validate() error {
	if a.mailbox == nil {
		return &model.StructuralError{ID: a.ID(), Reason: "agent has no mailbox"}
	}
	for _, c := range a.capabilities {
		if c.Kind() == model.ActionCommunicate && a.hook == nil {
			return &model.MissingCapabilityHookError{AgentID: a.ID(), ActionID: c.ID()}
		}
	}
	return nil
}

// AddCapability appends an action to the agent's capability list and binds
// it to the agent. Action ids are unique per agent.
func (a *Agent) AddCapability(act model.Action) error {
	if _, ok := a.Capability(act.ID()); ok {
		return &model.DuplicateIDError{ID: act.ID()}
	}
	if act.Kind() == model.ActionCommunicate {
		if _, ok := act.(binder); !ok || a.hook == nil {
			return &model.MissingCapabilityHookError{AgentID: a.ID(), ActionID: act.ID()}
		}
	}
	if o, ok := act.(ownable); ok {
		o.setOwner(a)
	}
	a.capabilities = append(a.capabilities, act)
	return nil
}

// RemoveCapability drops the action with the given id.
func (a *Agent) RemoveCapability(id string) error {
	i := slices.IndexFunc(a.capabilities, func(c model.Action) bool { return c.ID() == id })
	if i < 0 {
		return fmt.Errorf("agent %q: remove capability: %w", a.ID(), &model.NotFoundError{Kind: model.KindAgent, ID: id})
	}
	a.capabilities = slices.Delete(a.capabilities, i, i+1)
	return nil
}

// Capabilities returns a copy of the capability list.
func (a *Agent) Capabilities() []model.Action {
	return slices.Clone(a.capabilities)
}

// Capability looks up an action by id.
func (a *Agent) Capability(id string) (model.Action, bool) {
	for _, c := range a.capabilities {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// Mailbox returns the agent's incoming queue.
func (a *Agent) Mailbox() *Mailbox { return a.mailbox }

// SetRouter attaches the router used by committed communicate actions.
func (a *Agent) SetRouter(r Router) { a.router = r }

// Inbox returns the messages drained during the most recent Run.
func (a *Agent) Inbox() []Message { return slices.Clone(a.inbox) }

// Selected returns the actions chosen by the most recent Run.
func (a *Agent) Selected() []model.Action { return slices.Clone(a.selected) }

// CurrentLocation returns a copy of the agent's location, or nil.
func (a *Agent) CurrentLocation() *geo.Location { return a.location.Clone() }

// SetLocation replaces the agent's location. Scenario builders only; movement
// goes through move actions.
func (a *Agent) SetLocation(loc *geo.Location) { a.location = loc }

// StateVars returns copies of the agent's state variables.
func (a *Agent) StateVars() []*geo.DimVar {
	out := make([]*geo.DimVar, len(a.state))
	for i, v := range a.state {
		out[i] = v.Clone()
	}
	return out
}

// StateVar returns a copy of the named state variable.
func (a *Agent) StateVar(id string) (*geo.DimVar, bool) {
	for _, v := range a.state {
		if v.ID == id {
			return v.Clone(), true
		}
	}
	return nil, false
}

// AdjustState applies delta to a state variable after checking its domain.
// It is meant for function-action effects, which run during Update.
func (a *Agent) AdjustState(id string, delta, tick int, actionID string) (model.LogEvent, error) {
	i := slices.IndexFunc(a.state, func(v *geo.DimVar) bool { return v.ID == id })
	if i < 0 {
		return model.LogEvent{}, fmt.Errorf("agent %q: adjust state: %w", a.ID(), &model.NotFoundError{Kind: model.KindAgent, ID: id})
	}
	v := a.state[i]
	if !v.CheckUpdateValid(delta) {
		return model.LogEvent{}, &model.InvalidStateError{AgentID: a.ID(), VarID: id, Delta: delta}
	}
	v.UpdateValue(delta)

	ev := a.newEvent(model.EventStateChange, tick, actionID)
	ev.Detail = fmt.Sprintf("%s=%d", id, v.Value)
	return ev, nil
}

// newEvent allocates the next event id for this agent.
func (a *Agent) newEvent(t model.EventType, tick int, actionID string) model.LogEvent {
	a.eventSeq++
	return model.LogEvent{
		ID:        fmt.Sprintf("%s-%d", a.ID(), a.eventSeq),
		Type:      t,
		Tick:      tick,
		SubjectID: a.ID(),
		ActionID:  actionID,
	}
}

// Run drains the mailbox, clears the previous selection and selects this
// tick's actions. Nothing outside the agent is written. A deactivated agent
// returns an empty result and leaves its mailbox queued.
func (a *Agent) Run(tick int) *model.RunResult {
	if a.mailbox == nil {
		panic(fmt.Sprintf("agent %q has no mailbox", a.ID()))
	}
	if !a.Activated {
		a.selected = nil
		a.notes = nil
		return &model.RunResult{Subject: a}
	}

	if tick != a.inboxTick {
		a.inbox = nil
		a.inboxTick = tick
	}
	drained := a.mailbox.Drain()
	a.inbox = append(a.inbox, drained...)
	a.remember(drained)

	a.selected = nil
	a.notes = nil
	a.selected = a.selectActions(tick)

	return &model.RunResult{Subject: a, Actions: slices.Clone(a.selected)}
}

// Update commits each selected action in order. Rejected effects become
// diagnostics and produce no events.
func (a *Agent) Update(rr *model.RunResult, tick int) model.UpdateResult {
	var ur model.UpdateResult
	ur.Diagnostics = append(ur.Diagnostics, a.notes...)
	a.notes = nil

	for _, act := range rr.Actions {
		events, err := act.Execute(tick)
		if err != nil {
			ur.Diagnostics = append(ur.Diagnostics, model.DiagnosticFor(tick, a.ID(), act.ID(), err))
			continue
		}
		ur.Events = append(ur.Events, events...)
	}
	return ur
}
