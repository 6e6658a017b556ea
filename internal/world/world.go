// Package world provides the SoS root: the registry of every container and
// agent in one model, and the entry points of the tick protocol.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/geo"
	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/social"
)

// World is the root container of one simulation run. Organizations are kept
// in an arena keyed by id; the parent link lives on each organization.
type World struct {
	model.Identity
	Map *geo.Map `json:"-"`

	mu sync.RWMutex

	orgs       []*social.Organization
	orgIndex   map[string]*social.Organization
	infras     []*social.Infrastructure
	infraIndex map[string]*social.Infrastructure
	envs       []*social.Environment
	envIndex   map[string]*social.Environment
	agentList  []*agents.Agent
	agentIndex map[string]*agents.Agent

	// Every id in use, including the world's own.
	ids map[string]model.Kind

	diagnostics []model.Diagnostic
	pending     []model.Diagnostic
	lastTick    atomic.Int64
}

// New creates an empty world.
func New(id, name string) *World {
	w := &World{
		Identity:   model.NewIdentity(id, name),
		orgIndex:   make(map[string]*social.Organization),
		infraIndex: make(map[string]*social.Infrastructure),
		envIndex:   make(map[string]*social.Environment),
		agentIndex: make(map[string]*agents.Agent),
		ids:        map[string]model.Kind{id: model.KindWorld},
	}
	return w
}

func (w *World) Kind() model.Kind { return model.KindWorld }

// LastTick returns the tick of the most recent Update.
func (w *World) LastTick() int { return int(w.lastTick.Load()) }

// AddOrganization registers org, its direct agents and, recursively, its
// sub-organizations and their agents. Each node is checked on its own: a
// duplicate id is reported and skipped without rolling back nodes already
// added. Nothing below a rejected organization is registered, and a rejected
// agent is detached from its container. The returned error joins every
// per-node failure.
func (w *World) AddOrganization(org *social.Organization) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := checkTree(org); err != nil {
		return w.reject(err, org.ID())
	}
	if !org.IsTopLevel() {
		parent, ok := w.orgIndex[org.ParentID]
		if !ok {
			return w.reject(&model.StructuralError{ID: org.ID(), Reason: fmt.Sprintf("parent organization %q is not in the world", org.ParentID)}, org.ID())
		}
		if _, listed := parent.SubOrganization(org.ID()); !listed {
			return w.reject(&model.StructuralError{ID: org.ID(), Reason: fmt.Sprintf("parent %q does not list it as a sub-organization", org.ParentID)}, org.ID())
		}
	}
	return w.addOrgLocked(org)
}

// AddSubOrganization attaches sub under the registered organization parentID
// and registers sub's subtree.
func (w *World) AddSubOrganization(parentID string, sub *social.Organization) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	parent, ok := w.orgIndex[parentID]
	if !ok {
		return w.reject(&model.NotFoundError{Kind: model.KindOrganization, ID: parentID}, sub.ID())
	}
	if _, dup := w.ids[sub.ID()]; dup {
		return w.reject(&model.DuplicateIDError{ID: sub.ID()}, sub.ID())
	}
	if err := checkTree(sub); err != nil {
		return w.reject(err, sub.ID())
	}
	if err := parent.AddSubOrganization(sub); err != nil {
		return w.reject(err, sub.ID())
	}
	return w.addOrgLocked(sub)
}

func (w *World) addOrgLocked(org *social.Organization) error {
	if err := w.claim(org.ID(), model.KindOrganization); err != nil {
		return errors.Join(append([]error{err}, w.rejectOrgSubtreeLocked(org)...)...)
	}
	w.orgs = append(w.orgs, org)
	w.orgIndex[org.ID()] = org

	errs := w.registerMembersLocked(org)
	for _, sub := range org.SubOrganizations() {
		if err := w.addOrgLocked(sub); err != nil {
			errs = append(errs, err)
			if w.orgIndex[sub.ID()] != sub {
				_ = org.RemoveSubOrganization(sub.ID())
			}
		}
	}
	return errors.Join(errs...)
}

// rejectOrgSubtreeLocked reports every node below a rejected organization
// without registering or detaching anything.
func (w *World) rejectOrgSubtreeLocked(org *social.Organization) []error {
	errs := w.rejectMembersLocked(org)
	for _, sub := range org.SubOrganizations() {
		errs = append(errs, w.rejectBelowLocked(sub.ID(), org.ID()))
		errs = append(errs, w.rejectOrgSubtreeLocked(sub)...)
	}
	return errs
}

func (w *World) rejectMembersLocked(c social.Container) []error {
	var errs []error
	for _, a := range c.DirectMembers() {
		errs = append(errs, w.rejectBelowLocked(a.ID(), c.ID()))
	}
	return errs
}

// rejectBelowLocked reports a node whose container was rejected: a
// duplicate id if it collides, otherwise a structural error.
func (w *World) rejectBelowLocked(id, ownerID string) error {
	if _, dup := w.ids[id]; dup {
		return w.reject(&model.DuplicateIDError{ID: id}, id)
	}
	return w.reject(&model.StructuralError{ID: id, Reason: fmt.Sprintf("container %q was rejected", ownerID)}, id)
}

// AddInfrastructure registers an infrastructure and its member agents.
func (w *World) AddInfrastructure(infra *social.Infrastructure) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.claim(infra.ID(), model.KindInfrastructure); err != nil {
		return errors.Join(append([]error{err}, w.rejectMembersLocked(infra)...)...)
	}
	w.infras = append(w.infras, infra)
	w.infraIndex[infra.ID()] = infra
	return errors.Join(w.registerMembersLocked(infra)...)
}

// AddEnvironment registers an environment and its member agents.
func (w *World) AddEnvironment(env *social.Environment) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.claim(env.ID(), model.KindEnvironment); err != nil {
		return errors.Join(append([]error{err}, w.rejectMembersLocked(env)...)...)
	}
	w.envs = append(w.envs, env)
	w.envIndex[env.ID()] = env
	return errors.Join(w.registerMembersLocked(env)...)
}

// registerMembersLocked registers the direct agents of an accepted
// container. A rejected agent is detached so the container never runs it.
func (w *World) registerMembersLocked(c social.Container) []error {
	var errs []error
	for _, a := range c.DirectMembers() {
		if err := w.registerAgentLocked(a); err != nil {
			errs = append(errs, err)
			w.detachLocked(c, a)
		}
	}
	return errs
}

// detachLocked removes a rejected agent from c. When the same agent object
// is already registered elsewhere its owner is restored.
func (w *World) detachLocked(c social.Container, a *agents.Agent) {
	if err := c.RemoveMember(a.ID()); err != nil {
		return
	}
	if w.agentIndex[a.ID()] != a {
		return
	}
	for _, owner := range w.containersLocked() {
		if m, ok := owner.Member(a.ID()); ok && m == a {
			a.OwnerID = owner.ID()
			return
		}
	}
}

func (w *World) containersLocked() []social.Container {
	out := make([]social.Container, 0, len(w.orgs)+len(w.infras)+len(w.envs))
	for _, o := range w.orgs {
		out = append(out, o)
	}
	for _, i := range w.infras {
		out = append(out, i)
	}
	for _, e := range w.envs {
		out = append(out, e)
	}
	return out
}

// AddAgent registers an agent. When the agent names an owner, the owner must
// already be in the world; the agent is attached to it if needed. Agents
// without an owner are registered but not run.
func (w *World) AddAgent(a *agents.Agent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, dup := w.ids[a.ID()]; dup {
		return w.reject(&model.DuplicateIDError{ID: a.ID()}, a.ID())
	}
	if a.OwnerID != "" {
		owner, ok := w.containerLocked(a.OwnerID)
		if !ok {
			return w.reject(&model.StructuralError{ID: a.ID(), Reason: fmt.Sprintf("owner %q is not in the world", a.OwnerID)}, a.ID())
		}
		if err := a.Validate(); err != nil {
			return w.reject(err, a.ID())
		}
		if _, member := owner.Member(a.ID()); !member {
			if err := owner.AddMember(a); err != nil {
				return w.reject(err, a.ID())
			}
		}
	}
	return w.registerAgentLocked(a)
}

func (w *World) registerAgentLocked(a *agents.Agent) error {
	if err := a.Validate(); err != nil {
		return w.reject(err, a.ID())
	}
	if err := w.claim(a.ID(), model.KindAgent); err != nil {
		return err
	}
	a.WorldID = w.ID()
	a.SetRouter(lockedRouter{w})
	w.agentList = append(w.agentList, a)
	w.agentIndex[a.ID()] = a
	return nil
}

// claim reserves id or reports a duplicate.
func (w *World) claim(id string, kind model.Kind) error {
	if _, dup := w.ids[id]; dup {
		return w.reject(&model.DuplicateIDError{ID: id}, id)
	}
	w.ids[id] = kind
	return nil
}

// reject records err as a diagnostic and returns it.
func (w *World) reject(err error, subjectID string) error {
	slog.Warn("world insertion rejected", "world", w.ID(), "subject", subjectID, "error", err)
	w.recordLocked(model.DiagnosticFor(w.LastTick(), subjectID, "", err))
	return err
}

func (w *World) recordLocked(d model.Diagnostic) {
	w.diagnostics = append(w.diagnostics, d)
	w.pending = append(w.pending, d)
}

// checkTree rejects an organization subtree in which any organization is
// reachable twice.
func checkTree(root *social.Organization) error {
	seen := make(map[*social.Organization]bool)
	var visit func(o *social.Organization) error
	visit = func(o *social.Organization) error {
		if seen[o] {
			return &model.StructuralError{ID: o.ID(), Reason: "organization reachable twice; the tree has a cycle or a shared node"}
		}
		seen[o] = true
		for _, s := range o.SubOrganizations() {
			if err := visit(s); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(root)
}

// RemoveAgent unregisters an agent and detaches it from its owner.
func (w *World) RemoveAgent(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, ok := w.agentIndex[id]
	if !ok {
		return w.notFound(model.KindAgent, id)
	}
	if owner, ok := w.containerLocked(a.OwnerID); ok {
		if err := owner.RemoveMember(id); err != nil {
			slog.Warn("detach agent from owner", "agent", id, "owner", a.OwnerID, "error", err)
		}
	}
	w.unregisterAgentLocked(id)
	return nil
}

// RemoveOrganization unregisters an organization with its whole subtree and
// detaches it from its parent.
func (w *World) RemoveOrganization(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	org, ok := w.orgIndex[id]
	if !ok {
		return w.notFound(model.KindOrganization, id)
	}
	if parent, ok := w.orgIndex[org.ParentID]; ok {
		if err := parent.RemoveSubOrganization(id); err != nil {
			slog.Warn("detach organization from parent", "organization", id, "parent", org.ParentID, "error", err)
		}
	}
	for _, o := range append([]*social.Organization{org}, org.Descendants()...) {
		for _, a := range o.DirectMembers() {
			w.unregisterAgentLocked(a.ID())
		}
		if w.orgIndex[o.ID()] == o {
			delete(w.orgIndex, o.ID())
			delete(w.ids, o.ID())
			w.orgs = slices.DeleteFunc(w.orgs, func(x *social.Organization) bool { return x == o })
		}
	}
	return nil
}

// RemoveInfrastructure unregisters an infrastructure and its members.
func (w *World) RemoveInfrastructure(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	infra, ok := w.infraIndex[id]
	if !ok {
		return w.notFound(model.KindInfrastructure, id)
	}
	for _, a := range infra.DirectMembers() {
		w.unregisterAgentLocked(a.ID())
	}
	delete(w.infraIndex, id)
	delete(w.ids, id)
	w.infras = slices.DeleteFunc(w.infras, func(x *social.Infrastructure) bool { return x == infra })
	return nil
}

// RemoveEnvironment unregisters an environment and its members.
func (w *World) RemoveEnvironment(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	env, ok := w.envIndex[id]
	if !ok {
		return w.notFound(model.KindEnvironment, id)
	}
	for _, a := range env.DirectMembers() {
		w.unregisterAgentLocked(a.ID())
	}
	delete(w.envIndex, id)
	delete(w.ids, id)
	w.envs = slices.DeleteFunc(w.envs, func(x *social.Environment) bool { return x == env })
	return nil
}

func (w *World) unregisterAgentLocked(id string) {
	a, ok := w.agentIndex[id]
	if !ok {
		return
	}
	delete(w.agentIndex, id)
	delete(w.ids, id)
	w.agentList = slices.DeleteFunc(w.agentList, func(x *agents.Agent) bool { return x == a })
	a.WorldID = ""
	a.SetRouter(nil)
}

func (w *World) notFound(kind model.Kind, id string) error {
	err := &model.NotFoundError{Kind: kind, ID: id}
	slog.Warn("world removal failed", "world", w.ID(), "error", err)
	w.recordLocked(model.DiagnosticFor(w.LastTick(), id, "", err))
	return err
}

func (w *World) containerLocked(id string) (social.Container, bool) {
	if o, ok := w.orgIndex[id]; ok {
		return o, true
	}
	if i, ok := w.infraIndex[id]; ok {
		return i, true
	}
	if e, ok := w.envIndex[id]; ok {
		return e, true
	}
	return nil, false
}

// GetByID searches the world itself, then organizations, infrastructures,
// environments and agents, and returns the first match.
func (w *World) GetByID(id string) (model.Node, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if id == w.ID() {
		return w, true
	}
	if o, ok := w.orgIndex[id]; ok {
		return o, true
	}
	if i, ok := w.infraIndex[id]; ok {
		return i, true
	}
	if e, ok := w.envIndex[id]; ok {
		return e, true
	}
	if a, ok := w.agentIndex[id]; ok {
		return a, true
	}
	return nil, false
}

// Agent returns the registered agent with the given id.
func (w *World) Agent(id string) (*agents.Agent, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.agentIndex[id]
	return a, ok
}

// Container returns the registered container with the given id.
func (w *World) Container(id string) (social.Container, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.containerLocked(id)
}

// AllObjects returns a snapshot of every organization followed by its direct
// agents, then every infrastructure and environment.
func (w *World) AllObjects() []model.Node {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]model.Node, 0, len(w.orgs)+len(w.agentList)+len(w.infras)+len(w.envs))
	for _, o := range w.orgs {
		out = append(out, o)
		for _, a := range o.DirectMembers() {
			out = append(out, a)
		}
	}
	for _, i := range w.infras {
		out = append(out, i)
	}
	for _, e := range w.envs {
		out = append(out, e)
	}
	return out
}

// Agents returns every registered agent in registration order.
func (w *World) Agents() []*agents.Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.agentList)
}

// Organizations returns every registered organization, sub-organizations
// included.
func (w *World) Organizations() []*social.Organization {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.orgs)
}

// TopLevelOrganizations returns the organizations without a parent.
func (w *World) TopLevelOrganizations() []*social.Organization {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.topLevelLocked()
}

func (w *World) topLevelLocked() []*social.Organization {
	var out []*social.Organization
	for _, o := range w.orgs {
		if o.IsTopLevel() {
			out = append(out, o)
		}
	}
	return out
}

// Infrastructures returns every registered infrastructure.
func (w *World) Infrastructures() []*social.Infrastructure {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.infras)
}

// Environments returns every registered environment.
func (w *World) Environments() []*social.Environment {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.envs)
}

// Stats counts registered nodes by kind.
type Stats struct {
	Organizations   int `json:"organizations"`
	Infrastructures int `json:"infrastructures"`
	Environments    int `json:"environments"`
	Agents          int `json:"agents"`
}

// Stats returns the current counts.
func (w *World) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		Organizations:   len(w.orgs),
		Infrastructures: len(w.infras),
		Environments:    len(w.envs),
		Agents:          len(w.agentList),
	}
}

// Diagnostics returns every insertion and removal diagnostic recorded so far.
func (w *World) Diagnostics() []model.Diagnostic {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.diagnostics)
}

// DrainDiagnostics returns the diagnostics recorded since the last drain.
func (w *World) DrainDiagnostics() []model.Diagnostic {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

// Deliver queues msg in the recipient's mailbox.
func (w *World) Deliver(msg agents.Message) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.deliverLocked(msg)
}

func (w *World) deliverLocked(msg agents.Message) error {
	a, ok := w.agentIndex[msg.RecipientID]
	if !ok {
		return &model.NotFoundError{Kind: model.KindAgent, ID: msg.RecipientID}
	}
	a.Mailbox().Send(msg)
	return nil
}

// lockedRouter is handed to registered agents. Their communicate actions only
// execute inside Update, which already holds the read lock.
type lockedRouter struct{ w *World }

func (r lockedRouter) Deliver(msg agents.Message) error { return r.w.deliverLocked(msg) }
