// Package social provides the containers of a model: organizations,
// infrastructures and environments, each holding actionable agents.
package social

import (
	"fmt"
	"slices"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/model"
)

// Container is implemented by every composite node.
type Container interface {
	model.Node
	Run(tick int) *model.RunResult
	Update(rr *model.RunResult, tick int) model.UpdateResult
	AddMember(a *agents.Agent) error
	RemoveMember(id string) error
	Member(id string) (*agents.Agent, bool)
	DirectMembers() []*agents.Agent
}

// members is the ordered list of agents a container holds directly.
type members struct {
	list []*agents.Agent
}

func (m *members) add(owner string, a *agents.Agent) error {
	if _, ok := m.Member(a.ID()); ok {
		return &model.DuplicateIDError{ID: a.ID()}
	}
	a.OwnerID = owner
	m.list = append(m.list, a)
	return nil
}

func (m *members) remove(owner, id string) error {
	i := slices.IndexFunc(m.list, func(a *agents.Agent) bool { return a.ID() == id })
	if i < 0 {
		return fmt.Errorf("%s: %w", owner, &model.NotFoundError{Kind: model.KindAgent, ID: id})
	}
	m.list[i].OwnerID = ""
	m.list = slices.Delete(m.list, i, i+1)
	return nil
}

// Member looks up a direct member by id.
func (m *members) Member(id string) (*agents.Agent, bool) {
	for _, a := range m.list {
		if a.ID() == id {
			return a, true
		}
	}
	return nil, false
}

// DirectMembers returns a copy of the member list.
func (m *members) DirectMembers() []*agents.Agent {
	return slices.Clone(m.list)
}

func (m *members) run(rr *model.RunResult, tick int) {
	for _, a := range m.list {
		rr.AddChild(a.Run(tick))
	}
}

// updateChildren commits each child result in order. Children are resolved by
// kind tag and id against the container's own members and sub-organizations.
func updateChildren(c Container, subOrg func(id string) (*Organization, bool), rr *model.RunResult, tick int) model.UpdateResult {
	var ur model.UpdateResult
	for _, child := range rr.Children {
		id := child.Subject.ID()
		switch child.Subject.Kind() {
		case model.KindAgent:
			if a, ok := c.Member(id); ok {
				ur.Merge(a.Update(child, tick))
				continue
			}
		case model.KindOrganization:
			if subOrg != nil {
				if o, ok := subOrg(id); ok {
					ur.Merge(o.Update(child, tick))
					continue
				}
			}
		}
		// The member left between Run and Update.
		ur.Diagnostics = append(ur.Diagnostics, model.DiagnosticFor(tick, c.ID(), "",
			&model.NotFoundError{Kind: child.Subject.Kind(), ID: id}))
	}
	return ur
}

// InfraType classifies an infrastructure.
type InfraType uint8

const (
	InfraPhysical      InfraType = iota // Roads, power, buildings
	InfraCommunication                  // Radio, networks
	InfraService                        // Logistics, medical
)

var infraNames = [...]string{"physical", "communication", "service"}

func (t InfraType) String() string {
	if int(t) < len(infraNames) {
		return infraNames[t]
	}
	return fmt.Sprintf("InfraType(%d)", t)
}

// Infrastructure is a container of system entities.
type Infrastructure struct {
	model.Identity
	Type InfraType `json:"type"`
	members
}

// NewInfrastructure creates an empty infrastructure.
func NewInfrastructure(id, name string, typ InfraType) *Infrastructure {
	return &Infrastructure{Identity: model.NewIdentity(id, name), Type: typ}
}

func (i *Infrastructure) Kind() model.Kind { return model.KindInfrastructure }

// AddMember attaches an agent and records the infrastructure as its owner.
func (i *Infrastructure) AddMember(a *agents.Agent) error { return i.add(i.ID(), a) }

// RemoveMember detaches an agent.
func (i *Infrastructure) RemoveMember(id string) error { return i.remove(i.ID(), id) }

// Run runs every member in order.
func (i *Infrastructure) Run(tick int) *model.RunResult {
	rr := &model.RunResult{Subject: i}
	i.run(rr, tick)
	return rr
}

// Update commits the member results.
func (i *Infrastructure) Update(rr *model.RunResult, tick int) model.UpdateResult {
	return updateChildren(i, nil, rr, tick)
}

// Environment is a container of resource entities such as weather or terrain
// features.
type Environment struct {
	model.Identity
	members
}

// NewEnvironment creates an empty environment.
func NewEnvironment(id, name string) *Environment {
	return &Environment{Identity: model.NewIdentity(id, name)}
}

func (e *Environment) Kind() model.Kind { return model.KindEnvironment }

// AddMember attaches an agent and records the environment as its owner.
func (e *Environment) AddMember(a *agents.Agent) error { return e.add(e.ID(), a) }

// RemoveMember detaches an agent.
func (e *Environment) RemoveMember(id string) error { return e.remove(e.ID(), id) }

// Run runs every member in order.
func (e *Environment) Run(tick int) *model.RunResult {
	rr := &model.RunResult{Subject: e}
	e.run(rr, tick)
	return rr
}

// Update commits the member results.
func (e *Environment) Update(rr *model.RunResult, tick int) model.UpdateResult {
	return updateChildren(e, nil, rr, tick)
}
