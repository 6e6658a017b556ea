// Organizations: a tree of sub-organizations, each with its own directly
// affiliated agents. The parent link is a back-reference by id only.
package social

import (
	"fmt"
	"slices"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/model"
)

// Organization groups constituents and sub-organizations.
type Organization struct {
	model.Identity
	ParentID string `json:"parent_id,omitempty"`

	subOrgs []*Organization
	members
}

// NewOrganization creates an empty top-level organization.
func NewOrganization(id, name string) *Organization {
	return &Organization{Identity: model.NewIdentity(id, name)}
}

func (o *Organization) Kind() model.Kind { return model.KindOrganization }

// IsTopLevel reports whether o has no parent.
func (o *Organization) IsTopLevel() bool { return o.ParentID == "" }

// AddMember attaches an agent and records the organization as its owner.
func (o *Organization) AddMember(a *agents.Agent) error { return o.add(o.ID(), a) }

// RemoveMember detaches a direct member.
func (o *Organization) RemoveMember(id string) error { return o.remove(o.ID(), id) }

// AddSubOrganization makes sub a child of o. It is rejected when sub already
// has a parent or when o is inside sub's subtree.
func (o *Organization) AddSubOrganization(sub *Organization) error {
	switch {
	case sub == o || sub.ID() == o.ID():
		return &model.StructuralError{ID: sub.ID(), Reason: "organization cannot contain itself"}
	case sub.ParentID != "":
		return &model.StructuralError{ID: sub.ID(), Reason: fmt.Sprintf("already a sub-organization of %q", sub.ParentID)}
	case sub.contains(o):
		return &model.StructuralError{ID: sub.ID(), Reason: fmt.Sprintf("adding under %q would create a cycle", o.ID())}
	}
	if _, ok := o.SubOrganization(sub.ID()); ok {
		return &model.DuplicateIDError{ID: sub.ID()}
	}
	sub.ParentID = o.ID()
	o.subOrgs = append(o.subOrgs, sub)
	return nil
}

// RemoveSubOrganization detaches a direct child and clears its parent link.
func (o *Organization) RemoveSubOrganization(id string) error {
	i := slices.IndexFunc(o.subOrgs, func(s *Organization) bool { return s.ID() == id })
	if i < 0 {
		return fmt.Errorf("%s: %w", o.ID(), &model.NotFoundError{Kind: model.KindOrganization, ID: id})
	}
	o.subOrgs[i].ParentID = ""
	o.subOrgs = slices.Delete(o.subOrgs, i, i+1)
	return nil
}

// SubOrganization looks up a direct child by id.
func (o *Organization) SubOrganization(id string) (*Organization, bool) {
	for _, s := range o.subOrgs {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// SubOrganizations returns a copy of the direct children.
func (o *Organization) SubOrganizations() []*Organization {
	return slices.Clone(o.subOrgs)
}

// contains reports whether target is o or any organization below it.
func (o *Organization) contains(target *Organization) bool {
	found := false
	o.walk(func(s *Organization, _ int) bool {
		if s == target || s.ID() == target.ID() {
			found = true
		}
		return !found
	})
	return found
}

// walk visits o and its descendants pre-order with their depth below o.
// Each organization is visited at most once; fn returning false stops the walk.
func (o *Organization) walk(fn func(s *Organization, depth int) bool) {
	seen := make(map[*Organization]bool)
	var visit func(s *Organization, depth int) bool
	visit = func(s *Organization, depth int) bool {
		if seen[s] {
			return true
		}
		seen[s] = true
		if !fn(s, depth) {
			return false
		}
		for _, c := range s.subOrgs {
			if !visit(c, depth+1) {
				return false
			}
		}
		return true
	}
	visit(o, 0)
}

// Descendants returns every organization below o, pre-order.
func (o *Organization) Descendants() []*Organization {
	var out []*Organization
	o.walk(func(s *Organization, depth int) bool {
		if depth > 0 {
			out = append(out, s)
		}
		return true
	})
	return out
}

// AllMembers returns the direct members of o followed by those of every
// sub-organization, pre-order.
func (o *Organization) AllMembers() []*agents.Agent {
	var out []*agents.Agent
	o.walk(func(s *Organization, _ int) bool {
		out = append(out, s.list...)
		return true
	})
	return out
}

// Depth returns the number of organization levels in o's subtree; a leaf
// organization has depth 1.
func (o *Organization) Depth() int {
	deepest := 0
	o.walk(func(_ *Organization, depth int) bool {
		deepest = max(deepest, depth+1)
		return true
	})
	return deepest
}

// Run runs the direct members, then each sub-organization.
func (o *Organization) Run(tick int) *model.RunResult {
	rr := &model.RunResult{Subject: o}
	o.run(rr, tick)
	for _, s := range o.subOrgs {
		rr.AddChild(s.Run(tick))
	}
	return rr
}

// Update commits the results of members and sub-organizations in order.
func (o *Organization) Update(rr *model.RunResult, tick int) model.UpdateResult {
	return updateChildren(o, o.SubOrganization, rr, tick)
}
