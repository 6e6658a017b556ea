package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/model"
)

func worker(t *testing.T, id string) *agents.Agent {
	t.Helper()
	a := agents.NewAgent(id, id, agents.RoleConstituent)
	require.NoError(t, a.AddCapability(agents.NewFunctionAction(id+"/work", "work", nil)))
	return a
}

func TestAddSubOrganizationRejectsCycles(t *testing.T) {
	root := NewOrganization("root", "Root")
	mid := NewOrganization("mid", "Mid")
	leaf := NewOrganization("leaf", "Leaf")
	require.NoError(t, root.AddSubOrganization(mid))
	require.NoError(t, mid.AddSubOrganization(leaf))

	var st *model.StructuralError
	assert.ErrorAs(t, root.AddSubOrganization(root), &st)

	// leaf already has a parent.
	assert.ErrorAs(t, root.AddSubOrganization(leaf), &st)

	// root has no parent but sits above leaf.
	assert.ErrorAs(t, leaf.AddSubOrganization(root), &st)
	assert.True(t, root.IsTopLevel())
	assert.Equal(t, "root", mid.ParentID)
	assert.Equal(t, 3, root.Depth())
	assert.Equal(t, []*Organization{mid, leaf}, root.Descendants())
}

func TestRemoveSubOrganizationClearsParent(t *testing.T) {
	root := NewOrganization("root", "Root")
	sub := NewOrganization("sub", "Sub")
	require.NoError(t, root.AddSubOrganization(sub))
	require.NoError(t, root.RemoveSubOrganization("sub"))
	assert.True(t, sub.IsTopLevel())
	assert.Empty(t, root.SubOrganizations())

	var nf *model.NotFoundError
	assert.ErrorAs(t, root.RemoveSubOrganization("sub"), &nf)
}

func TestAllMembersIncludesSubOrganizations(t *testing.T) {
	root := NewOrganization("root", "Root")
	sub := NewOrganization("sub", "Sub")
	require.NoError(t, root.AddSubOrganization(sub))
	a1, a2, a3 := worker(t, "a1"), worker(t, "a2"), worker(t, "a3")
	require.NoError(t, root.AddMember(a1))
	require.NoError(t, root.AddMember(a2))
	require.NoError(t, sub.AddMember(a3))

	assert.Equal(t, []*agents.Agent{a1, a2}, root.DirectMembers())
	assert.Equal(t, []*agents.Agent{a1, a2, a3}, root.AllMembers())
	assert.Equal(t, "sub", a3.OwnerID)

	var dup *model.DuplicateIDError
	assert.ErrorAs(t, root.AddMember(a1), &dup)
}

func TestOrganizationRunMirrorsHierarchy(t *testing.T) {
	root := NewOrganization("root", "Root")
	sub := NewOrganization("sub", "Sub")
	require.NoError(t, root.AddSubOrganization(sub))
	require.NoError(t, root.AddMember(worker(t, "a1")))
	require.NoError(t, sub.AddMember(worker(t, "a2")))

	rr := root.Run(1)
	require.Len(t, rr.Children, 2)
	assert.Equal(t, "a1", rr.Children[0].Subject.ID())
	assert.Equal(t, model.KindOrganization, rr.Children[1].Subject.Kind())
	assert.Equal(t, "a2", rr.Children[1].Children[0].Subject.ID())

	ur := root.Update(rr, 1)
	require.Len(t, ur.Events, 2)
	assert.Equal(t, "a1", ur.Events[0].SubjectID)
	assert.Equal(t, "a2", ur.Events[1].SubjectID)
}

func TestUpdateReportsMembersRemovedAfterRun(t *testing.T) {
	env := NewEnvironment("env", "Weather")
	require.NoError(t, env.AddMember(worker(t, "storm")))

	rr := env.Run(1)
	require.NoError(t, env.RemoveMember("storm"))
	ur := env.Update(rr, 1)

	assert.Empty(t, ur.Events)
	require.Len(t, ur.Diagnostics, 1)
	assert.Equal(t, model.DiagNotFound, ur.Diagnostics[0].Code)
}

func TestInfrastructure(t *testing.T) {
	infra := NewInfrastructure("net", "Radio", InfraCommunication)
	assert.Equal(t, model.KindInfrastructure, infra.Kind())
	assert.Equal(t, "communication", infra.Type.String())

	a := worker(t, "tower")
	require.NoError(t, infra.AddMember(a))
	assert.Equal(t, "net", a.OwnerID)

	ur := infra.Update(infra.Run(2), 2)
	require.Len(t, ur.Events, 1)
	assert.Equal(t, model.EventFunctionExecuted, ur.Events[0].Type)

	require.NoError(t, infra.RemoveMember("tower"))
	assert.Empty(t, a.OwnerID)
}
