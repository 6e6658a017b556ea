package world

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/geo"
	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/social"
)

func worker(t *testing.T, id string) *agents.Agent {
	t.Helper()
	a := agents.NewAgent(id, id, agents.RoleConstituent)
	require.NoError(t, a.AddCapability(agents.NewFunctionAction(id+"/work", "work", nil)))
	return a
}

// rescueTree builds an organization with two agents and a sub-organization
// holding a third.
func rescueTree(t *testing.T) *social.Organization {
	t.Helper()
	org := social.NewOrganization("rescue", "Rescue")
	sub := social.NewOrganization("medics", "Medics")
	require.NoError(t, org.AddSubOrganization(sub))
	require.NoError(t, org.AddMember(worker(t, "a1")))
	require.NoError(t, org.AddMember(worker(t, "a2")))
	require.NoError(t, sub.AddMember(worker(t, "a3")))
	return org
}

func TestOrganizationCascade(t *testing.T) {
	w := New("sos", "SoS")
	org := rescueTree(t)

	require.NoError(t, w.AddOrganization(org))
	assert.Equal(t, Stats{Organizations: 2, Agents: 3}, w.Stats())

	a1, ok := w.Agent("a1")
	require.True(t, ok)
	assert.Equal(t, "sos", a1.WorldID)

	// Re-adding the same subtree reports every id and adds nothing.
	err := w.AddOrganization(org)
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"rescue", "a1", "a2", "medics", "a3"}, model.DuplicateIDs(err))
	assert.Equal(t, Stats{Organizations: 2, Agents: 3}, w.Stats())

	diags := w.Diagnostics()
	require.Len(t, diags, 5)
	for _, d := range diags {
		assert.Equal(t, model.DiagDuplicateID, d.Code)
	}
	assert.Len(t, w.DrainDiagnostics(), 5)
	assert.Empty(t, w.DrainDiagnostics())
}

func TestPartialDuplicateSubtreeContinues(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddAgent(worker(t, "a2")))

	err := w.AddOrganization(rescueTree(t))
	assert.Equal(t, []string{"a2"}, model.DuplicateIDs(err))
	assert.Equal(t, Stats{Organizations: 2, Agents: 3}, w.Stats())
}

func TestRejectedAgentDoesNotRun(t *testing.T) {
	w := New("sos", "SoS")
	first := worker(t, "a2")
	require.NoError(t, w.AddAgent(first))

	org := rescueTree(t)
	require.Error(t, w.AddOrganization(org))
	_, stillMember := org.Member("a2")
	assert.False(t, stillMember)

	registered, ok := w.Agent("a2")
	require.True(t, ok)
	assert.Same(t, first, registered)

	ur := w.Update(w.Run(1), 1)
	subjects := make(map[string]int)
	for _, ev := range ur.Events {
		subjects[ev.SubjectID]++
	}
	assert.Equal(t, map[string]int{"a1": 1, "a3": 1}, subjects)
}

func TestDuplicateContainerRegistersNothing(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddOrganization(social.NewOrganization("x", "X")))
	require.NoError(t, w.AddInfrastructure(social.NewInfrastructure("net", "Net", social.InfraCommunication)))
	require.NoError(t, w.AddEnvironment(social.NewEnvironment("sea", "Sea")))
	before := w.Stats()

	org := social.NewOrganization("x", "Impostor")
	sub := social.NewOrganization("x-sub", "Sub")
	require.NoError(t, org.AddSubOrganization(sub))
	require.NoError(t, org.AddMember(worker(t, "newcomer")))
	require.NoError(t, sub.AddMember(worker(t, "deep")))

	infra := social.NewInfrastructure("net", "Impostor", social.InfraPhysical)
	require.NoError(t, infra.AddMember(worker(t, "ghost")))

	env := social.NewEnvironment("sea", "Impostor")
	require.NoError(t, env.AddMember(worker(t, "wave")))

	tests := []struct {
		name string
		add  func() error
	}{
		{"organization", func() error { return w.AddOrganization(org) }},
		{"infrastructure", func() error { return w.AddInfrastructure(infra) }},
		{"environment", func() error { return w.AddEnvironment(env) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dup *model.DuplicateIDError
			assert.ErrorAs(t, tt.add(), &dup)
			assert.Equal(t, before, w.Stats())
			assert.Empty(t, w.Agents())
		})
	}

	for _, id := range []string{"newcomer", "deep", "ghost", "wave", "x-sub"} {
		_, found := w.GetByID(id)
		assert.False(t, found, id)
	}
	o, ok := w.Container("x")
	require.True(t, ok)
	assert.Equal(t, "X", o.Name())
}

func TestRejectedSubOrganizationIsDetached(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddAgent(worker(t, "medics")))

	org := rescueTree(t)
	err := w.AddOrganization(org)
	assert.Equal(t, []string{"medics"}, model.DuplicateIDs(err))
	assert.Empty(t, org.SubOrganizations())
	assert.Equal(t, Stats{Organizations: 1, Agents: 3}, w.Stats())

	ur := w.Update(w.Run(1), 1)
	for _, ev := range ur.Events {
		assert.NotEqual(t, "a3", ev.SubjectID)
	}
}

func TestIDUniquenessAcrossKinds(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddEnvironment(social.NewEnvironment("shared", "Env")))

	var dup *model.DuplicateIDError
	assert.ErrorAs(t, w.AddInfrastructure(social.NewInfrastructure("shared", "Infra", social.InfraPhysical)), &dup)
	assert.ErrorAs(t, w.AddOrganization(social.NewOrganization("shared", "Org")), &dup)
	assert.ErrorAs(t, w.AddAgent(agents.NewAgent("shared", "Agent", agents.RoleConstituent)), &dup)
	assert.ErrorAs(t, w.AddAgent(agents.NewAgent("sos", "Agent", agents.RoleConstituent)), &dup)
	assert.Equal(t, Stats{Environments: 1}, w.Stats())
}

func TestStructuralErrors(t *testing.T) {
	w := New("sos", "SoS")
	var st *model.StructuralError

	orphan := agents.NewAgent("a1", "A", agents.RoleConstituent, agents.WithOwner("ghost"))
	assert.ErrorAs(t, w.AddAgent(orphan), &st)

	other := social.NewOrganization("other", "Other")
	sub := social.NewOrganization("sub", "Sub")
	require.NoError(t, other.AddSubOrganization(sub))
	assert.ErrorAs(t, w.AddOrganization(sub), &st)
	assert.Equal(t, Stats{}, w.Stats())

	var nf *model.NotFoundError
	assert.ErrorAs(t, w.AddSubOrganization("missing", social.NewOrganization("x", "X")), &nf)
}

func TestAddAgentAttachesToOwner(t *testing.T) {
	w := New("sos", "SoS")
	infra := social.NewInfrastructure("net", "Radio", social.InfraCommunication)
	require.NoError(t, w.AddInfrastructure(infra))

	require.NoError(t, w.AddAgent(agents.NewAgent("tower", "Tower", agents.RoleSystemEntity, agents.WithOwner("net"))))
	_, member := infra.Member("tower")
	assert.True(t, member)
}

func TestAddSubOrganization(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddOrganization(rescueTree(t)))

	team := social.NewOrganization("divers", "Divers")
	require.NoError(t, team.AddMember(worker(t, "a4")))
	require.NoError(t, w.AddSubOrganization("medics", team))

	assert.Equal(t, "medics", team.ParentID)
	assert.Equal(t, Stats{Organizations: 3, Agents: 4}, w.Stats())
	assert.Len(t, w.TopLevelOrganizations(), 1)
}

func TestGetByIDPriority(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddOrganization(rescueTree(t)))

	n, ok := w.GetByID("sos")
	require.True(t, ok)
	assert.Equal(t, model.KindWorld, n.Kind())

	n, ok = w.GetByID("medics")
	require.True(t, ok)
	assert.Equal(t, model.KindOrganization, n.Kind())

	n, ok = w.GetByID("a3")
	require.True(t, ok)
	assert.Equal(t, model.KindAgent, n.Kind())

	_, ok = w.GetByID("nobody")
	assert.False(t, ok)
}

func TestAllObjects(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddInfrastructure(social.NewInfrastructure("net", "Radio", social.InfraCommunication)))
	require.NoError(t, w.AddEnvironment(social.NewEnvironment("sky", "Sky")))
	require.NoError(t, w.AddOrganization(rescueTree(t)))

	var ids []string
	for _, n := range w.AllObjects() {
		ids = append(ids, n.ID())
	}
	assert.Equal(t, []string{"rescue", "a1", "a2", "medics", "a3", "net", "sky"}, ids)
}

func TestRemoval(t *testing.T) {
	w := New("sos", "SoS")
	org := rescueTree(t)
	require.NoError(t, w.AddOrganization(org))

	require.NoError(t, w.RemoveAgent("a1"))
	_, ok := org.Member("a1")
	assert.False(t, ok)

	require.NoError(t, w.RemoveOrganization("medics"))
	assert.Equal(t, Stats{Organizations: 1, Agents: 1}, w.Stats())
	assert.Empty(t, org.SubOrganizations())
	_, ok = w.GetByID("a3")
	assert.False(t, ok)

	var nf *model.NotFoundError
	assert.ErrorAs(t, w.RemoveAgent("a1"), &nf)
	assert.ErrorAs(t, w.RemoveInfrastructure("net"), &nf)
	assert.ErrorAs(t, w.RemoveEnvironment("sky"), &nf)
	last := w.Diagnostics()[len(w.Diagnostics())-1]
	assert.Equal(t, model.DiagNotFound, last.Code)

	// Removed ids can be reused.
	require.NoError(t, w.AddAgent(worker(t, "a3")))
}

// eventOrderWorld has one environment, one infrastructure and one top-level
// organization, inserted in reverse of the run order.
func eventOrderWorld(t *testing.T) *World {
	t.Helper()
	w := New("sos", "SoS")

	org := social.NewOrganization("org", "Org")
	require.NoError(t, org.AddMember(worker(t, "org-agent")))
	require.NoError(t, w.AddOrganization(org))

	infra := social.NewInfrastructure("infra", "Infra", social.InfraService)
	require.NoError(t, infra.AddMember(worker(t, "infra-agent")))
	require.NoError(t, w.AddInfrastructure(infra))

	env := social.NewEnvironment("env", "Env")
	require.NoError(t, env.AddMember(worker(t, "env-agent")))
	require.NoError(t, w.AddEnvironment(env))
	return w
}

func TestTickOrdering(t *testing.T) {
	w := eventOrderWorld(t)

	ur := w.Update(w.Run(1), 1)
	require.Len(t, ur.Events, 3)
	assert.Equal(t, "env-agent", ur.Events[0].SubjectID)
	assert.Equal(t, "infra-agent", ur.Events[1].SubjectID)
	assert.Equal(t, "org-agent", ur.Events[2].SubjectID)
	assert.Equal(t, 1, w.LastTick())
}

func TestRunIsIdempotent(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddOrganization(rescueTree(t)))
	env := social.NewEnvironment("env", "Env")
	m := geo.NewMap("m", "Map", 10, 10)
	start, err := m.NewLocation(5, 5)
	require.NoError(t, err)
	drifter := agents.NewAgent("cloud", "Cloud", agents.RoleResourceEntity,
		agents.WithLocation(start), agents.WithMovePolicy(agents.NewRandomMovePolicy(3)))
	for _, c := range agents.CompassDeltas {
		require.NoError(t, drifter.AddCapability(agents.NewMoveAction(c.Name, c.Name, c.Deltas)))
	}
	require.NoError(t, env.AddMember(drifter))
	require.NoError(t, w.AddEnvironment(env))

	first := w.Run(4)
	second := w.Run(4)
	assert.True(t, first.Equal(second))
	assert.True(t, drifter.CurrentLocation().Equal(start))
}

func TestRunParallelMatchesRun(t *testing.T) {
	w := eventOrderWorld(t)
	require.NoError(t, w.AddOrganization(rescueTree(t)))

	seq := w.Run(2)
	par, err := w.RunParallel(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.True(t, seq.Equal(par))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.RunParallel(ctx, 3, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMailboxLatencyThroughWorld(t *testing.T) {
	w := New("sos", "SoS")
	infra := social.NewInfrastructure("net", "Radio", social.InfraCommunication)
	beacon := agents.NewAgent("beacon", "Beacon", agents.RoleSystemEntity,
		agents.WithMessageHook(func(a *agents.Agent, act model.Action, tick int) (any, error) {
			return "status", nil
		}))
	require.NoError(t, beacon.AddCapability(agents.NewCommunicateAction("ping", "ping", "a1")))
	require.NoError(t, infra.AddMember(beacon))
	require.NoError(t, w.AddInfrastructure(infra))
	require.NoError(t, w.AddOrganization(rescueTree(t)))

	a1, _ := w.Agent("a1")

	ur := w.Update(w.Run(1), 1)
	require.NotEmpty(t, ur.Events)
	assert.Equal(t, model.EventMessageSent, ur.Events[0].Type)
	assert.Empty(t, a1.Inbox())

	w.Update(w.Run(2), 2)
	inbox := a1.Inbox()
	require.Len(t, inbox, 1)
	assert.Equal(t, "beacon", inbox[0].SenderID)
	assert.Equal(t, 1, inbox[0].Tick)
}

func TestUpdateAfterContainerRemoval(t *testing.T) {
	w := eventOrderWorld(t)
	rr := w.Run(1)
	require.NoError(t, w.RemoveInfrastructure("infra"))

	ur := w.Update(rr, 1)
	assert.Len(t, ur.Events, 2)
	require.Len(t, ur.Diagnostics, 1)
	assert.Equal(t, model.DiagNotFound, ur.Diagnostics[0].Code)
}

func TestUnaffiliatedAgentsAreNotRun(t *testing.T) {
	w := New("sos", "SoS")
	require.NoError(t, w.AddAgent(worker(t, "loner")))
	ur := w.Update(w.Run(1), 1)
	assert.Empty(t, ur.Events)
}

func TestDescribe(t *testing.T) {
	w := eventOrderWorld(t)
	require.NoError(t, w.AddAgent(worker(t, "loner")))

	var buf bytes.Buffer
	require.NoError(t, w.Describe(&buf))
	out := buf.String()
	assert.Contains(t, out, `world sos "SoS"`)
	assert.Contains(t, out, "  environment env")
	assert.Contains(t, out, "    agent env-agent")
	assert.Contains(t, out, "unaffiliated")
}
