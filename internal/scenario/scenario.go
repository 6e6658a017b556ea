// Package scenario assembles the demo System of Systems: a storm drifting
// over generated terrain, a radio beacon that warns the rescue teams and
// patrols that walk the passable ground.
package scenario

import (
	"fmt"
	"log/slog"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/entropy"
	"github.com/talgya/sosim/internal/geo"
	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/social"
	"github.com/talgya/sosim/internal/world"
)

// Config controls the size and seed of the demo world.
type Config struct {
	ID   string
	Name string

	Seed          uint64 // 0 = random
	Width, Height int
	SeaLevel      float64

	Patrols int // Constituents in the rescue organization
	Medics  int // Constituents in the medics sub-organization

	// AlertLevel is the storm intensity at which the beacon starts warning.
	AlertLevel int

	// MovePolicy for every constituent. Nil picks randomly from Seed.
	MovePolicy agents.MovePolicy
}

// DefaultConfig returns a small world that exercises every capability kind.
func DefaultConfig() Config {
	return Config{
		ID:         "sos",
		Name:       "Coastal Rescue",
		Width:      32,
		Height:     24,
		SeaLevel:   geo.DefaultGenConfig().SeaLevel,
		Patrols:    4,
		Medics:     2,
		AlertLevel: 5,
	}
}

// Alert is the payload the beacon sends to each rescue agent.
type Alert struct {
	StormAt   string `json:"storm_at"`
	Intensity int    `json:"intensity"`
}

const (
	maxIntensity   = 10
	startIntensity = 3
)

// Build constructs the world. Any insertion error aborts the build.
func Build(cfg Config) (*world.World, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("scenario: map size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Seed == 0 {
		cfg.Seed = entropy.RandomSeed()
	}
	if cfg.MovePolicy == nil {
		cfg.MovePolicy = agents.NewRandomMovePolicy(cfg.Seed)
	}

	m := geo.Generate(geo.GenConfig{
		ID:       cfg.ID + "-terrain",
		Name:     cfg.Name,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Seed:     int64(cfg.Seed >> 1),
		SeaLevel: cfg.SeaLevel,
	})

	w := world.New(cfg.ID, cfg.Name)
	w.Map = m
	src := entropy.NewSource(cfg.Seed)

	storm, err := buildStorm(m, src, cfg.MovePolicy)
	if err != nil {
		return nil, fmt.Errorf("scenario: storm: %w", err)
	}
	weather := social.NewEnvironment("weather", "Weather")
	if err := weather.AddMember(storm); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := w.AddEnvironment(weather); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	rescue, responders, err := buildRescue(m, cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario: rescue: %w", err)
	}

	comms := social.NewInfrastructure("comms", "Radio Network", social.InfraCommunication)
	beacon, err := buildBeacon(storm, responders, cfg.AlertLevel)
	if err != nil {
		return nil, fmt.Errorf("scenario: beacon: %w", err)
	}
	if err := comms.AddMember(beacon); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := w.AddInfrastructure(comms); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	if err := w.AddOrganization(rescue); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	slog.Info("scenario built",
		"world", cfg.ID,
		"seed", cfg.Seed,
		"map", m.String(),
		"responders", len(responders),
	)
	return w, nil
}

// buildStorm creates the drifting resource entity. Its moves are only
// bounded by the map edge; water does not stop it.
func buildStorm(m *geo.Map, src *entropy.Source, policy agents.MovePolicy) (*agents.Agent, error) {
	loc, err := m.NewLocation(m.Width()/2, m.Height()/2)
	if err != nil {
		return nil, err
	}
	intensity, err := geo.NewBoundedDimVar("intensity", "Intensity", startIntensity, 0, maxIntensity)
	if err != nil {
		return nil, err
	}

	storm := agents.NewAgent("storm", "Storm", agents.RoleResourceEntity,
		agents.WithLocation(loc),
		agents.WithStateVar(intensity),
		agents.WithMovePolicy(policy),
	)
	for _, c := range agents.CompassDeltas {
		mv := agents.NewMoveAction("storm/"+c.Name, c.Name, c.Deltas)
		mv.When = onMap(m, c.Deltas)
		if err := storm.AddCapability(mv); err != nil {
			return nil, err
		}
	}

	churn := agents.NewFunctionAction("storm/churn", "churn", func(ctx agents.FuncContext) ([]model.LogEvent, error) {
		delta := src.IntN("storm/churn", ctx.Tick, 3) - 1
		if delta == 0 {
			return nil, nil
		}
		v, _ := ctx.Agent.StateVar("intensity")
		if !v.CheckUpdateValid(delta) {
			delta = -delta
		}
		ev, err := ctx.AdjustState("intensity", delta)
		if err != nil {
			return nil, err
		}
		return []model.LogEvent{ev}, nil
	})
	if err := storm.AddCapability(churn); err != nil {
		return nil, err
	}
	return storm, nil
}

// onMap is the storm's move precondition: the target cell must exist.
func onMap(m *geo.Map, deltas map[string]int) agents.Precondition {
	return func(owner *agents.Agent) (bool, error) {
		loc := owner.CurrentLocation()
		if loc == nil {
			return false, nil
		}
		x := loc.Value("x") + deltas["x"]
		y := loc.Value("y") + deltas["y"]
		return m.Cell(x, y) != nil, nil
	}
}

// buildRescue creates the rescue organization, its medics sub-organization
// and their constituents. It returns every constituent in membership order.
func buildRescue(m *geo.Map, cfg Config) (*social.Organization, []*agents.Agent, error) {
	rescue := social.NewOrganization("rescue", "Rescue Service")
	medics := social.NewOrganization("medics", "Medical Team")
	if err := rescue.AddSubOrganization(medics); err != nil {
		return nil, nil, err
	}

	opts := []agents.Option{
		agents.WithMovePolicy(cfg.MovePolicy),
		agents.WithStateVar(geo.NewDimVar("alerts", "Alerts received", 0)),
	}
	spawner := agents.NewSpawner(int64(cfg.Seed>>1), m)
	patrols, err := spawner.Spawn("patrol", cfg.Patrols, agents.RoleConstituent, opts...)
	if err != nil {
		return nil, nil, err
	}
	medicAgents, err := spawner.Spawn("medic", cfg.Medics, agents.RoleConstituent, opts...)
	if err != nil {
		return nil, nil, err
	}

	var all []*agents.Agent
	for _, group := range []struct {
		org     *social.Organization
		members []*agents.Agent
	}{
		{rescue, patrols},
		{medics, medicAgents},
	} {
		for _, a := range group.members {
			if err := equipResponder(a); err != nil {
				return nil, nil, err
			}
			if err := group.org.AddMember(a); err != nil {
				return nil, nil, err
			}
			all = append(all, a)
		}
	}
	return rescue, all, nil
}

// equipResponder gives a constituent a report action that counts warnings
// whenever the inbox holds any.
func equipResponder(a *agents.Agent) error {
	report := agents.NewFunctionAction(a.ID()+"/report", "report", func(ctx agents.FuncContext) ([]model.LogEvent, error) {
		ev, err := ctx.AdjustState("alerts", len(ctx.Agent.Inbox()))
		if err != nil {
			return nil, err
		}
		return []model.LogEvent{ev}, nil
	})
	report.When = func(owner *agents.Agent) (bool, error) {
		return len(owner.Inbox()) > 0, nil
	}
	report.SetProfile(model.Profile{Cost: 1, Duration: 1})
	return a.AddCapability(report)
}

// buildBeacon creates the system entity that warns every responder while the
// storm is at or above level.
func buildBeacon(storm *agents.Agent, responders []*agents.Agent, level int) (*agents.Agent, error) {
	hook := func(_ *agents.Agent, _ model.Action, _ int) (any, error) {
		v, ok := storm.StateVar("intensity")
		if !ok {
			return nil, fmt.Errorf("storm has no intensity")
		}
		return Alert{StormAt: storm.CurrentLocation().String(), Intensity: v.Value}, nil
	}
	beacon := agents.NewAgent("beacon", "Storm Beacon", agents.RoleSystemEntity, agents.WithMessageHook(hook))

	stormy := func(*agents.Agent) (bool, error) {
		v, ok := storm.StateVar("intensity")
		if !ok {
			return false, fmt.Errorf("storm has no intensity")
		}
		return v.Value >= level, nil
	}
	for _, r := range responders {
		warn := agents.NewCommunicateAction("beacon/warn/"+r.ID(), "warn "+r.Name(), r.ID())
		warn.When = stormy
		if err := beacon.AddCapability(warn); err != nil {
			return nil, err
		}
	}
	return beacon, nil
}
