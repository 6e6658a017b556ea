// Agent spawning: creates batches of agents placed on passable map tiles,
// each carrying the standard compass moves.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/sosim/internal/geo"
)

// CompassDeltas are the four unit moves on a 2-D map, in capability order.
var CompassDeltas = []struct {
	Name   string
	Deltas map[string]int
}{
	{"north", map[string]int{"y": -1}},
	{"east", map[string]int{"x": 1}},
	{"south", map[string]int{"y": 1}},
	{"west", map[string]int{"x": -1}},
}

// Spawner creates agents on a map.
type Spawner struct {
	rng    *rand.Rand
	m      *geo.Map
	nextID int
}

// NewSpawner creates a spawner with the given seed.
func NewSpawner(seed int64, m *geo.Map) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		m:      m,
		nextID: 1,
	}
}

// Spawn creates count agents with ids "<prefix>-<n>". Each one starts on a
// passable tile and can move one step in each compass direction onto
// passable ground.
func (s *Spawner) Spawn(prefix string, count int, role Role, opts ...Option) ([]*Agent, error) {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		a, err := s.spawnOne(prefix, role, opts)
		if err != nil {
			return out, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Spawner) spawnOne(prefix string, role Role, opts []Option) (*Agent, error) {
	id := fmt.Sprintf("%s-%d", prefix, s.nextID)
	s.nextID++

	x, y, ok := s.m.NearestPassable(s.rng.Intn(s.m.Width()), s.rng.Intn(s.m.Height()))
	if !ok {
		return nil, fmt.Errorf("spawn %s: map %q has no passable tile", id, s.m.ID)
	}
	loc, err := s.m.NewLocation(x, y)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}

	a := NewAgent(id, id, role, append([]Option{WithLocation(loc)}, opts...)...)
	for _, c := range CompassDeltas {
		mv := NewMoveAction(id+"/"+c.Name, c.Name, c.Deltas)
		mv.When = OnPassable(s.m, c.Deltas)
		if err := a.AddCapability(mv); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// OnPassable is a move precondition: the tile after applying deltas must be
// on the map and passable.
func OnPassable(m *geo.Map, deltas map[string]int) Precondition {
	return func(owner *Agent) (bool, error) {
		if owner == nil || owner.location == nil {
			return false, nil
		}
		return m.PassableAfter(owner.location, deltas), nil
	}
}
