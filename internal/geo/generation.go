// Map generation using layered simplex noise.
package geo

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds map generation parameters.
type GenConfig struct {
	ID       string
	Name     string
	Width    int
	Height   int
	Seed     int64   // Random seed (0 = random)
	SeaLevel float64 // Elevation below which tiles are impassable (0.0–1.0)
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		ID:       "map",
		Name:     "Default Map",
		Width:    32,
		Height:   32,
		SeaLevel: 0.28,
	}
}

// Generate creates a map whose passability follows an elevation noise field.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	elevNoise := opensimplex.NewNormalized(seed)

	m := NewMap(cfg.ID, cfg.Name, cfg.Width, cfg.Height)
	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			elev := octaveNoise(elevNoise, float64(x), float64(y), 4, 0.08, 0.5)
			m.Cells[y][x] = Cell{
				Elevation: elev,
				Passable:  elev >= cfg.SeaLevel,
			}
		}
	}
	return m
}

// NearestPassable scans outward from (x, y) in row-major rings and returns the
// first walkable tile. ok is false when the map has none.
func (m *Map) NearestPassable(x, y int) (px, py int, ok bool) {
	maxR := m.Width() + m.Height()
	for r := 0; r <= maxR; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if abs(dx) != r && abs(dy) != r {
					continue
				}
				if c := m.Cell(x+dx, y+dy); c != nil && c.Passable {
					return x + dx, y + dy, true
				}
			}
		}
	}
	return 0, 0, false
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
