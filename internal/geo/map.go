package geo

import "fmt"

// DimSpec describes one axis of a map.
type DimSpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Cell is a single map tile.
type Cell struct {
	Elevation float64 `json:"elevation"` // 0.0 (sea level) to 1.0 (peak)
	Passable  bool    `json:"passable"`
}

// Map is the geographical map of an SoS: a rectangular grid over two
// dimensions (by default "x" and "y").
type Map struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Dimensions [2]DimSpec `json:"dimensions"`
	Cells      [][]Cell   `json:"-"` // Cells[y][x]
}

// NewMap creates an all-passable flat map of the given size.
func NewMap(id, name string, width, height int) *Map {
	m := &Map{
		ID:   id,
		Name: name,
		Dimensions: [2]DimSpec{
			{ID: "x", Name: "x", Min: 0, Max: width - 1},
			{ID: "y", Name: "y", Min: 0, Max: height - 1},
		},
		Cells: make([][]Cell, height),
	}
	for y := range m.Cells {
		m.Cells[y] = make([]Cell, width)
		for x := range m.Cells[y] {
			m.Cells[y][x] = Cell{Passable: true}
		}
	}
	return m
}

// Width returns the number of columns.
func (m *Map) Width() int {
	return m.Dimensions[0].Max - m.Dimensions[0].Min + 1
}

// Height returns the number of rows.
func (m *Map) Height() int {
	return m.Dimensions[1].Max - m.Dimensions[1].Min + 1
}

// NewLocation creates a location on this map whose dimensions carry the
// map's bounds as domains.
func (m *Map) NewLocation(x, y int) (*Location, error) {
	dx, err := NewBoundedDimVar(m.Dimensions[0].ID, m.Dimensions[0].Name, x, m.Dimensions[0].Min, m.Dimensions[0].Max)
	if err != nil {
		return nil, err
	}
	dy, err := NewBoundedDimVar(m.Dimensions[1].ID, m.Dimensions[1].Name, y, m.Dimensions[1].Min, m.Dimensions[1].Max)
	if err != nil {
		return nil, err
	}
	return NewLocation(dx, dy), nil
}

// Cell returns the tile at (x, y), or nil if out of bounds.
func (m *Map) Cell(x, y int) *Cell {
	x -= m.Dimensions[0].Min
	y -= m.Dimensions[1].Min
	if y < 0 || y >= len(m.Cells) || x < 0 || x >= len(m.Cells[y]) {
		return nil
	}
	return &m.Cells[y][x]
}

// At returns the tile under loc, or nil if the location is off the map.
func (m *Map) At(loc *Location) *Cell {
	return m.Cell(loc.Value(m.Dimensions[0].ID), loc.Value(m.Dimensions[1].ID))
}

// Passable reports whether loc is on the map and walkable.
func (m *Map) Passable(loc *Location) bool {
	c := m.At(loc)
	return c != nil && c.Passable
}

// PassableAfter reports whether moving loc by deltas ends on a walkable tile.
// loc is not modified.
func (m *Map) PassableAfter(loc *Location, deltas map[string]int) bool {
	x := loc.Value(m.Dimensions[0].ID) + deltas[m.Dimensions[0].ID]
	y := loc.Value(m.Dimensions[1].ID) + deltas[m.Dimensions[1].ID]
	c := m.Cell(x, y)
	return c != nil && c.Passable
}

// CostAt returns the cost of standing on loc's tile: 1 on flat ground,
// rising with elevation. Off-map locations cost -1.
func (m *Map) CostAt(loc *Location) float64 {
	c := m.At(loc)
	if c == nil {
		return -1
	}
	return 1 + 4*c.Elevation
}

// PassableCount returns the number of walkable tiles.
func (m *Map) PassableCount() int {
	n := 0
	for _, row := range m.Cells {
		for _, c := range row {
			if c.Passable {
				n++
			}
		}
	}
	return n
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(%s, %dx%d, passable=%d)", m.ID, m.Width(), m.Height(), m.PassableCount())
}
