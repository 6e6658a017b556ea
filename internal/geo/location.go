package geo

import (
	"strconv"
	"strings"
)

// Coord is an immutable snapshot of one location dimension.
type Coord struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// Location is an ordered vector of dimension variables describing where an
// agent is. It is owned by exactly one agent and replaced wholesale on movement.
type Location struct {
	Dims []*DimVar `json:"dims"`
}

// NewLocation builds a location from the given dimensions, in order.
func NewLocation(dims ...*DimVar) *Location {
	return &Location{Dims: dims}
}

// Clone returns a deep copy; mutating the clone never affects the original.
func (l *Location) Clone() *Location {
	if l == nil {
		return nil
	}
	dims := make([]*DimVar, len(l.Dims))
	for i, d := range l.Dims {
		dims[i] = d.Clone()
	}
	return &Location{Dims: dims}
}

// Index returns the position of the dimension with the given id, or -1.
func (l *Location) Index(id string) int {
	if l == nil {
		return -1
	}
	for i, d := range l.Dims {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the dimension with the given id.
func (l *Location) Get(id string) (*DimVar, bool) {
	i := l.Index(id)
	if i < 0 {
		return nil, false
	}
	return l.Dims[i], true
}

// Value returns the current value of a dimension, or 0 if absent.
func (l *Location) Value(id string) int {
	if d, ok := l.Get(id); ok {
		return d.Value
	}
	return 0
}

// Coords returns a value snapshot in dimension order.
func (l *Location) Coords() []Coord {
	if l == nil {
		return nil
	}
	out := make([]Coord, len(l.Dims))
	for i, d := range l.Dims {
		out[i] = Coord{ID: d.ID, Value: d.Value}
	}
	return out
}

// Equal compares dimension ids and values in order. Domains are ignored.
func (l *Location) Equal(other *Location) bool {
	if l == nil || other == nil {
		return l == other
	}
	if len(l.Dims) != len(other.Dims) {
		return false
	}
	for i, d := range l.Dims {
		o := other.Dims[i]
		if d.ID != o.ID || d.Value != o.Value {
			return false
		}
	}
	return true
}

// String formats the location as (v1,v2,...).
func (l *Location) String() string {
	if l == nil {
		return "()"
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, d := range l.Dims {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(d.Value))
	}
	b.WriteByte(')')
	return b.String()
}
