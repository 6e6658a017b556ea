// Package geo provides domain-constrained variables, agent locations and the
// SoS geographical map.
package geo

import (
	"fmt"
	"slices"
)

// DomainKind distinguishes the two supported constraint shapes.
type DomainKind uint8

const (
	DomainBounded    DomainKind = iota // min ≤ value ≤ max
	DomainEnumerated                   // value ∈ allowed set
)

// String returns the domain kind name.
func (k DomainKind) String() string {
	switch k {
	case DomainBounded:
		return "bounded"
	case DomainEnumerated:
		return "enumerated"
	default:
		return fmt.Sprintf("DomainKind(%d)", k)
	}
}

// Domain constrains the values a DimVar may take.
type Domain struct {
	Kind    DomainKind `json:"kind"`
	Min     int        `json:"min,omitempty"`
	Max     int        `json:"max,omitempty"`
	Allowed []int      `json:"allowed,omitempty"`
}

// Bounded returns a closed-range domain.
func Bounded(min, max int) *Domain {
	return &Domain{Kind: DomainBounded, Min: min, Max: max}
}

// Enumerated returns a domain that accepts only the listed values.
func Enumerated(allowed ...int) *Domain {
	return &Domain{Kind: DomainEnumerated, Allowed: slices.Clone(allowed)}
}

// Contains reports whether v satisfies the domain. A nil domain accepts everything.
func (d *Domain) Contains(v int) bool {
	if d == nil {
		return true
	}
	switch d.Kind {
	case DomainBounded:
		return d.Min <= v && v <= d.Max
	case DomainEnumerated:
		return slices.Contains(d.Allowed, v)
	default:
		return false
	}
}

func (d *Domain) clone() *Domain {
	if d == nil {
		return nil
	}
	c := *d
	c.Allowed = slices.Clone(d.Allowed)
	return &c
}

// InvalidValueError is returned when a variable is created with a value
// outside its own domain.
type InvalidValueError struct {
	VarID string
	Value int
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("dimension %q: value %d violates domain", e.VarID, e.Value)
}

// DimVar is a named integer variable with an optional domain. While a domain
// is present the current value always satisfies it.
type DimVar struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Value  int     `json:"value"`
	Domain *Domain `json:"domain,omitempty"`
}

// NewDimVar creates an unconstrained variable.
func NewDimVar(id, name string, value int) *DimVar {
	return &DimVar{ID: id, Name: name, Value: value}
}

// NewConstrainedDimVar creates a variable bound to domain. It fails if the
// initial value is already outside the domain.
func NewConstrainedDimVar(id, name string, value int, domain *Domain) (*DimVar, error) {
	if !domain.Contains(value) {
		return nil, &InvalidValueError{VarID: id, Value: value}
	}
	return &DimVar{ID: id, Name: name, Value: value, Domain: domain.clone()}, nil
}

// NewBoundedDimVar is shorthand for a variable constrained to [min, max].
func NewBoundedDimVar(id, name string, value, min, max int) (*DimVar, error) {
	return NewConstrainedDimVar(id, name, value, Bounded(min, max))
}

// NewEnumeratedDimVar is shorthand for a variable constrained to allowed.
func NewEnumeratedDimVar(id, name string, value int, allowed ...int) (*DimVar, error) {
	return NewConstrainedDimVar(id, name, value, Enumerated(allowed...))
}

// Constrained reports whether the variable carries a domain.
func (v *DimVar) Constrained() bool {
	return v.Domain != nil
}

// CheckUpdateValid reports whether adding delta keeps the variable inside its domain.
func (v *DimVar) CheckUpdateValid(delta int) bool {
	return v.Domain.Contains(v.Value + delta)
}

// UpdateValue adds delta without re-validating. Callers must check
// CheckUpdateValid first.
func (v *DimVar) UpdateValue(delta int) {
	v.Value += delta
}

// Clone returns a deep copy.
func (v *DimVar) Clone() *DimVar {
	c := *v
	c.Domain = v.Domain.clone()
	return &c
}

func (v *DimVar) String() string {
	if v.Domain == nil {
		return fmt.Sprintf("%s=%d", v.ID, v.Value)
	}
	return fmt.Sprintf("%s=%d(%s)", v.ID, v.Value, v.Domain.Kind)
}
