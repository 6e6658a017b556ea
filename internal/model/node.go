// Package model defines the identity model, the action contract and the
// intermediate results of the two-phase tick protocol.
package model

import "fmt"

// Kind tags every node so that the tick protocol can dispatch without type
// inspection.
type Kind uint8

const (
	KindWorld Kind = iota
	KindOrganization
	KindInfrastructure
	KindEnvironment
	KindAgent
)

var kindNames = [...]string{"world", "organization", "infrastructure", "environment", "agent"}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsContainer reports whether nodes of this kind hold other nodes.
func (k Kind) IsContainer() bool {
	return k == KindOrganization || k == KindInfrastructure || k == KindEnvironment
}

// Flags are the lifecycle flags carried by every node.
type Flags struct {
	Static    bool `json:"static"`
	Activated bool `json:"activated"`
	Available bool `json:"available"`
}

// Identity is embedded by every node type. The id is unique across the whole
// World at all times.
type Identity struct {
	NodeID   string `json:"id"`
	NodeName string `json:"name"`
	Flags
}

// NewIdentity returns an identity with all lifecycle flags set.
func NewIdentity(id, name string) Identity {
	return Identity{
		NodeID:   id,
		NodeName: name,
		Flags:    Flags{Static: true, Activated: true, Available: true},
	}
}

// ID returns the node id.
func (i *Identity) ID() string { return i.NodeID }

// Name returns the display name.
func (i *Identity) Name() string { return i.NodeName }

// Lifecycle returns the node's lifecycle flags.
func (i *Identity) Lifecycle() Flags { return i.Flags }

// Node is implemented by the World, every container and every agent.
type Node interface {
	ID() string
	Name() string
	Kind() Kind
	Lifecycle() Flags
}
