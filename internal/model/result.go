package model

// RunResult is produced by the Run phase. For an agent it pairs the agent with
// its selected actions; for a container it holds the results of its members.
// The tree mirrors the container hierarchy at the moment Run was invoked.
type RunResult struct {
	Subject  Node
	Actions  []Action
	Children []*RunResult
}

// AddChild appends a member result.
func (r *RunResult) AddChild(child *RunResult) {
	r.Children = append(r.Children, child)
}

// Walk visits the tree depth-first, left to right. Returning false from fn
// skips the node's children.
func (r *RunResult) Walk(fn func(*RunResult) bool) {
	if r == nil || !fn(r) {
		return
	}
	for _, c := range r.Children {
		c.Walk(fn)
	}
}

// ActionCount returns the number of selected actions in the whole tree.
func (r *RunResult) ActionCount() int {
	n := 0
	r.Walk(func(rr *RunResult) bool {
		n += len(rr.Actions)
		return true
	})
	return n
}

// Equal reports whether two trees have the same subjects, selected actions
// and shape.
func (r *RunResult) Equal(other *RunResult) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Subject.ID() != other.Subject.ID() || r.Subject.Kind() != other.Subject.Kind() {
		return false
	}
	if len(r.Actions) != len(other.Actions) || len(r.Children) != len(other.Children) {
		return false
	}
	for i, a := range r.Actions {
		if a.ID() != other.Actions[i].ID() {
			return false
		}
	}
	for i, c := range r.Children {
		if !c.Equal(other.Children[i]) {
			return false
		}
	}
	return true
}

// UpdateResult is produced by the Update phase: the log events in traversal
// order plus diagnostics for effects that were rejected.
type UpdateResult struct {
	Events      []LogEvent   `json:"events"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Merge appends other's events and diagnostics, preserving order.
func (u *UpdateResult) Merge(other UpdateResult) {
	u.Events = append(u.Events, other.Events...)
	u.Diagnostics = append(u.Diagnostics, other.Diagnostics...)
}
