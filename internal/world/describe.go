package world

import (
	"fmt"
	"io"
	"strings"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/social"
)

// Describe writes an indented outline of the model: environments,
// infrastructures, the organization tree and any unaffiliated agents.
func (w *World) Describe(out io.Writer) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	d := describer{out: out}
	d.line(0, "world %s %q", w.ID(), w.Name())
	if w.Map != nil {
		d.line(1, "%s", w.Map)
	}
	for _, e := range w.envs {
		d.line(1, "environment %s %q", e.ID(), e.Name())
		d.agents(2, e.DirectMembers())
	}
	for _, i := range w.infras {
		d.line(1, "infrastructure %s %q type=%s", i.ID(), i.Name(), i.Type)
		d.agents(2, i.DirectMembers())
	}
	for _, o := range w.topLevelLocked() {
		d.org(1, o)
	}

	var loose []*agents.Agent
	for _, a := range w.agentList {
		if a.OwnerID == "" {
			loose = append(loose, a)
		}
	}
	if len(loose) > 0 {
		d.line(1, "unaffiliated")
		d.agents(2, loose)
	}
	return d.err
}

type describer struct {
	out io.Writer
	err error
}

func (d *describer) line(depth int, format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.out, "%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

func (d *describer) org(depth int, o *social.Organization) {
	d.line(depth, "organization %s %q", o.ID(), o.Name())
	d.agents(depth+1, o.DirectMembers())
	for _, s := range o.SubOrganizations() {
		d.org(depth+1, s)
	}
}

func (d *describer) agents(depth int, list []*agents.Agent) {
	for _, a := range list {
		status := ""
		if !a.Activated {
			status = " inactive"
		}
		d.line(depth, "agent %s %q %s at %s capabilities=%d%s",
			a.ID(), a.Name(), a.Role, a.CurrentLocation(), len(a.Capabilities()), status)
	}
}
