package world

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/social"
)

// runOrderLocked lists the containers the world runs directly: every
// environment, then every infrastructure, then the top-level organizations.
// Sub-organizations are reached through their parents.
func (w *World) runOrderLocked() []social.Container {
	out := make([]social.Container, 0, len(w.envs)+len(w.infras)+len(w.orgs))
	for _, e := range w.envs {
		out = append(out, e)
	}
	for _, i := range w.infras {
		out = append(out, i)
	}
	for _, o := range w.topLevelLocked() {
		out = append(out, o)
	}
	return out
}

// Run is the read phase of tick. Each container runs its members and the
// results are collected into a tree that mirrors the hierarchy. Only the
// agents' own selection and inbox buffers change.
func (w *World) Run(tick int) *model.RunResult {
	w.mu.RLock()
	defer w.mu.RUnlock()

	rr := &model.RunResult{Subject: w}
	for _, c := range w.runOrderLocked() {
		rr.AddChild(c.Run(tick))
	}
	return rr
}

// RunParallel is Run with each top-level subtree on its own goroutine. At
// most limit subtrees run at once; limit <= 0 means no limit. The result
// equals what Run would return.
func (w *World) RunParallel(ctx context.Context, tick, limit int) (*model.RunResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	order := w.runOrderLocked()
	slots := make([]*model.RunResult, len(order))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, c := range order {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slots[i] = c.Run(tick)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rr := &model.RunResult{Subject: w}
	for _, s := range slots {
		rr.AddChild(s)
	}
	return rr, nil
}

// Update is the commit phase of tick. Each child result is dispatched by its
// kind tag to the registered container of that id. Events keep the
// depth-first order of rr.
func (w *World) Update(rr *model.RunResult, tick int) model.UpdateResult {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var ur model.UpdateResult
	for _, child := range rr.Children {
		if c, ok := w.childContainerLocked(child.Subject); ok {
			ur.Merge(c.Update(child, tick))
			continue
		}
		ur.Diagnostics = append(ur.Diagnostics, model.DiagnosticFor(tick, w.ID(), "",
			&model.NotFoundError{Kind: child.Subject.Kind(), ID: child.Subject.ID()}))
	}
	w.lastTick.Store(int64(tick))
	return ur
}

func (w *World) childContainerLocked(n model.Node) (social.Container, bool) {
	switch n.Kind() {
	case model.KindEnvironment:
		if e, ok := w.envIndex[n.ID()]; ok {
			return e, true
		}
	case model.KindInfrastructure:
		if i, ok := w.infraIndex[n.ID()]; ok {
			return i, true
		}
	case model.KindOrganization:
		if o, ok := w.orgIndex[n.ID()]; ok {
			return o, true
		}
	}
	return nil, false
}
