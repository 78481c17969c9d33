package lattice

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/lattice-engine/lattice/statsd"
)

// The dispatcher. Sequential mode runs each system and drains its
// structural effects before the next system starts, so every system sees
// the consistent snapshot left by the previous drain. Parallel mode runs
// a group concurrently, joins, and only then drains each member's
// effects in the order given.

// RunSequential runs the named systems in order, draining after each.
func (w *World) RunSequential(names ...string) error {
	for _, name := range names {
		sys, err := w.system(name)
		if err != nil {
			return err
		}
		if !sys.active {
			continue
		}

		start := time.Now()
		if err := sys.run(); err != nil {
			return eris.Wrapf(err, "system %s failed", name)
		}
		statsd.EmitTickStat(start, "system:"+name)

		start = time.Now()
		w.drainSystem(sys)
		statsd.EmitTickStat(start, "drain:"+name)

		w.log.Debug().Str("system", name).Msg("system ran")
	}
	return nil
}

// RunParallel runs the named systems concurrently and drains their
// structural effects after the join, in the order given. The group's
// declared access is verified on first use: overlapping writes, mixed
// write/read of the same component, or shared structural capabilities
// fail loudly with ErrConflictingGroup instead of racing.
func (w *World) RunParallel(names ...string) error {
	entries := make([]*systemEntry, 0, len(names))
	for _, name := range names {
		sys, err := w.system(name)
		if err != nil {
			return err
		}
		entries = append(entries, sys)
	}

	if err := w.verifyGroup(names, entries); err != nil {
		return err
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(w.cfg.Workers)
	for _, sys := range entries {
		if !sys.active {
			continue
		}
		g.Go(func() error {
			if err := sys.run(); err != nil {
				return eris.Wrapf(err, "system %s failed", sys.name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	statsd.EmitTickStat(start, "parallel-group")

	for _, sys := range entries {
		if sys.active {
			w.drainSystem(sys)
		}
	}

	w.log.Debug().Strs("systems", names).Msg("parallel group ran")
	return nil
}

// Tick runs every registered system sequentially, in registration order.
func (w *World) Tick() error {
	start := time.Now()
	defer statsd.EmitTickStat(start, "tick")

	for _, sys := range w.systems {
		if !sys.active {
			continue
		}
		if err := sys.run(); err != nil {
			return eris.Wrapf(err, "system %s failed", sys.name)
		}
		w.drainSystem(sys)
	}
	return nil
}

// verifyGroup checks a parallel group's declared access once and caches
// the verdict per group.
func (w *World) verifyGroup(names []string, entries []*systemEntry) error {
	key := strings.Join(names, "\x00")
	if _, done := w.checkedGroups[key]; done {
		return nil
	}

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if err := conflictBetween(entries[i], entries[j]); err != nil {
				return err
			}
		}
	}

	w.checkedGroups[key] = struct{}{}
	return nil
}

// conflictBetween reports why two systems cannot share a parallel group,
// or nil if their declared access is disjoint where it must be.
func conflictBetween(a, b *systemEntry) error {
	// A component written or structurally mutated by one side must not
	// be touched at all by the other.
	aTouched := a.access.reads.Clone()
	mergeMask(&aTouched, a.access.writes)
	mergeMask(&aTouched, a.access.structural)
	bTouched := b.access.reads.Clone()
	mergeMask(&bTouched, b.access.writes)
	mergeMask(&bTouched, b.access.structural)

	aExclusive := a.access.writes.Clone()
	mergeMask(&aExclusive, a.access.structural)
	bExclusive := b.access.writes.Clone()
	mergeMask(&bExclusive, b.access.structural)

	if masksIntersect(aExclusive, bTouched) || masksIntersect(bExclusive, aTouched) {
		return eris.Wrapf(ErrConflictingGroup, "systems %s and %s share component access", a.name, b.name)
	}

	if slicesIntersect(a.access.resWrites, b.access.resReads) ||
		slicesIntersect(a.access.resWrites, b.access.resWrites) ||
		slicesIntersect(b.access.resWrites, a.access.resReads) {
		return eris.Wrapf(ErrConflictingGroup, "systems %s and %s share resource access", a.name, b.name)
	}

	if a.access.builds && b.access.builds {
		return eris.Wrapf(ErrConflictingGroup, "systems %s and %s both build entities", a.name, b.name)
	}
	if a.access.destroys && b.access.destroys {
		return eris.Wrapf(ErrConflictingGroup, "systems %s and %s both destroy entities", a.name, b.name)
	}
	return nil
}

func mergeMask(dst *Mask, src Mask) {
	src.Range(func(i int) { dst.Set(i) })
}
