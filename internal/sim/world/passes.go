package world

import (
	"time"

	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/sector"
	"gardenperf.ai/internal/sim/spatial"
)

// sampleControl feeds every controllable entity's latest motion report into
// its control state machine.
func (w *World) sampleControl(now time.Time) {
	grace := w.settings.Grace()
	var acquired, released []*entity.Entity
	w.sector.EachControllable(func(e *entity.Entity) {
		moving := e.Speed() > w.settings.MovingSpeedThreshold
		switch e.Control.Update(moving, now, grace) {
		case entity.ControlAcquired:
			acquired = append(acquired, e)
		case entity.ControlReleased:
			released = append(released, e)
		}
	})
	sector.SortByID(acquired)
	for _, e := range acquired {
		w.sector.ControllableEntityControlled(e)
	}
	sector.SortByID(released)
	for _, e := range released {
		w.sector.ControllableEntityReleased(e)
	}
}

// refreshGridSpawn consumes the per-grid spawn update flags set by a spawn
// owner rebuild.
func (w *World) refreshGridSpawn() {
	for _, g := range w.sector.TakeSpawnPending() {
		if !g.SpawnUpdateNeeded() {
			continue
		}
		if g.RefreshSpawn(w.sector.SpawnOwnerNeeded(g.OwnerID)) {
			w.sector.NotifySpawnExemption(g)
		}
	}
}

// updateObservers recomputes the observed set of every observer that was
// invalidated or moved since its last pass.
func (w *World) updateObservers() {
	radius := w.settings.RevealVisibilityMeters
	var stale []*entity.Entity
	w.sector.EachObserving(func(o *entity.Entity) {
		if o.NeedsObservingUpdate() {
			stale = append(stale, o)
		}
	})
	sector.SortByID(stale)
	for _, o := range stale {
		sphere := spatial.Sphere{Center: o.Position(), Radius: radius}
		grids := w.sector.ObservableInSphere(sphere)
		ids := make([]entity.ID, 0, len(grids))
		for _, g := range grids {
			if g.ID() == o.ID() {
				continue
			}
			ids = append(ids, g.ID())
		}
		entered, left := o.SetObserved(ids)
		for _, id := range entered {
			if g := w.sector.Grid(id); g != nil {
				g.AddObserver()
			}
		}
		for _, id := range left {
			if g := w.sector.Grid(id); g != nil {
				g.RemoveObserver()
			}
		}

		if !w.settings.AutoReveal {
			continue
		}
		for _, rec := range w.conceal.ConcealedInSphere(sphere) {
			w.conceal.QueueReveal(rec.ID)
		}
	}
}

func (w *World) revealSpawnNeeded() {
	for _, rec := range w.conceal.Store().All() {
		if rec.SpawnNeeded {
			w.conceal.QueueReveal(rec.ID)
		}
	}
}

// autoConceal queues every grid nobody needs.
func (w *World) autoConceal() {
	var idle []*entity.Entity
	w.sector.EachGrid(func(g *entity.Entity) {
		if w.conceal.CanAutoConceal(g.ID()) {
			idle = append(idle, g)
		}
	})
	sector.SortByID(idle)
	for _, g := range idle {
		w.conceal.QueueConceal(g.ID())
	}
}
