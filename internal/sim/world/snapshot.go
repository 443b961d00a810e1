package world

import (
	"context"
	"errors"
	"time"

	"gardenperf.ai/internal/persistence/snapshot"
	"gardenperf.ai/internal/sim/conceal"
	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/spatial"
)

type snapshotReq struct {
	resp chan snapshotResp
}

type snapshotResp struct {
	tick uint64
	err  error
}

var errSnapshotSinkBusy = errors.New("snapshot sink busy")

// SetSnapshotSink receives periodic and requested snapshots. Sends never
// block the loop.
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// RequestSnapshot asks the running loop to emit a snapshot to the sink and
// returns the tick it was taken at.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	req := snapshotReq{resp: make(chan snapshotResp, 1)}
	select {
	case w.snapshotReq <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r.tick, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleSnapshotRequest(req snapshotReq) {
	snap := w.ExportSnapshot()
	var err error
	if !w.sendSnapshot(snap) {
		err = errSnapshotSinkBusy
	}
	req.resp <- snapshotResp{tick: snap.Header.Tick, err: err}
}

func (w *World) sendSnapshot(snap snapshot.SnapshotV1) bool {
	if w.snapshotSink == nil {
		return false
	}
	select {
	case w.snapshotSink <- snap:
		return true
	default:
		return false
	}
}

// ExportSnapshot captures the concealed store and settings. It must be
// called from the loop goroutine or while the loop is stopped.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			WorldID:   w.cfg.ID,
			Tick:      w.tick.Load(),
			CreatedAt: w.now().UnixNano(),
		},
		Settings: w.Settings(),
	}
	for _, r := range w.conceal.Store().All() {
		snap.Concealed = append(snap.Concealed, snapshot.ConcealedV1{
			ID:             int64(r.ID),
			DisplayName:    r.DisplayName,
			OwnerID:        int64(r.OwnerID),
			Pos:            r.Position.Array(),
			Min:            r.Bounds.Min.Array(),
			Max:            r.Bounds.Max.Array(),
			RevealBlocked:  r.RevealBlocked,
			InsideAsteroid: r.InsideAsteroid,
			ConcealedAt:    r.ConcealedAt.UnixNano(),
		})
	}
	return snap
}

// ImportSnapshot restores a snapshot into a world that has not started.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if err := snap.Settings.Validate(); err != nil {
		return err
	}
	w.settings = snap.Settings
	w.server.SetDisabled(snap.Settings.Disabled)
	w.sector.SetVisibility(snap.Settings.RevealVisibilityMeters)
	w.tick.Store(snap.Header.Tick)

	recs := make([]conceal.Record, 0, len(snap.Concealed))
	for _, c := range snap.Concealed {
		recs = append(recs, conceal.Record{
			ID:             entity.ID(c.ID),
			DisplayName:    c.DisplayName,
			OwnerID:        entity.PlayerID(c.OwnerID),
			Position:       spatial.VecFrom(c.Pos),
			Bounds:         spatial.BoxFrom(c.Min, c.Max),
			RevealBlocked:  c.RevealBlocked,
			InsideAsteroid: c.InsideAsteroid,
			ConcealedAt:    time.Unix(0, c.ConcealedAt).UTC(),
		})
	}
	n := w.conceal.Restore(recs)
	w.log.Printf("snapshot: restored %d concealed grids at tick %d", n, snap.Header.Tick)
	w.publishMetrics(0)
	return nil
}
