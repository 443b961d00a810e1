package world

import (
	"context"
	"time"

	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/entity"
)

// Run drives the world until ctx is done or Stop is called. Host events
// and player requests run to completion as they arrive; dirty work runs
// once per tick.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.settings.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.playerJoin:
			w.handlePlayerJoin(req)
		case id := <-w.playerLeave:
			w.handlePlayerLeave(id)
		case env := <-w.inbox:
			w.handleRequest(env)
		case req := <-w.hostAttach:
			w.handleHostAttach(req)
		case id := <-w.hostLeave:
			w.handleHostLeave(id)
		case env := <-w.hostInbox:
			w.handleHostMessage(env)
		case req := <-w.snapshotReq:
			w.handleSnapshotRequest(req)
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick. It is intended for tests
// and must not be mixed with Run.
func (w *World) StepOnce() uint64 {
	tick := w.tick.Load()
	w.step()
	return tick
}

func (w *World) step() {
	stepStart := time.Now()
	now := w.now()
	tick := w.tick.Load()

	if w.sector.UpdateSpawnOwnersIfNeeded() && w.settings.AutoReveal {
		w.revealSpawnNeeded()
	}
	w.sampleControl(now)
	w.refreshGridSpawn()
	if tick%uint64(w.settings.ObserverUpdateEveryTicks) == 0 {
		w.updateObservers()
	}
	if every := w.settings.AutoConcealEveryTicks; every > 0 && tick%uint64(every) == 0 {
		w.autoConceal()
	}
	trs := w.conceal.ProcessQueues(now, w.settings.MaxTransitionsPerTick)
	w.emit(tick, trs)
	if every := w.cfg.SnapshotEveryTicks; every > 0 && tick > 0 && tick%uint64(every) == 0 {
		if !w.sendSnapshot(w.ExportSnapshot()) {
			w.log.Printf("tick %d: snapshot dropped", tick)
		}
	}

	w.tick.Add(1)
	w.publishMetrics(time.Since(stepStart))
}

func (w *World) handlePlayerJoin(req PlayerJoinRequest) {
	w.clients[req.SessionID] = &clientState{PlayerID: req.PlayerID, Out: req.Out}
	w.log.Printf("player %d connected (session %s)", req.PlayerID, req.SessionID)
	w.recordSession(SessionRecord{SessionID: req.SessionID, Role: RolePlayer, Event: SessionConnect, PlayerID: int64(req.PlayerID)})
}

// handlePlayerLeave logs the player out when the connection dropped without
// an explicit logout.
func (w *World) handlePlayerLeave(sessionID string) {
	c := w.clients[sessionID]
	if c == nil {
		return
	}
	delete(w.clients, sessionID)
	if c.LoggedIn && !w.playerHasOtherLogin(c.PlayerID) {
		w.sector.PlayerLoggedOut(c.PlayerID, w.roster.Faction(c.PlayerID))
	}
	w.log.Printf("player %d disconnected (session %s)", c.PlayerID, sessionID)
	w.recordSession(SessionRecord{SessionID: sessionID, Role: RolePlayer, Event: SessionDisconnect, PlayerID: int64(c.PlayerID)})
}

func (w *World) playerHasOtherLogin(p entity.PlayerID) bool {
	for _, c := range w.clients {
		if c.PlayerID == p && c.LoggedIn {
			return true
		}
	}
	return false
}

func (w *World) handleRequest(env RequestEnvelope) {
	c := w.clients[env.SessionID]
	if c == nil {
		return
	}
	f, err := protocol.Decode(env.Raw)
	if err != nil {
		w.log.Printf("player %d: bad frame: %v", c.PlayerID, err)
		return
	}
	if !w.server.Disabled() && f.Domain == protocol.DomainConcealServer {
		switch f.Type {
		case protocol.TypeLoginRequest:
			c.LoggedIn = true
		case protocol.TypeLogoutRequest:
			c.LoggedIn = false
		}
	}
	resp := w.server.Handle(c.PlayerID, f)
	if resp == nil {
		return
	}
	b, err := protocol.EncodeResponse(resp)
	if err != nil {
		w.log.Printf("player %d: encode %T: %v", c.PlayerID, resp, err)
		return
	}
	sendLatest(c.Out, b)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
