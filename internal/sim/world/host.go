package world

import (
	"encoding/json"
	"errors"
	"fmt"

	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/conceal"
	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/spatial"
)

var errHostBusy = errors.New("host command queue full")

func (w *World) handleHostAttach(req HostAttachRequest) {
	if w.host != nil {
		w.log.Printf("host %q refused: %q already attached", req.HostName, w.host.Name)
		req.Resp <- HostAttachResponse{Code: protocol.ErrHostConflict}
		return
	}
	w.host = &hostState{SessionID: req.SessionID, Name: req.HostName, Out: req.Out, concealSent: map[entity.ID]struct{}{}}
	var concealed []entity.ID
	for _, r := range w.conceal.Store().All() {
		concealed = append(concealed, r.ID)
	}
	w.log.Printf("host %q attached (session %s), %d grids concealed", req.HostName, req.SessionID, len(concealed))
	w.recordSession(SessionRecord{SessionID: req.SessionID, Role: RoleHost, Event: SessionConnect, HostName: req.HostName})
	req.Resp <- HostAttachResponse{OK: true, Concealed: concealed}
}

// handleHostLeave drops every revealed entity; the host re-reports them when
// it comes back. Concealed records and player state are kept.
func (w *World) handleHostLeave(sessionID string) {
	if w.host == nil || w.host.SessionID != sessionID {
		return
	}
	w.log.Printf("host %q detached", w.host.Name)
	w.recordSession(SessionRecord{SessionID: sessionID, Role: RoleHost, Event: SessionDisconnect, HostName: w.host.Name})
	w.host = nil
	for _, e := range w.sector.Entities() {
		w.sector.EntityRemoved(e)
	}
}

func (w *World) handleHostMessage(env HostEnvelope) {
	if w.host == nil || w.host.SessionID != env.SessionID {
		return
	}
	var err error
	switch env.Type {
	case protocol.TypeEntityAdded:
		var m protocol.EntityAddedMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil {
			err = w.hostEntityAdded(m)
		}
	case protocol.TypeEntityMoved:
		var m protocol.EntityMovedMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil {
			err = w.hostEntityMoved(m)
		}
	case protocol.TypeEntityRemoved:
		var m protocol.EntityRemovedMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil {
			w.hostEntityRemoved(entity.ID(m.EntityID))
		}
	case protocol.TypeFactionRoster:
		var m protocol.FactionRosterMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil {
			w.hostFactionRoster(m)
		}
	case protocol.TypePlayerFactionChanged:
		var m protocol.PlayerFactionChangedMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil {
			p := entity.PlayerID(m.PlayerID)
			from := w.roster.Set(p, entity.FactionID(m.To))
			w.sector.PlayerChangedFactions(p, from, entity.FactionID(m.To))
		}
	case protocol.TypePlayerLogin:
		var m protocol.PlayerSessionMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil {
			w.sector.PlayerLoggedIn(entity.PlayerID(m.PlayerID), entity.FactionID(m.FactionID))
		}
	case protocol.TypePlayerLogout:
		var m protocol.PlayerSessionMsg
		if err = json.Unmarshal(env.Raw, &m); err == nil {
			w.sector.PlayerLoggedOut(entity.PlayerID(m.PlayerID), entity.FactionID(m.FactionID))
		}
	default:
		// Unknown host messages are ignored.
	}
	if err != nil {
		w.log.Printf("host %s: bad %s: %v", env.SessionID, env.Type, err)
		w.sendHost(protocol.HostErrorMsg{Type: protocol.TypeHostError, Code: protocol.ErrProtoBadRequest, Message: err.Error()})
	}
}

func capsFrom(names []string) entity.Capability {
	var c entity.Capability
	for _, n := range names {
		switch n {
		case protocol.CapObservable:
			c |= entity.Observable
		case protocol.CapObserving:
			c |= entity.Observing
		case protocol.CapGrid:
			c |= entity.Grid
		case protocol.CapControllable:
			c |= entity.Controllable
		}
	}
	return c
}

func boxFrom(b protocol.Box) (spatial.AABB, error) {
	box := spatial.BoxFrom(b.Min, b.Max)
	if !box.Valid() {
		return box, fmt.Errorf("bounds min %v exceeds max %v", b.Min, b.Max)
	}
	return box, nil
}

func boxTo(b spatial.AABB) protocol.Box {
	return protocol.Box{Min: b.Min.Array(), Max: b.Max.Array()}
}

func (w *World) hostEntityAdded(m protocol.EntityAddedMsg) error {
	id := entity.ID(m.EntityID)
	if w.sector.Entity(id) != nil {
		w.log.Printf("host re-added entity %d, ignored", id)
		return nil
	}
	bounds, err := boxFrom(m.Bounds)
	if err != nil {
		return fmt.Errorf("entity %d: %w", id, err)
	}
	// A concealed grid coming back, whether we asked for it or not.
	w.conceal.Forget(id)
	delete(w.host.concealSent, id)

	e := entity.New(entity.Attrs{
		ID:             id,
		Caps:           capsFrom(m.Caps),
		DisplayName:    m.DisplayName,
		Position:       spatial.VecFrom(m.Pos),
		Bounds:         bounds,
		OwnerID:        entity.PlayerID(m.OwnerID),
		RevealBlocked:  m.RevealBlocked,
		InsideAsteroid: m.InsideAsteroid,
	})
	w.sector.EntityAdded(e)
	if e.IsObservable() {
		w.sector.RevealedEntityAdded(e)
	}
	return nil
}

func (w *World) hostEntityMoved(m protocol.EntityMovedMsg) error {
	e := w.sector.Entity(entity.ID(m.EntityID))
	if e == nil {
		w.log.Printf("host moved unknown entity %d, ignored", m.EntityID)
		return nil
	}
	bounds, err := boxFrom(m.Bounds)
	if err != nil {
		return fmt.Errorf("entity %d: %w", m.EntityID, err)
	}
	e.Relocate(spatial.VecFrom(m.Pos), bounds, m.Speed)
	if m.RevealBlocked != nil {
		e.RevealBlocked = *m.RevealBlocked
	}
	if m.InsideAsteroid != nil {
		e.InsideAsteroid = *m.InsideAsteroid
	}
	w.sector.EntityMoved(e)
	return nil
}

func (w *World) hostEntityRemoved(id entity.ID) {
	e := w.sector.Entity(id)
	if e == nil {
		if _, ok := w.host.concealSent[id]; ok {
			// The host confirming a CONCEAL; the record stays.
			delete(w.host.concealSent, id)
			return
		}
		// Deleted while concealed.
		if w.conceal.Forget(id) {
			w.log.Printf("host deleted concealed grid %d", id)
			return
		}
		w.log.Printf("host removed unknown entity %d, ignored", id)
		return
	}
	if e.IsObservable() {
		w.sector.RevealedEntityRemoved(e)
	}
	w.sector.EntityRemoved(e)
}

func (w *World) hostFactionRoster(m protocol.FactionRosterMsg) {
	factions := make(map[entity.FactionID][]entity.PlayerID, len(m.Factions))
	for _, f := range m.Factions {
		members := make([]entity.PlayerID, 0, len(f.Members))
		for _, p := range f.Members {
			members = append(members, entity.PlayerID(p))
		}
		factions[entity.FactionID(f.FactionID)] = members
	}
	for _, c := range w.roster.Replace(factions) {
		w.sector.PlayerChangedFactions(c.Player, c.From, c.To)
	}
}

func (w *World) sendHost(v any) error {
	if w.host == nil {
		return conceal.ErrNoHost
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case w.host.Out <- b:
		return nil
	default:
		return errHostBusy
	}
}

// hostLink carries conceal and reveal commands to the attached host.
type hostLink struct{ w *World }

func (h hostLink) Conceal(g *entity.Entity) error {
	if err := h.w.sendHost(protocol.ConcealCmdMsg{Type: protocol.TypeConcealCmd, EntityID: int64(g.ID())}); err != nil {
		return err
	}
	h.w.host.concealSent[g.ID()] = struct{}{}
	return nil
}

func (h hostLink) Reveal(r conceal.Record) error {
	return h.w.sendHost(protocol.RevealCmdMsg{
		Type:        protocol.TypeRevealCmd,
		EntityID:    int64(r.ID),
		DisplayName: r.DisplayName,
		OwnerID:     int64(r.OwnerID),
		Pos:         r.Position.Array(),
		Bounds:      boxTo(r.Bounds),
	})
}
