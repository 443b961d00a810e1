package session

import (
	"io"
	"log"
	"sync/atomic"

	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/conceal"
	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/sector"
	"gardenperf.ai/internal/sim/tuning"
)

// SettingsStore owns the live settings. ChangeSetting must apply the new
// value everywhere it is used before returning.
type SettingsStore interface {
	Settings() tuning.Settings
	ChangeSetting(name, value string) error
}

// Deps are the collaborators request handlers act on. They must only be
// touched from the goroutine that owns them, which is also the goroutine
// calling Handle.
type Deps struct {
	Sector   *sector.Revealed
	Conceal  *conceal.Manager
	Settings SettingsStore
	Factions sector.Factions
}

// Server answers server-domain requests.
type Server struct {
	log      *log.Logger
	deps     Deps
	disabled atomic.Bool
}

func NewServer(logger *log.Logger, deps Deps) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{log: logger, deps: deps}
	if deps.Settings != nil {
		s.disabled.Store(deps.Settings.Settings().Disabled)
	}
	return s
}

// SetDisabled toggles administrative disablement. It is safe to call from
// any goroutine.
func (s *Server) SetDisabled(v bool) {
	if s.disabled.Swap(v) != v {
		s.log.Printf("request handling disabled=%v", v)
	}
}

func (s *Server) Disabled() bool { return s.disabled.Load() }

// Dispatch decodes one raw frame from sender and returns the encoded
// response, or nil when there is nothing to send.
func (s *Server) Dispatch(sender entity.PlayerID, raw []byte) ([]byte, error) {
	f, err := protocol.Decode(raw)
	if err != nil {
		return nil, err
	}
	resp := s.Handle(sender, f)
	if resp == nil {
		return nil, nil
	}
	return protocol.EncodeResponse(resp)
}

// Handle runs the handler for f and returns the response message, or nil.
// Frames outside the server domain and unknown type tags are ignored.
func (s *Server) Handle(sender entity.PlayerID, f protocol.Frame) any {
	if f.Domain != protocol.DomainConcealServer {
		return nil
	}
	if s.Disabled() {
		return protocol.StatusResponse{ServerRunning: false}
	}

	switch f.Type {
	case protocol.TypeConcealedGridsRequest:
		return s.concealedGrids()
	case protocol.TypeRevealedGridsRequest:
		return s.revealedGrids()
	case protocol.TypeConcealRequest:
		var req protocol.ConcealRequest
		if err := f.Unmarshal(&req); err != nil {
			s.log.Printf("conceal request from %d: %v", sender, err)
			return protocol.ConcealResponse{EntityID: req.EntityID}
		}
		return s.conceal(sender, req)
	case protocol.TypeRevealRequest:
		var req protocol.RevealRequest
		if err := f.Unmarshal(&req); err != nil {
			s.log.Printf("reveal request from %d: %v", sender, err)
			return protocol.RevealResponse{EntityID: req.EntityID}
		}
		return s.reveal(sender, req)
	case protocol.TypeLoginRequest:
		s.login(sender)
		return nil
	case protocol.TypeLogoutRequest:
		s.logout(sender)
		return nil
	case protocol.TypeObservingEntitiesRequest:
		return s.observingEntities()
	case protocol.TypeSettingsRequest:
		return protocol.SettingsResponse{Settings: s.deps.Settings.Settings()}
	case protocol.TypeChangeSettingRequest:
		var req protocol.ChangeSettingRequest
		if err := f.Unmarshal(&req); err != nil {
			return protocol.ChangeSettingResponse{Code: protocol.ErrBadRequest, Message: err.Error()}
		}
		return s.changeSetting(sender, req)
	case protocol.TypeStatusRequest:
		return protocol.StatusResponse{ServerRunning: true}
	}
	return nil
}

func (s *Server) concealedGrids() protocol.ConcealedGridsResponse {
	grids := s.deps.Conceal.ConcealedGrids()
	out := protocol.ConcealedGridsResponse{Grids: make([]protocol.ConcealedGrid, 0, len(grids))}
	for _, g := range grids {
		out.Grids = append(out.Grids, protocol.ConcealedGrid{
			EntityID:      int64(g.ID),
			DisplayName:   g.DisplayName,
			OwnerID:       int64(g.OwnerID),
			Revealability: uint8(g.Revealability),
			Reasons:       g.Revealability.String(),
		})
	}
	return out
}

func (s *Server) revealedGrids() protocol.RevealedGridsResponse {
	grids := s.deps.Sector.RevealedGrids()
	out := protocol.RevealedGridsResponse{Grids: make([]protocol.RevealedGrid, 0, len(grids))}
	for _, g := range grids {
		c, _ := s.deps.Conceal.Concealability(g.ID())
		out.Grids = append(out.Grids, protocol.RevealedGrid{
			EntityID:       int64(g.ID()),
			DisplayName:    g.DisplayName,
			OwnerID:        int64(g.OwnerID),
			Concealability: uint8(c),
			Reasons:        c.String(),
			Observers:      g.ObserverCount(),
		})
	}
	return out
}

func (s *Server) conceal(sender entity.PlayerID, req protocol.ConcealRequest) protocol.ConcealResponse {
	id := entity.ID(req.EntityID)
	ok := s.deps.Conceal.CanConceal(id) && s.deps.Conceal.QueueConceal(id)
	s.log.Printf("player %d requested conceal of %d: %v", sender, id, ok)
	return protocol.ConcealResponse{EntityID: req.EntityID, Success: ok}
}

func (s *Server) reveal(sender entity.PlayerID, req protocol.RevealRequest) protocol.RevealResponse {
	id := entity.ID(req.EntityID)
	ok := s.deps.Conceal.QueueReveal(id)
	s.log.Printf("player %d requested reveal of %d: %v", sender, id, ok)
	return protocol.RevealResponse{EntityID: req.EntityID, Success: ok}
}

func (s *Server) factionOf(p entity.PlayerID) entity.FactionID {
	if s.deps.Factions == nil {
		return entity.NoFaction
	}
	f, _, ok := s.deps.Factions.PlayerFaction(p)
	if !ok {
		return entity.NoFaction
	}
	return f
}

func (s *Server) login(sender entity.PlayerID) {
	s.deps.Sector.PlayerLoggedIn(sender, s.factionOf(sender))
}

func (s *Server) logout(sender entity.PlayerID) {
	s.deps.Sector.PlayerLoggedOut(sender, s.factionOf(sender))
}

func (s *Server) observingEntities() protocol.ObservingEntitiesResponse {
	obs := s.deps.Sector.ObservingEntities()
	out := protocol.ObservingEntitiesResponse{Entities: make([]protocol.ObservingEntity, 0, len(obs))}
	for _, o := range obs {
		seen := o.Observed()
		ids := make([]int64, 0, len(seen))
		for _, id := range seen {
			ids = append(ids, int64(id))
		}
		out.Entities = append(out.Entities, protocol.ObservingEntity{
			EntityID:    int64(o.ID()),
			DisplayName: o.DisplayName,
			Pos:         o.Position().Array(),
			Observed:    ids,
			Dirty:       o.DirtyForObservationUpdate(),
		})
	}
	return out
}

func (s *Server) changeSetting(sender entity.PlayerID, req protocol.ChangeSettingRequest) protocol.ChangeSettingResponse {
	if err := s.deps.Settings.ChangeSetting(req.Name, req.Value); err != nil {
		s.log.Printf("player %d change setting %s=%q rejected: %v", sender, req.Name, req.Value, err)
		return protocol.ChangeSettingResponse{Code: protocol.ErrBadSetting, Message: err.Error()}
	}
	s.log.Printf("player %d changed setting %s=%q", sender, req.Name, req.Value)
	return protocol.ChangeSettingResponse{Success: true}
}
