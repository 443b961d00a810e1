package session

import (
	"strings"
	"testing"
	"time"

	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/conceal"
	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/sector"
	"gardenperf.ai/internal/sim/spatial"
	"gardenperf.ai/internal/sim/tuning"
)

type settingsStub struct{ s tuning.Settings }

func (st *settingsStub) Settings() tuning.Settings { return st.s }
func (st *settingsStub) ChangeSetting(name, value string) error {
	return st.s.Set(name, value)
}

type factionsStub map[entity.PlayerID]entity.FactionID

func (f factionsStub) PlayerFaction(p entity.PlayerID) (entity.FactionID, []entity.PlayerID, bool) {
	id, ok := f[p]
	if !ok {
		return entity.NoFaction, nil, false
	}
	var members []entity.PlayerID
	for m, mf := range f {
		if mf == id {
			members = append(members, m)
		}
	}
	return id, members, true
}

type hostStub struct{}

func (hostStub) Conceal(*entity.Entity) error { return nil }
func (hostStub) Reveal(conceal.Record) error  { return nil }

type fixture struct {
	srv      *Server
	sec      *sector.Revealed
	mgr      *conceal.Manager
	settings *settingsStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	factions := factionsStub{1: 5, 2: 5}
	sec := sector.New(sector.Options{Factions: factions, VisibilityMeters: 100})
	mgr := conceal.NewManager(nil, sec, hostStub{})
	st := &settingsStub{s: tuning.Defaults()}
	srv := NewServer(nil, Deps{Sector: sec, Conceal: mgr, Settings: st, Factions: factions})
	return &fixture{srv: srv, sec: sec, mgr: mgr, settings: st}
}

func (fx *fixture) addGrid(id entity.ID, owner entity.PlayerID) *entity.Entity {
	g := entity.New(entity.Attrs{
		ID: id, Caps: entity.Grid | entity.Controllable, DisplayName: "G",
		Bounds: spatial.BoxAround(spatial.Vec3{}, 5), OwnerID: owner,
	})
	fx.sec.EntityAdded(g)
	return g
}

func frame(t *testing.T, v any) protocol.Frame {
	t.Helper()
	b, err := protocol.EncodeRequest(v)
	if err != nil {
		t.Fatal(err)
	}
	f, err := protocol.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestDisabled_ShortCircuitsEveryRequest(t *testing.T) {
	fx := newFixture(t)
	fx.addGrid(1, 0)
	fx.srv.SetDisabled(true)

	reqs := []any{
		protocol.ConcealRequest{EntityID: 1},
		protocol.LoginRequest{},
		protocol.SettingsRequest{},
		protocol.ChangeSettingRequest{Name: "auto_reveal", Value: "false"},
	}
	for _, req := range reqs {
		got := fx.srv.Handle(1, frame(t, req))
		st, ok := got.(protocol.StatusResponse)
		if !ok || st.ServerRunning {
			t.Fatalf("%T: got %#v", req, got)
		}
	}
	if _, queued := fx.mgr.Queued(1); queued {
		t.Fatalf("disabled server must not queue")
	}
	if len(fx.sec.ActivePlayers()) != 0 || !fx.settings.s.AutoReveal {
		t.Fatalf("disabled server must not touch state")
	}
}

func TestUnknownTypeIgnored(t *testing.T) {
	fx := newFixture(t)
	b, _ := protocol.Encode(protocol.DomainConcealServer, protocol.Type(999), struct{}{})
	f, _ := protocol.Decode(b)
	if got := fx.srv.Handle(1, f); got != nil {
		t.Fatalf("unknown type should be ignored, got %#v", got)
	}
	b, _ = protocol.Encode(protocol.DomainConcealClient, protocol.TypeStatusResponse, protocol.StatusResponse{})
	f, _ = protocol.Decode(b)
	if got := fx.srv.Handle(1, f); got != nil {
		t.Fatalf("client domain frame should be ignored, got %#v", got)
	}
}

func TestConceal_RequiresEligibility(t *testing.T) {
	fx := newFixture(t)
	fx.addGrid(1, 2)

	// Player 1 shares a faction with the owner.
	fx.srv.Handle(1, frame(t, protocol.LoginRequest{}))
	fx.sec.UpdateSpawnOwnersIfNeeded()

	resp := fx.srv.Handle(1, frame(t, protocol.ConcealRequest{EntityID: 1})).(protocol.ConcealResponse)
	if resp.Success || resp.EntityID != 1 {
		t.Fatalf("spawn owner grid conceal: %+v", resp)
	}

	fx.srv.Handle(1, frame(t, protocol.LogoutRequest{}))
	fx.sec.UpdateSpawnOwnersIfNeeded()
	resp = fx.srv.Handle(1, frame(t, protocol.ConcealRequest{EntityID: 1})).(protocol.ConcealResponse)
	if !resp.Success {
		t.Fatalf("conceal after logout: %+v", resp)
	}
	resp = fx.srv.Handle(1, frame(t, protocol.ConcealRequest{EntityID: 1})).(protocol.ConcealResponse)
	if resp.Success {
		t.Fatalf("second conceal should fail")
	}
	if got := fx.srv.Handle(1, frame(t, protocol.ConcealRequest{EntityID: 77})).(protocol.ConcealResponse); got.Success {
		t.Fatalf("unknown entity conceal should fail")
	}
}

func TestRevealAndListings(t *testing.T) {
	fx := newFixture(t)
	fx.addGrid(1, 0)
	fx.addGrid(2, 0)
	fx.mgr.QueueConceal(1)
	fx.mgr.ProcessQueues(time.Unix(0, 0), 0)

	concealed := fx.srv.Handle(9, frame(t, protocol.ConcealedGridsRequest{})).(protocol.ConcealedGridsResponse)
	if len(concealed.Grids) != 1 || concealed.Grids[0].EntityID != 1 || concealed.Grids[0].Reasons != "Dormant" {
		t.Fatalf("concealed: %+v", concealed)
	}
	revealed := fx.srv.Handle(9, frame(t, protocol.RevealedGridsRequest{})).(protocol.RevealedGridsResponse)
	if len(revealed.Grids) != 1 || revealed.Grids[0].EntityID != 2 || revealed.Grids[0].Reasons != "Concealable" {
		t.Fatalf("revealed: %+v", revealed)
	}

	if r := fx.srv.Handle(9, frame(t, protocol.RevealRequest{EntityID: 1})).(protocol.RevealResponse); !r.Success {
		t.Fatalf("reveal should queue")
	}
	if r := fx.srv.Handle(9, frame(t, protocol.RevealRequest{EntityID: 2})).(protocol.RevealResponse); r.Success {
		t.Fatalf("reveal of a revealed grid should fail")
	}
}

func TestLoginUsesSenderAndFaction(t *testing.T) {
	fx := newFixture(t)
	fx.srv.Handle(1, frame(t, protocol.LoginRequest{}))
	fx.sec.UpdateSpawnOwnersIfNeeded()
	if got := fx.sec.SpawnOwners(); len(got) != 2 {
		t.Fatalf("faction members should all be spawn owners: %v", got)
	}
}

func TestSettings(t *testing.T) {
	fx := newFixture(t)
	resp := fx.srv.Handle(1, frame(t, protocol.ChangeSettingRequest{Name: "reveal_visibility_meters", Value: "250"})).(protocol.ChangeSettingResponse)
	if !resp.Success {
		t.Fatalf("change: %+v", resp)
	}
	bad := fx.srv.Handle(1, frame(t, protocol.ChangeSettingRequest{Name: "tick_rate_hz", Value: "1"})).(protocol.ChangeSettingResponse)
	if bad.Success || bad.Code != protocol.ErrBadSetting {
		t.Fatalf("read-only setting: %+v", bad)
	}
	got := fx.srv.Handle(1, frame(t, protocol.SettingsRequest{})).(protocol.SettingsResponse)
	if got.Settings.RevealVisibilityMeters != 250 {
		t.Fatalf("settings: %+v", got.Settings)
	}
}

func TestDispatch_EncodesResponse(t *testing.T) {
	fx := newFixture(t)
	raw, _ := protocol.EncodeRequest(protocol.StatusRequest{})
	out, err := fx.srv.Dispatch(1, raw)
	if err != nil {
		t.Fatal(err)
	}
	f, err := protocol.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	var c Client
	text, ok, err := c.Render(f)
	if err != nil || !ok || !strings.Contains(text, "is running") || !c.ServerRunning {
		t.Fatalf("render: %q %v %v", text, ok, err)
	}

	raw, _ = protocol.EncodeRequest(protocol.LoginRequest{})
	if out, err := fx.srv.Dispatch(1, raw); err != nil || out != nil {
		t.Fatalf("login should have no response: %v %v", out, err)
	}
}
