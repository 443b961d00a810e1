package session

import (
	"strings"
	"testing"

	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/entity"
)

func response(t *testing.T, v any) protocol.Frame {
	t.Helper()
	b, err := protocol.EncodeResponse(v)
	if err != nil {
		t.Fatal(err)
	}
	f, err := protocol.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestClientRender(t *testing.T) {
	cases := []struct {
		name string
		msg  any
		want []string
	}{
		{
			"concealed",
			protocol.ConcealedGridsResponse{Grids: []protocol.ConcealedGrid{
				{EntityID: 4, DisplayName: "Outpost", Revealability: uint8(entity.RevealObserved)},
			}},
			[]string{"Concealed grids: 1", "Outpost [4] Observed"},
		},
		{
			"revealed",
			protocol.RevealedGridsResponse{Grids: []protocol.RevealedGrid{
				{EntityID: 5, Concealability: uint8(entity.ConcealControlled | entity.ConcealSpawnOwner), Observers: 2},
			}},
			[]string{"(unnamed) [5] Controlled|SpawnOwner (2 observers)"},
		},
		{"conceal ok", protocol.ConcealResponse{EntityID: 3, Success: true}, []string{"Conceal of 3 queued."}},
		{"reveal refused", protocol.RevealResponse{EntityID: 3}, []string{"Reveal of 3 refused."}},
		{"not running", protocol.StatusResponse{}, []string{"not running"}},
		{
			"observing",
			protocol.ObservingEntitiesResponse{Entities: []protocol.ObservingEntity{
				{EntityID: 8, DisplayName: "Pilot", Pos: [3]float64{1, 2, 3}, Observed: []int64{4, 5}, Dirty: true},
			}},
			[]string{"Pilot [8] at (1, 2, 3) sees 2 grids (pending update)"},
		},
		{"change failed", protocol.ChangeSettingResponse{Code: protocol.ErrBadSetting, Message: "nope"}, []string{"E_BAD_SETTING nope"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var cl Client
			text, ok, err := cl.Render(response(t, c.msg))
			if err != nil || !ok {
				t.Fatalf("render: ok=%v err=%v", ok, err)
			}
			for _, w := range c.want {
				if !strings.Contains(text, w) {
					t.Fatalf("missing %q in:\n%s", w, text)
				}
			}
		})
	}
}

func TestClientRender_IgnoresUnknown(t *testing.T) {
	b, _ := protocol.Encode(protocol.DomainConcealClient, protocol.Type(123), struct{}{})
	f, _ := protocol.Decode(b)
	var cl Client
	if _, ok, err := cl.Render(f); ok || err != nil {
		t.Fatalf("unknown response should be ignored")
	}
	if cl.StatusKnown() {
		t.Fatalf("no status seen yet")
	}
}
