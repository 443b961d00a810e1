package session

import (
	"fmt"
	"strings"

	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/entity"
)

// Client turns client-domain responses into text for a console.
type Client struct {
	// ServerRunning is the last status the server reported.
	ServerRunning bool
	statusSeen    bool
}

// Render returns the text for f. ok is false for frames the client does not
// handle, which are ignored.
func (c *Client) Render(f protocol.Frame) (text string, ok bool, err error) {
	if f.Domain != protocol.DomainConcealClient {
		return "", false, nil
	}
	switch f.Type {
	case protocol.TypeConcealedGridsResponse:
		var r protocol.ConcealedGridsResponse
		if err := f.Unmarshal(&r); err != nil {
			return "", false, err
		}
		return renderConcealed(r), true, nil
	case protocol.TypeRevealedGridsResponse:
		var r protocol.RevealedGridsResponse
		if err := f.Unmarshal(&r); err != nil {
			return "", false, err
		}
		return renderRevealed(r), true, nil
	case protocol.TypeConcealResponse:
		var r protocol.ConcealResponse
		if err := f.Unmarshal(&r); err != nil {
			return "", false, err
		}
		return resultLine("Conceal", r.EntityID, r.Success), true, nil
	case protocol.TypeRevealResponse:
		var r protocol.RevealResponse
		if err := f.Unmarshal(&r); err != nil {
			return "", false, err
		}
		return resultLine("Reveal", r.EntityID, r.Success), true, nil
	case protocol.TypeObservingEntitiesResponse:
		var r protocol.ObservingEntitiesResponse
		if err := f.Unmarshal(&r); err != nil {
			return "", false, err
		}
		return renderObserving(r), true, nil
	case protocol.TypeSettingsResponse:
		var r protocol.SettingsResponse
		if err := f.Unmarshal(&r); err != nil {
			return "", false, err
		}
		return renderSettings(r), true, nil
	case protocol.TypeChangeSettingResponse:
		var r protocol.ChangeSettingResponse
		if err := f.Unmarshal(&r); err != nil {
			return "", false, err
		}
		if r.Success {
			return "Setting changed.", true, nil
		}
		return fmt.Sprintf("Setting not changed: %s %s", r.Code, r.Message), true, nil
	case protocol.TypeStatusResponse:
		var r protocol.StatusResponse
		if err := f.Unmarshal(&r); err != nil {
			return "", false, err
		}
		c.ServerRunning, c.statusSeen = r.ServerRunning, true
		if r.ServerRunning {
			return "Concealment server is running.", true, nil
		}
		return "Concealment server is not running.", true, nil
	}
	return "", false, nil
}

// StatusKnown reports whether a status response has been seen.
func (c *Client) StatusKnown() bool { return c.statusSeen }

func resultLine(op string, id int64, ok bool) string {
	if ok {
		return fmt.Sprintf("%s of %d queued.", op, id)
	}
	return fmt.Sprintf("%s of %d refused.", op, id)
}

func renderConcealed(r protocol.ConcealedGridsResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Concealed grids: %d\n", len(r.Grids))
	for i, g := range r.Grids {
		reasons := g.Reasons
		if reasons == "" {
			reasons = entity.Revealability(g.Revealability).String()
		}
		fmt.Fprintf(&b, "%3d. %s [%d] %s\n", i+1, displayName(g.DisplayName), g.EntityID, reasons)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRevealed(r protocol.RevealedGridsResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Revealed grids: %d\n", len(r.Grids))
	for i, g := range r.Grids {
		reasons := g.Reasons
		if reasons == "" {
			reasons = entity.Concealability(g.Concealability).String()
		}
		fmt.Fprintf(&b, "%3d. %s [%d] %s", i+1, displayName(g.DisplayName), g.EntityID, reasons)
		if g.Observers > 0 {
			fmt.Fprintf(&b, " (%d observers)", g.Observers)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderObserving(r protocol.ObservingEntitiesResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Observing entities: %d\n", len(r.Entities))
	for i, o := range r.Entities {
		fmt.Fprintf(&b, "%3d. %s [%d] at (%.0f, %.0f, %.0f) sees %d grids",
			i+1, displayName(o.DisplayName), o.EntityID, o.Pos[0], o.Pos[1], o.Pos[2], len(o.Observed))
		if o.Dirty {
			b.WriteString(" (pending update)")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSettings(r protocol.SettingsResponse) string {
	s := r.Settings
	lines := []string{
		"Settings:",
		fmt.Sprintf("  tick_rate_hz: %d", s.TickRateHz),
		fmt.Sprintf("  reveal_visibility_meters: %g", s.RevealVisibilityMeters),
		fmt.Sprintf("  controlled_moving_grace_time_seconds: %g", s.ControlledMovingGraceTimeSeconds),
		fmt.Sprintf("  moving_speed_threshold: %g", s.MovingSpeedThreshold),
		fmt.Sprintf("  observer_update_every_ticks: %d", s.ObserverUpdateEveryTicks),
		fmt.Sprintf("  auto_conceal_every_ticks: %d", s.AutoConcealEveryTicks),
		fmt.Sprintf("  auto_reveal: %v", s.AutoReveal),
		fmt.Sprintf("  max_transitions_per_tick: %d", s.MaxTransitionsPerTick),
	}
	return strings.Join(lines, "\n")
}

func displayName(s string) string {
	if s == "" {
		return "(unnamed)"
	}
	return s
}
