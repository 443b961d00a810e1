package tuning

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "settings.yaml")
	raw := "reveal_visibility_meters: 100\ncontrolled_moving_grace_time_seconds: 2.5\nauto_conceal_every_ticks: 50\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.RevealVisibilityMeters != 100 || s.AutoConcealEveryTicks != 50 {
		t.Fatalf("overrides not applied: %+v", s)
	}
	if s.TickRateHz != Defaults().TickRateHz {
		t.Fatalf("default tick rate lost: %d", s.TickRateHz)
	}
	if s.Grace() != 2500*time.Millisecond {
		t.Fatalf("grace: %v", s.Grace())
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(p, []byte("reveal_visibility_meters: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSet(t *testing.T) {
	s := Defaults()
	cases := []struct {
		name, value string
		ok          bool
	}{
		{"reveal_visibility_meters", "500", true},
		{"auto_reveal", "false", true},
		{"max_transitions_per_tick", "0", false},
		{"reveal_visibility_meters", "abc", false},
		{"tick_rate_hz", "20", false},
		{"nope", "1", false},
		{"reveal_visibility_meters", "NaN", false},
		{"reveal_visibility_meters", "Inf", false},
		{"reveal_visibility_meters", "-Inf", false},
		{"reveal_visibility_meters", "1e300", false},
		{"controlled_moving_grace_time_seconds", "NaN", false},
		{"controlled_moving_grace_time_seconds", "Inf", false},
		{"controlled_moving_grace_time_seconds", "1e300", false},
		{"moving_speed_threshold", "NaN", false},
		{"moving_speed_threshold", "+Inf", false},
	}
	for _, c := range cases {
		before := s
		err := s.Set(c.name, c.value)
		if (err == nil) != c.ok {
			t.Fatalf("Set(%q,%q): err=%v want ok=%v", c.name, c.value, err, c.ok)
		}
		if err != nil && s != before {
			t.Fatalf("Set(%q,%q) mutated settings on error", c.name, c.value)
		}
	}
	if s.RevealVisibilityMeters != 500 || s.AutoReveal {
		t.Fatalf("settings not applied: %+v", s)
	}
}

func TestGrace_ClampsUnvalidatedValues(t *testing.T) {
	cases := []struct {
		seconds float64
		want    time.Duration
	}{
		{math.NaN(), 0},
		{-5, 0},
		{math.Inf(1), MaxGraceSeconds * time.Second},
		{1e300, MaxGraceSeconds * time.Second},
		{1.5, 1500 * time.Millisecond},
	}
	for _, c := range cases {
		s := Settings{ControlledMovingGraceTimeSeconds: c.seconds}
		if got := s.Grace(); got != c.want {
			t.Fatalf("Grace(%v)=%v want %v", c.seconds, got, c.want)
		}
	}
}

func TestLoad_RejectsNonFinite(t *testing.T) {
	p := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(p, []byte("reveal_visibility_meters: .nan\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error for NaN visibility")
	}
}
