package tuning

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	TickRateHz int `yaml:"tick_rate_hz" json:"tick_rate_hz"`

	// Observers see revealed entities within this distance.
	RevealVisibilityMeters float64 `yaml:"reveal_visibility_meters" json:"reveal_visibility_meters"`

	// Controlled entities stay controlled this long after they stop moving.
	ControlledMovingGraceTimeSeconds float64 `yaml:"controlled_moving_grace_time_seconds" json:"controlled_moving_grace_time_seconds"`

	// Entities reported faster than this (m/s) count as moving.
	MovingSpeedThreshold float64 `yaml:"moving_speed_threshold" json:"moving_speed_threshold"`

	ObserverUpdateEveryTicks int  `yaml:"observer_update_every_ticks" json:"observer_update_every_ticks"`
	AutoConcealEveryTicks    int  `yaml:"auto_conceal_every_ticks" json:"auto_conceal_every_ticks"`
	AutoReveal               bool `yaml:"auto_reveal" json:"auto_reveal"`
	MaxTransitionsPerTick    int  `yaml:"max_transitions_per_tick" json:"max_transitions_per_tick"`

	// Disabled answers every request with a not-running status.
	Disabled bool `yaml:"disabled" json:"disabled"`
}

// Upper bounds keep distances squarable and the grace window representable
// as a time.Duration.
const (
	MaxRevealVisibilityMeters = 1e7
	MaxGraceSeconds           = 24 * 60 * 60
)

func Defaults() Settings {
	return Settings{
		TickRateHz:                       10,
		RevealVisibilityMeters:           35000,
		ControlledMovingGraceTimeSeconds: 30,
		MovingSpeedThreshold:             0.1,
		ObserverUpdateEveryTicks:         10,
		AutoConcealEveryTicks:            0,
		AutoReveal:                       true,
		MaxTransitionsPerTick:            4,
	}
}

// Load reads settings from path on top of Defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.TickRateHz <= 0 || s.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in (0, 1000]")
	}
	for name, v := range map[string]float64{
		"reveal_visibility_meters":             s.RevealVisibilityMeters,
		"controlled_moving_grace_time_seconds": s.ControlledMovingGraceTimeSeconds,
		"moving_speed_threshold":               s.MovingSpeedThreshold,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}
	if s.RevealVisibilityMeters <= 0 || s.RevealVisibilityMeters > MaxRevealVisibilityMeters {
		return fmt.Errorf("reveal_visibility_meters must be in (0, %g]", float64(MaxRevealVisibilityMeters))
	}
	if s.ControlledMovingGraceTimeSeconds < 0 || s.ControlledMovingGraceTimeSeconds > MaxGraceSeconds {
		return fmt.Errorf("controlled_moving_grace_time_seconds must be in [0, %d]", MaxGraceSeconds)
	}
	if s.MovingSpeedThreshold < 0 {
		return fmt.Errorf("moving_speed_threshold must be >= 0")
	}
	if s.ObserverUpdateEveryTicks <= 0 {
		return fmt.Errorf("observer_update_every_ticks must be > 0")
	}
	if s.AutoConcealEveryTicks < 0 {
		return fmt.Errorf("auto_conceal_every_ticks must be >= 0")
	}
	if s.MaxTransitionsPerTick <= 0 {
		return fmt.Errorf("max_transitions_per_tick must be > 0")
	}
	return nil
}

// Grace is clamped to [0, MaxGraceSeconds] for settings that skipped Validate.
func (s Settings) Grace() time.Duration {
	sec := s.ControlledMovingGraceTimeSeconds
	switch {
	case !(sec > 0):
		return 0
	case sec > MaxGraceSeconds:
		sec = MaxGraceSeconds
	}
	return time.Duration(sec * float64(time.Second))
}

func (s Settings) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRateHz)
}

// Set changes one setting by its yaml name. The result is validated as a
// whole; s is left untouched on error. tick_rate_hz is fixed at startup.
func (s *Settings) Set(name, value string) error {
	next := *s
	value = strings.TrimSpace(value)

	var err error
	switch strings.TrimSpace(name) {
	case "reveal_visibility_meters":
		next.RevealVisibilityMeters, err = strconv.ParseFloat(value, 64)
	case "controlled_moving_grace_time_seconds":
		next.ControlledMovingGraceTimeSeconds, err = strconv.ParseFloat(value, 64)
	case "moving_speed_threshold":
		next.MovingSpeedThreshold, err = strconv.ParseFloat(value, 64)
	case "observer_update_every_ticks":
		next.ObserverUpdateEveryTicks, err = strconv.Atoi(value)
	case "auto_conceal_every_ticks":
		next.AutoConcealEveryTicks, err = strconv.Atoi(value)
	case "auto_reveal":
		next.AutoReveal, err = strconv.ParseBool(value)
	case "max_transitions_per_tick":
		next.MaxTransitionsPerTick, err = strconv.Atoi(value)
	default:
		return fmt.Errorf("unknown or read-only setting %q", name)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}
