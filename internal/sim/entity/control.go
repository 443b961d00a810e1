package entity

import "time"

type ControlState uint8

const (
	Idle ControlState = iota
	Moving
	RecentlyMoved
)

func (s ControlState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Moving:
		return "Moving"
	case RecentlyMoved:
		return "RecentlyMoved"
	}
	return "Unknown"
}

// Edge is the change in the derived Controlled flag produced by one update.
type Edge uint8

const (
	NoEdge Edge = iota
	ControlAcquired
	ControlReleased
)

func (e Edge) String() string {
	switch e {
	case ControlAcquired:
		return "ControlAcquired"
	case ControlReleased:
		return "ControlReleased"
	}
	return "None"
}

// Control is the per-entity movement state machine. The zero value is Idle.
type Control struct {
	state ControlState
	ends  time.Time
}

func (c *Control) State() ControlState { return c.state }
func (c *Control) IsMoving() bool      { return c.state == Moving }
func (c *Control) RecentlyMoved() bool { return c.state == RecentlyMoved }

// RecentlyMovedEnds returns the grace expiry; ok is false outside RecentlyMoved.
func (c *Control) RecentlyMovedEnds() (t time.Time, ok bool) {
	if c.state != RecentlyMoved {
		return time.Time{}, false
	}
	return c.ends, true
}

func (c *Control) Controlled() bool { return c.state == Moving || c.state == RecentlyMoved }

// Update applies one motion sample taken at now.
//
// Motion always enters Moving. Stopping from Moving starts a grace window of
// length grace; the window only expires on a later still sample at or after
// its end. Re-acquiring motion mid-grace drops the window, and the next stop
// starts a fresh one.
func (c *Control) Update(moving bool, now time.Time, grace time.Duration) Edge {
	was := c.Controlled()

	switch {
	case moving:
		c.state = Moving
		c.ends = time.Time{}
	case c.state == Moving:
		c.state = RecentlyMoved
		c.ends = now.Add(grace)
	case c.state == RecentlyMoved && !now.Before(c.ends):
		c.state = Idle
		c.ends = time.Time{}
	}

	is := c.Controlled()
	switch {
	case is && !was:
		return ControlAcquired
	case !is && was:
		return ControlReleased
	}
	return NoEdge
}
