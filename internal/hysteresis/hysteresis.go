package hysteresis

import (
	"time"

	"github.com/thatsimonsguy/light-controller/internal/model"
)

const DefaultTurnOffDelay = 5 * time.Minute

// Tracker decides when an empty room has been empty long enough to switch off.
// All times are simulation times taken from snapshots.
type Tracker struct {
	TurnOffDelay time.Duration
}

func NewTracker(delay time.Duration) *Tracker {
	return &Tracker{TurnOffDelay: delay}
}

// RecordPresence is the only writer of the last-presence time. Call it once per
// cycle, before ShouldTurnOff, whenever the room has occupants.
func (t *Tracker) RecordPresence(st *model.RoomControlState, now time.Time) {
	st.LastPresence = now
	st.HasPresence = true
}

// ShouldTurnOff is true for a room that never had occupants, or once the delay has
// fully elapsed since the last presence.
func (t *Tracker) ShouldTurnOff(st *model.RoomControlState, now time.Time) bool {
	if !st.HasPresence {
		return true
	}
	return now.Sub(st.LastPresence) >= t.TurnOffDelay
}

// Absent reports how long the room has been empty, or zero if it never had anyone.
func (t *Tracker) Absent(st *model.RoomControlState, now time.Time) time.Duration {
	if !st.HasPresence {
		return 0
	}
	return now.Sub(st.LastPresence)
}
