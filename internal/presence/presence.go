package presence

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/light-controller/internal/model"
)

type Reason string

const (
	ReasonOccupancy       Reason = "occupancy"
	ReasonUpcomingMeeting Reason = "upcoming-meeting"
	ReasonNone            Reason = "none"
)

const DefaultLeadWindow = time.Minute

type Evaluator struct {
	LeadWindow time.Duration
}

func NewEvaluator(lead time.Duration) *Evaluator {
	return &Evaluator{LeadWindow: lead}
}

// Evaluate reports whether the room needs light at simulation time now. Power
// outages are handled by the caller before any room is evaluated.
func (e *Evaluator) Evaluate(room model.Room, now time.Time) (bool, Reason) {
	if room.PeopleCount > 0 {
		return true, ReasonOccupancy
	}
	if e.meetingActiveOrSoon(room, now) {
		return true, ReasonUpcomingMeeting
	}
	return false, ReasonNone
}

func (e *Evaluator) meetingActiveOrSoon(room model.Room, now time.Time) bool {
	for _, m := range room.Meetings {
		start, end, err := m.Interval()
		if err != nil {
			log.Debug().
				Err(err).
				Str("room", room.ID).
				Str("meeting", m.ID).
				Msg("Skipping meeting with malformed timestamps")
			continue
		}

		until := start.Sub(now)
		if until >= 0 && until <= e.LeadWindow {
			return true
		}
		if !now.Before(start) && !now.After(end) {
			return true
		}
	}
	return false
}
