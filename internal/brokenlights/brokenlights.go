package brokenlights

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/light-controller/internal/model"
)

// Track updates the room's broken set from the lights seen in this snapshot.
// A light is reported broken once when it enters BROKEN and repaired once when it
// is next seen in any other state. Lights missing from the snapshot keep their flag.
func Track(lights []model.Light, st *model.RoomControlState) (newlyBroken, repaired []string) {
	if st.Broken == nil {
		st.Broken = make(map[string]struct{})
	}

	for _, l := range lights {
		_, flagged := st.Broken[l.ID]

		switch l.State {
		case model.LightBroken:
			if flagged {
				continue
			}
			st.Broken[l.ID] = struct{}{}
			newlyBroken = append(newlyBroken, l.ID)
			log.Warn().
				Str("room", st.RoomID).
				Str("light", l.ID).
				Msg("Light reported broken")
		case model.LightOn, model.LightOff:
			if !flagged {
				continue
			}
			delete(st.Broken, l.ID)
			repaired = append(repaired, l.ID)
			log.Info().
				Str("room", st.RoomID).
				Str("light", l.ID).
				Str("state", string(l.State)).
				Msg("Light repaired")
		}
	}

	return newlyBroken, repaired
}
