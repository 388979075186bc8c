package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/light-controller/internal/model"
)

var now = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

func ts(t time.Time) string {
	return t.Format(time.RFC3339)
}

func meeting(start, end time.Time) model.Meeting {
	return model.Meeting{ID: "m1", RoomID: "r1", StartTime: ts(start), EndTime: ts(end)}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		room     model.Room
		required bool
		reason   Reason
	}{
		{
			name:     "occupied room",
			room:     model.Room{ID: "r1", PeopleCount: 3},
			required: true,
			reason:   ReasonOccupancy,
		},
		{
			name:     "occupancy wins over meeting",
			room:     model.Room{ID: "r1", PeopleCount: 1, Meetings: []model.Meeting{meeting(now.Add(30*time.Second), now.Add(time.Hour))}},
			required: true,
			reason:   ReasonOccupancy,
		},
		{
			name:     "meeting starts in 30 seconds",
			room:     model.Room{ID: "r1", Meetings: []model.Meeting{meeting(now.Add(30*time.Second), now.Add(time.Hour))}},
			required: true,
			reason:   ReasonUpcomingMeeting,
		},
		{
			name:     "meeting starts exactly at lead window",
			room:     model.Room{ID: "r1", Meetings: []model.Meeting{meeting(now.Add(time.Minute), now.Add(time.Hour))}},
			required: true,
			reason:   ReasonUpcomingMeeting,
		},
		{
			name:     "meeting starts now",
			room:     model.Room{ID: "r1", Meetings: []model.Meeting{meeting(now, now.Add(time.Hour))}},
			required: true,
			reason:   ReasonUpcomingMeeting,
		},
		{
			name:     "meeting in progress",
			room:     model.Room{ID: "r1", Meetings: []model.Meeting{meeting(now.Add(-10*time.Minute), now.Add(10*time.Minute))}},
			required: true,
			reason:   ReasonUpcomingMeeting,
		},
		{
			name:     "meeting ends now",
			room:     model.Room{ID: "r1", Meetings: []model.Meeting{meeting(now.Add(-time.Hour), now)}},
			required: true,
			reason:   ReasonUpcomingMeeting,
		},
		{
			name:     "meeting too far ahead",
			room:     model.Room{ID: "r1", Meetings: []model.Meeting{meeting(now.Add(2*time.Minute), now.Add(time.Hour))}},
			required: false,
			reason:   ReasonNone,
		},
		{
			name:     "meeting already over",
			room:     model.Room{ID: "r1", Meetings: []model.Meeting{meeting(now.Add(-time.Hour), now.Add(-time.Second))}},
			required: false,
			reason:   ReasonNone,
		},
		{
			name: "malformed meeting skipped",
			room: model.Room{ID: "r1", Meetings: []model.Meeting{
				{ID: "bad", StartTime: "tomorrow-ish", EndTime: ts(now.Add(time.Hour))},
			}},
			required: false,
			reason:   ReasonNone,
		},
		{
			name: "malformed meeting does not hide a valid one",
			room: model.Room{ID: "r1", Meetings: []model.Meeting{
				{ID: "bad", StartTime: ts(now), EndTime: ""},
				meeting(now.Add(20*time.Second), now.Add(time.Hour)),
			}},
			required: true,
			reason:   ReasonUpcomingMeeting,
		},
		{
			name:     "empty room",
			room:     model.Room{ID: "r1"},
			required: false,
			reason:   ReasonNone,
		},
	}

	e := NewEvaluator(DefaultLeadWindow)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			required, reason := e.Evaluate(tt.room, now)
			assert.Equal(t, tt.required, required)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestEvaluate_ZonelessTimestamps(t *testing.T) {
	room := model.Room{ID: "r1", Meetings: []model.Meeting{
		{ID: "m", StartTime: "2024-03-11T09:00:45", EndTime: "2024-03-11T10:00:00"},
	}}

	required, reason := NewEvaluator(time.Minute).Evaluate(room, now)
	assert.True(t, required)
	assert.Equal(t, ReasonUpcomingMeeting, reason)
}
