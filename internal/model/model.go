package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type LightState string

const (
	LightOn     LightState = "ON"
	LightOff    LightState = "OFF"
	LightBroken LightState = "BROKEN"
)

func (s LightState) Valid() bool {
	switch s {
	case LightOn, LightOff, LightBroken:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects anything outside ON, OFF and BROKEN so a snapshot with an
// unknown light state fails decoding instead of reaching the balancer.
func (s *LightState) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	state := LightState(strings.ToUpper(raw))
	if !state.Valid() {
		return fmt.Errorf("unknown light state %q", raw)
	}
	*s = state
	return nil
}

type Light struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"roomId"`
	State      LightState `json:"state"`
	Brightness int        `json:"brightness"`
}

// Meeting keeps its timestamps as received; they are parsed when the schedule is
// evaluated so one malformed meeting never invalidates a whole snapshot.
type Meeting struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	Title     string `json:"title,omitempty"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Interval parses the meeting start and end.
func (m Meeting) Interval() (time.Time, time.Time, error) {
	start, err := ParseTimestamp(m.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseTimestamp(m.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PeopleCount  int       `json:"peopleCount"`
	Illumination float64   `json:"illumination"`
	Lights       []Light   `json:"lights"`
	Meetings     []Meeting `json:"scheduledMeetings"`
}

type Snapshot struct {
	SimulationTime    time.Time
	PowerOutage       bool
	DaylightIntensity float64
	Rooms             []Room
}

// Command is one actuation request for a single light. Brightness is only sent
// with ON.
type Command struct {
	LightID    string
	RoomID     string
	State      LightState
	Brightness int
	Reason     string
}

func (c Command) String() string {
	if c.State == LightOn {
		return fmt.Sprintf("%s ON %d%%", c.LightID, c.Brightness)
	}
	return fmt.Sprintf("%s %s", c.LightID, c.State)
}

// RoomControlState is the per-room memory carried between snapshots.
type RoomControlState struct {
	RoomID       string
	LastPresence time.Time
	HasPresence  bool
	Broken       map[string]struct{}
}

func NewRoomControlState(roomID string) *RoomControlState {
	return &RoomControlState{
		RoomID: roomID,
		Broken: make(map[string]struct{}),
	}
}

var ErrMalformedTimestamp = errors.New("malformed timestamp")

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts ISO-8601 with or without a zone offset. Zone-less values
// are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMalformedTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}
