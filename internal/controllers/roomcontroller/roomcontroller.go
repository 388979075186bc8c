package roomcontroller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/light-controller/db"
	"github.com/thatsimonsguy/light-controller/internal/balancer"
	"github.com/thatsimonsguy/light-controller/internal/brokenlights"
	"github.com/thatsimonsguy/light-controller/internal/datadog"
	"github.com/thatsimonsguy/light-controller/internal/hysteresis"
	"github.com/thatsimonsguy/light-controller/internal/model"
	"github.com/thatsimonsguy/light-controller/internal/notifications"
	"github.com/thatsimonsguy/light-controller/internal/presence"
)

type State string

const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateEvaluating State = "evaluating"
	StateActuating  State = "actuating"
	StateSleeping   State = "sleeping"
	StateStopped    State = "stopped"
)

type SnapshotSource interface {
	FetchState(ctx context.Context) (*model.Snapshot, error)
}

type Actuator interface {
	SetLight(ctx context.Context, cmd model.Command) error
}

// EventRecorder receives ledger events, one batch per room per cycle.
// Decisions never read them back.
type EventRecorder interface {
	AppendEvents(ctx context.Context, events []db.Event) error
}

// Notifier interface for sending broken and repaired light notifications
type Notifier interface {
	LightBroken(ctx context.Context, roomID, lightID string) error
	LightRepaired(ctx context.Context, roomID, lightID string) error
}

type Settings struct {
	PollInterval time.Duration
	LeadWindow   time.Duration
	TurnOffDelay time.Duration
	Balancer     balancer.Settings
}

// Deps holds the collaborators. A nil Notifier sends through the notifications
// package; a nil Recorder drops events.
type Deps struct {
	Source   SnapshotSource
	Actuator Actuator
	Recorder EventRecorder
	Notifier Notifier
}

// RoomStatus is the published view of one room after its latest evaluation.
type RoomStatus struct {
	RoomID         string          `json:"roomId"`
	Name           string          `json:"name"`
	SimulationTime time.Time       `json:"simulationTime"`
	PeopleCount    int             `json:"peopleCount"`
	Illumination   float64         `json:"illumination"`
	Required       bool            `json:"required"`
	Reason         presence.Reason `json:"reason"`
	LightsOn       int             `json:"lightsOn"`
	LightsTotal    int             `json:"lightsTotal"`
	AvgBrightness  float64         `json:"avgBrightness"`
	BrokenLights   []string        `json:"brokenLights"`
	LastPresence   *time.Time      `json:"lastPresence,omitempty"`
	CommandsSent   int             `json:"commandsSent"`
	CommandsFailed int             `json:"commandsFailed"`
}

// CycleResult summarizes one RunCycle.
type CycleResult struct {
	CycleID     string
	FetchFailed bool
	PowerOutage bool
	Rooms       int
	Sent        int
	Failed      int
	Duration    time.Duration
}

type Controller struct {
	cfg      Settings
	source   SnapshotSource
	actuator Actuator
	recorder EventRecorder
	notifier Notifier

	evaluator  *presence.Evaluator
	hysteresis *hysteresis.Tracker
	balancer   *balancer.Balancer

	// rooms is only touched from the loop goroutine.
	rooms    map[string]*model.RoomControlState
	inOutage bool

	mu     sync.RWMutex
	state  State
	status map[string]RoomStatus
}

func New(cfg Settings, deps Deps) *Controller {
	c := &Controller{
		cfg:        cfg,
		source:     deps.Source,
		actuator:   deps.Actuator,
		recorder:   deps.Recorder,
		notifier:   deps.Notifier,
		evaluator:  presence.NewEvaluator(cfg.LeadWindow),
		hysteresis: hysteresis.NewTracker(cfg.TurnOffDelay),
		balancer:   balancer.New(cfg.Balancer),
		rooms:      make(map[string]*model.RoomControlState),
		state:      StateIdle,
		status:     make(map[string]RoomStatus),
	}
	if c.notifier == nil {
		c.notifier = realNotifier{}
	}
	if c.recorder == nil {
		c.recorder = discardRecorder{}
	}
	return c
}

type realNotifier struct{}

func (realNotifier) LightBroken(ctx context.Context, roomID, lightID string) error {
	return notifications.LightBroken(ctx, roomID, lightID)
}

func (realNotifier) LightRepaired(ctx context.Context, roomID, lightID string) error {
	return notifications.LightRepaired(ctx, roomID, lightID)
}

type discardRecorder struct{}

func (discardRecorder) AppendEvents(context.Context, []db.Event) error { return nil }

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Rooms returns the latest status of every room, ordered by room id.
func (c *Controller) Rooms() []RoomStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RoomStatus, 0, len(c.status))
	for _, s := range c.status {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (c *Controller) Room(id string) (RoomStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.status[id]
	return s, ok
}

// Run polls, evaluates and actuates until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	log.Info().
		Dur("poll_interval", c.cfg.PollInterval).
		Float64("min_lux", c.cfg.Balancer.MinLux).
		Dur("lead_window", c.cfg.LeadWindow).
		Dur("turn_off_delay", c.cfg.TurnOffDelay).
		Msg("Starting room controller")

	defer func() {
		c.setState(StateStopped)
		log.Info().Msg("Room controller stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		c.RunCycle(ctx)

		c.setState(StateSleeping)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// RunCycle performs one poll/evaluate/actuate pass.
func (c *Controller) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	res := CycleResult{CycleID: uuid.NewString()}

	c.setState(StatePolling)
	snap, err := c.source.FetchState(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return res
		}
		res.FetchFailed = true
		log.Warn().Err(err).Str("cycle", res.CycleID).Msg("Could not fetch simulator state, skipping cycle")
		datadog.Count("fetch.failed", 1)
		c.record(ctx, db.Event{
			CycleID: res.CycleID,
			Type:    db.EventFetchFailed,
			Payload: map[string]any{"error": err.Error()},
		})
		return res
	}

	if snap.PowerOutage {
		res.PowerOutage = true
		if !c.inOutage {
			log.Warn().Str("cycle", res.CycleID).Time("simulation_time", snap.SimulationTime).Msg("Power outage reported, lights unavailable")
			c.record(ctx, db.Event{CycleID: res.CycleID, Type: db.EventPowerOutage, SimTime: snap.SimulationTime})
		} else {
			log.Debug().Str("cycle", res.CycleID).Msg("Power outage continues")
		}
		c.inOutage = true
		return res
	}
	if c.inOutage {
		log.Info().Str("cycle", res.CycleID).Msg("Power restored")
		c.inOutage = false
	}

	for _, room := range snap.Rooms {
		if ctx.Err() != nil {
			break
		}
		sent, failed := c.processRoom(ctx, res.CycleID, snap.SimulationTime, room)
		res.Rooms++
		res.Sent += sent
		res.Failed += failed
	}

	res.Duration = time.Since(start)
	datadog.Gauge("cycle.duration_ms", float64(res.Duration.Milliseconds()))

	log.Info().
		Str("cycle", res.CycleID).
		Time("simulation_time", snap.SimulationTime).
		Float64("daylight", snap.DaylightIntensity).
		Int("rooms", res.Rooms).
		Int("commands_sent", res.Sent).
		Int("commands_failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("Control cycle complete")

	return res
}

func (c *Controller) roomState(id string) *model.RoomControlState {
	st, ok := c.rooms[id]
	if !ok {
		st = model.NewRoomControlState(id)
		c.rooms[id] = st
	}
	return st
}

func (c *Controller) processRoom(ctx context.Context, cycleID string, now time.Time, room model.Room) (int, int) {
	c.setState(StateEvaluating)
	st := c.roomState(room.ID)
	tag := "room:" + room.ID

	var events []db.Event
	defer func() { c.record(ctx, events...) }()

	newlyBroken, repaired := brokenlights.Track(room.Lights, st)
	for _, id := range newlyBroken {
		if err := c.notifier.LightBroken(ctx, room.ID, id); err != nil {
			log.Debug().Err(err).Str("light", id).Msg("Broken light notification not sent")
		}
		events = append(events, db.Event{CycleID: cycleID, Type: db.EventLightBroken, RoomID: room.ID, LightID: id, SimTime: now})
	}
	for _, id := range repaired {
		if err := c.notifier.LightRepaired(ctx, room.ID, id); err != nil {
			log.Debug().Err(err).Str("light", id).Msg("Repaired light notification not sent")
		}
		events = append(events, db.Event{CycleID: cycleID, Type: db.EventLightRepaired, RoomID: room.ID, LightID: id, SimTime: now})
	}

	required, reason := c.evaluator.Evaluate(room, now)
	if room.PeopleCount > 0 {
		c.hysteresis.RecordPresence(st, now)
	}

	var cmds []model.Command
	switch {
	case required:
		cmds = c.balancer.Balance(room).Commands()
	case c.hysteresis.ShouldTurnOff(st, now):
		cmds = c.balancer.Shutdown(room)
	}

	status := summarize(room, st, now, required, reason)
	log.Debug().
		Str("room", room.ID).
		Str("name", room.Name).
		Int("people", room.PeopleCount).
		Float64("lux", room.Illumination).
		Int("lights_on", status.LightsOn).
		Int("lights_total", status.LightsTotal).
		Float64("avg_brightness", status.AvgBrightness).
		Int("broken", len(status.BrokenLights)).
		Bool("required", required).
		Str("reason", string(reason)).
		Dur("absent", c.hysteresis.Absent(st, now)).
		Int("planned", len(cmds)).
		Msg("Room evaluated")

	datadog.Gauge("room.illumination", room.Illumination, tag)
	datadog.Gauge("room.people", float64(room.PeopleCount), tag)
	datadog.Gauge("room.lights_on", float64(status.LightsOn), tag)
	datadog.Gauge("light.broken", float64(len(status.BrokenLights)), tag)

	if len(cmds) > 0 {
		c.setState(StateActuating)
	}
	for _, cmd := range cmds {
		if ctx.Err() != nil {
			break
		}
		if err := c.actuator.SetLight(ctx, cmd); err != nil {
			status.CommandsFailed++
			log.Error().Err(err).Str("room", room.ID).Str("light", cmd.LightID).Str("reason", cmd.Reason).Msg("Light command failed")
			datadog.Count("command.failed", 1, tag)
			events = append(events, commandEvent(cycleID, db.EventCommandFailed, now, cmd, err))
			continue
		}
		status.CommandsSent++
		log.Info().Str("room", room.ID).Str("command", cmd.String()).Str("reason", cmd.Reason).Msg("Light command sent")
		datadog.Count("command.sent", 1, tag)
		events = append(events, commandEvent(cycleID, db.EventCommandSent, now, cmd, nil))
	}

	c.publish(status)
	return status.CommandsSent, status.CommandsFailed
}

func (c *Controller) publish(s RoomStatus) {
	c.mu.Lock()
	c.status[s.RoomID] = s
	c.mu.Unlock()
}

// record writes to the ledger; a failure is logged and never stops the cycle.
// Commands already sent are recorded even after ctx is cancelled.
func (c *Controller) record(ctx context.Context, events ...db.Event) {
	if len(events) == 0 {
		return
	}
	if err := c.recorder.AppendEvents(context.WithoutCancel(ctx), events); err != nil {
		log.Warn().Err(err).Int("events", len(events)).Str("first", string(events[0].Type)).Msg("Failed to record ledger events")
	}
}

func commandEvent(cycleID string, t db.EventType, now time.Time, cmd model.Command, err error) db.Event {
	payload := map[string]any{
		"state":  string(cmd.State),
		"reason": cmd.Reason,
	}
	if cmd.State == model.LightOn {
		payload["brightness"] = cmd.Brightness
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	return db.Event{
		CycleID: cycleID,
		Type:    t,
		RoomID:  cmd.RoomID,
		LightID: cmd.LightID,
		SimTime: now,
		Payload: payload,
	}
}

// summarize builds the status from the snapshot as observed, before this cycle's
// commands take effect.
func summarize(room model.Room, st *model.RoomControlState, now time.Time, required bool, reason presence.Reason) RoomStatus {
	s := RoomStatus{
		RoomID:         room.ID,
		Name:           room.Name,
		SimulationTime: now,
		PeopleCount:    room.PeopleCount,
		Illumination:   room.Illumination,
		Required:       required,
		Reason:         reason,
		LightsTotal:    len(room.Lights),
		BrokenLights:   []string{},
	}

	var brightness int
	for _, l := range room.Lights {
		switch l.State {
		case model.LightOn:
			s.LightsOn++
			brightness += l.Brightness
		case model.LightBroken:
			s.BrokenLights = append(s.BrokenLights, l.ID)
		}
	}
	if s.LightsOn > 0 {
		s.AvgBrightness = float64(brightness) / float64(s.LightsOn)
	}
	if st.HasPresence {
		last := st.LastPresence
		s.LastPresence = &last
	}
	return s
}
