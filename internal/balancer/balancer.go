package balancer

import (
	"math"

	"github.com/thatsimonsguy/light-controller/internal/model"
)

const (
	DefaultDeadband      = 5
	DefaultMinBrightness = 1
	DefaultMaxBrightness = 100
)

const (
	ReasonRebalance = "rebalance"
	ReasonActivate  = "activate"
	ReasonShed      = "shed"
	ReasonShutdown  = "shutdown"
)

// luxEpsilon absorbs float noise so a room exactly at target is not topped up.
const luxEpsilon = 1e-6

type Settings struct {
	MinLux         float64
	MaxLuxPerLight float64
	MinBrightness  int
	MaxBrightness  int
	Deadband       int
}

type Balancer struct {
	cfg Settings
}

func New(cfg Settings) *Balancer {
	return &Balancer{cfg: cfg}
}

// Plan holds the commands for one room in issue order.
type Plan struct {
	Rebalance []model.Command
	Activate  []model.Command
	Shed      []model.Command
}

func (p Plan) Commands() []model.Command {
	out := make([]model.Command, 0, len(p.Rebalance)+len(p.Activate)+len(p.Shed))
	out = append(out, p.Rebalance...)
	out = append(out, p.Activate...)
	out = append(out, p.Shed...)
	return out
}

// Balance plans a room that currently needs light. Below MinLux it raises lights
// already on and then switches on more; at or above MinLux it only sheds lights
// whose removal keeps the room lit. Broken lights are never touched.
func (b *Balancer) Balance(room model.Room) Plan {
	if room.Illumination+luxEpsilon >= b.cfg.MinLux {
		return Plan{Shed: b.shed(room)}
	}

	// external is negative when the on lamps deliver less than MaxLuxPerLight
	// predicts. It is not clamped.
	on := lightsIn(room, model.LightOn)
	external := room.Illumination - b.lampLux(on)

	rebalance, lampLux := b.rebalance(room, on, external)
	deficit := b.cfg.MinLux - (external + lampLux)

	return Plan{
		Rebalance: rebalance,
		Activate:  b.activate(room, deficit),
	}
}

// Shutdown switches off every working light that is on.
func (b *Balancer) Shutdown(room model.Room) []model.Command {
	var cmds []model.Command
	for _, l := range lightsIn(room, model.LightOn) {
		cmds = append(cmds, turnOff(room, l, ReasonShutdown))
	}
	return cmds
}

// rebalance spreads the lamp lux still needed evenly over the lights that are on.
// It returns the commands plus the lamp lux those lights give at their desired
// brightness, including lights left alone because of the deadband.
func (b *Balancer) rebalance(room model.Room, on []model.Light, external float64) ([]model.Command, float64) {
	if len(on) == 0 {
		return nil, 0
	}

	perLight := (b.cfg.MinLux - external) / float64(len(on))
	desired := b.clamp(int(math.Round(perLight / b.cfg.MaxLuxPerLight * 100)))

	var cmds []model.Command
	var lampLux float64
	for _, l := range on {
		lampLux += b.contribution(desired)
		if abs(desired-l.Brightness) <= b.cfg.Deadband {
			continue
		}
		cmds = append(cmds, turnOn(room, l, desired, ReasonRebalance))
	}
	return cmds, lampLux
}

func (b *Balancer) activate(room model.Room, deficit float64) []model.Command {
	if deficit <= luxEpsilon {
		return nil
	}
	available := lightsIn(room, model.LightOff)
	if len(available) == 0 {
		return nil
	}

	full := int(math.Floor(deficit / b.cfg.MaxLuxPerLight))
	remaining := deficit - float64(full)*b.cfg.MaxLuxPerLight
	partial := int(math.Round(remaining / b.cfg.MaxLuxPerLight * 100))

	needed := full
	if partial > 0 {
		needed++
	}
	if needed == 0 {
		return nil
	}

	lastBrightness := b.cfg.MaxBrightness
	if partial > 0 {
		lastBrightness = b.clamp(partial)
	}
	if needed > len(available) {
		needed = len(available)
		lastBrightness = b.cfg.MaxBrightness
	}

	cmds := make([]model.Command, 0, needed)
	for i, l := range available[:needed] {
		brightness := b.cfg.MaxBrightness
		if i == needed-1 {
			brightness = lastBrightness
		}
		cmds = append(cmds, turnOn(room, l, brightness, ReasonActivate))
	}
	return cmds
}

// shed turns off lights that the room does not need: all of them if the rest of
// the light keeps it at MinLux, otherwise all but the first, otherwise none.
func (b *Balancer) shed(room model.Room) []model.Command {
	on := lightsIn(room, model.LightOn)
	if len(on) == 0 {
		return nil
	}

	candidates := on
	if room.Illumination-b.lampLux(candidates)+luxEpsilon < b.cfg.MinLux {
		if len(on) < 2 {
			return nil
		}
		candidates = on[1:]
		if room.Illumination-b.lampLux(candidates)+luxEpsilon < b.cfg.MinLux {
			return nil
		}
	}

	cmds := make([]model.Command, 0, len(candidates))
	for _, l := range candidates {
		cmds = append(cmds, turnOff(room, l, ReasonShed))
	}
	return cmds
}

func (b *Balancer) contribution(brightness int) float64 {
	return b.cfg.MaxLuxPerLight * float64(brightness) / 100
}

func (b *Balancer) lampLux(lights []model.Light) float64 {
	var total float64
	for _, l := range lights {
		total += b.contribution(l.Brightness)
	}
	return total
}

func (b *Balancer) clamp(brightness int) int {
	if brightness < b.cfg.MinBrightness {
		return b.cfg.MinBrightness
	}
	if brightness > b.cfg.MaxBrightness {
		return b.cfg.MaxBrightness
	}
	return brightness
}

// lightsIn returns the room's lights in the given state, in room order.
func lightsIn(room model.Room, state model.LightState) []model.Light {
	var out []model.Light
	for _, l := range room.Lights {
		if l.State == state {
			out = append(out, l)
		}
	}
	return out
}

func turnOn(room model.Room, l model.Light, brightness int, reason string) model.Command {
	return model.Command{
		LightID:    l.ID,
		RoomID:     room.ID,
		State:      model.LightOn,
		Brightness: brightness,
		Reason:     reason,
	}
}

func turnOff(room model.Room, l model.Light, reason string) model.Command {
	return model.Command{
		LightID: l.ID,
		RoomID:  room.ID,
		State:   model.LightOff,
		Reason:  reason,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
