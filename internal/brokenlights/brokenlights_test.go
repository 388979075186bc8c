package brokenlights

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/light-controller/internal/model"
)

func TestTrack_DeduplicatesBrokenAndRepaired(t *testing.T) {
	st := model.NewRoomControlState("r1")
	broken := []model.Light{
		{ID: "l1", State: model.LightBroken},
		{ID: "l2", State: model.LightOn, Brightness: 80},
	}

	var brokenEvents, repairedEvents []string
	for i := 0; i < 3; i++ {
		nb, rep := Track(broken, st)
		brokenEvents = append(brokenEvents, nb...)
		repairedEvents = append(repairedEvents, rep...)
	}

	assert.Equal(t, []string{"l1"}, brokenEvents)
	assert.Empty(t, repairedEvents)
	assert.Contains(t, st.Broken, "l1")

	fixed := []model.Light{
		{ID: "l1", State: model.LightOff},
		{ID: "l2", State: model.LightOn, Brightness: 80},
	}
	nb, rep := Track(fixed, st)
	assert.Empty(t, nb)
	assert.Equal(t, []string{"l1"}, rep)
	assert.NotContains(t, st.Broken, "l1")

	nb, rep = Track(fixed, st)
	assert.Empty(t, nb)
	assert.Empty(t, rep)
}

func TestTrack_BreaksAgainAfterRepair(t *testing.T) {
	st := model.NewRoomControlState("r1")

	nb, _ := Track([]model.Light{{ID: "l1", State: model.LightBroken}}, st)
	assert.Equal(t, []string{"l1"}, nb)

	_, rep := Track([]model.Light{{ID: "l1", State: model.LightOn}}, st)
	assert.Equal(t, []string{"l1"}, rep)

	nb, _ = Track([]model.Light{{ID: "l1", State: model.LightBroken}}, st)
	assert.Equal(t, []string{"l1"}, nb)
}

func TestTrack_MissingLightKeepsFlag(t *testing.T) {
	st := model.NewRoomControlState("r1")
	Track([]model.Light{{ID: "l1", State: model.LightBroken}}, st)

	nb, rep := Track(nil, st)
	assert.Empty(t, nb)
	assert.Empty(t, rep)
	assert.Contains(t, st.Broken, "l1")
}

func TestTrack_NilBrokenSet(t *testing.T) {
	st := &model.RoomControlState{RoomID: "r1"}
	nb, _ := Track([]model.Light{{ID: "l1", State: model.LightBroken}, {ID: "l2", State: model.LightBroken}}, st)
	assert.Equal(t, []string{"l1", "l2"}, nb)
	assert.Len(t, st.Broken, 2)
}
