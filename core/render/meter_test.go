package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelPercent_ClampedToMeterRange(t *testing.T) {
	assert.Equal(t, 0.0, LevelPercent(nil))
	assert.Equal(t, 0.0, LevelPercent([]float64{}))
	assert.Equal(t, 0.0, LevelPercent([]float64{0, 0, 0, 0}))

	// A full-scale sine reads exactly 100%.
	sine := make([]float64, 1000)
	for i := range sine {
		sine[i] = math.Sin(2 * math.Pi * float64(i) / 100)
	}
	assert.InDelta(t, 100.0, LevelPercent(sine), 0.5)

	// Hotter signal still pegs at 100, never beyond.
	hot := make([]float64, 100)
	for i := range hot {
		hot[i] = 1.5
	}
	assert.Equal(t, 100.0, LevelPercent(hot))

	// Half-scale sine sits at 50%.
	for i := range sine {
		sine[i] *= 0.5
	}
	assert.InDelta(t, 50.0, LevelPercent(sine), 0.5)

	// Polarity does not matter, only energy.
	neg := []float64{-0.5, -0.5, -0.5, -0.5}
	pos := []float64{0.5, 0.5, 0.5, 0.5}
	assert.Equal(t, LevelPercent(pos), LevelPercent(neg))
}

func TestMetering_WritesLevelsAndResetsOnStop(t *testing.T) {
	loud := make([]float64, 256)
	for i := range loud {
		loud[i] = 1.0
	}
	manager := &fakeTrackManager{nodes: map[string]*fakeNode{
		"track-1": {samples: loud},
		"track-2": {samples: make([]float64, 256)}, // silent
	}}
	engine := &fakeEngine{tm: manager}
	clock, _ := newTestClock(engine)
	defer clock.Dispose()

	loudMeter := &fakeMeterView{}
	quietMeter := &fakeMeterView{}
	clock.BindLevelMeter("track-1", loudMeter)
	clock.BindLevelMeter("track-2", quietMeter)

	clock.StartLevelMetering()
	waitFor(t, func() bool {
		hist := loudMeter.history()
		return len(hist) > 0 && hist[len(hist)-1] == 100.0
	}, "loud track pegs the meter")
	waitFor(t, func() bool {
		hist := quietMeter.history()
		return len(hist) > 0 && hist[len(hist)-1] == 0.0
	}, "silent track reads zero")

	clock.StopLevelMetering()
	hist := loudMeter.history()
	assert.Equal(t, 0.0, hist[len(hist)-1], "stop drops every meter to zero")
}

func TestMetering_UnboundTrackIsSkipped(t *testing.T) {
	manager := &fakeTrackManager{nodes: map[string]*fakeNode{}}
	engine := &fakeEngine{tm: manager}
	clock, _ := newTestClock(engine)
	defer clock.Dispose()

	orphan := &fakeMeterView{}
	clock.BindLevelMeter("gone", orphan)
	clock.UnbindLevelMeter("gone")

	clock.StartLevelMetering()
	clock.StopLevelMetering()
	assert.Empty(t, orphan.history(), "an unbound meter never receives writes")
}
