package render

import "fmt"

// PlaybackEngine is the external audio engine's clock and transport.
// The render clock never owns or constructs one; the host supplies an
// accessor so the engine can be swapped per project. The engine's
// clock is the single source of truth for the current time.
type PlaybackEngine interface {
	CurrentTime() float64
	SeekTo(seconds float64) error
	BPM() float64
	TrackManager() TrackManager
}

// TrackManager exposes the engine's per-track routing for metering.
type TrackManager interface {
	TrackIDs() []string
	RoutingNode(trackID string) (RoutingNode, bool)
}

// RoutingNode is a track's analysis tap: a recent window of samples.
type RoutingNode interface {
	Samples() []float64
}

// EngineAccessor returns the currently active playback engine, or nil
// when no project is loaded.
type EngineAccessor func() PlaybackEngine

// Visual targets bound into the clock after first mount. These are
// imperative sinks on the host's DOM-adjacent layer; writing to them
// never touches the host state store.

// PlayheadView mirrors the playhead position.
type PlayheadView interface {
	SetPlayhead(seconds float64)
}

// TimeView shows the formatted position readout.
type TimeView interface {
	SetTimeText(timecode, barsBeats string)
}

// MeterView shows one track's level as a percentage.
type MeterView interface {
	SetLevel(percent float64)
}

// LoopView mirrors the loop-region bounds.
type LoopView interface {
	SetLoopBounds(start, end float64)
}

// Timebase converts between timeline seconds and pixels and formats
// position readouts.
type Timebase struct {
	PixelsPerSec float64
	HeaderWidth  float64 // fixed track-header offset in pixels
	BeatsPerBar  int
	MaxSeconds   float64
}

// TimeToPixel maps a timeline position to a ruler x coordinate.
func (tb Timebase) TimeToPixel(seconds float64) float64 {
	return seconds*tb.PixelsPerSec + tb.HeaderWidth
}

// PixelToTime maps a ruler x coordinate to a timeline position,
// clamped to [0, MaxSeconds].
func (tb Timebase) PixelToTime(x float64) float64 {
	t := (x - tb.HeaderWidth) / tb.PixelsPerSec
	return tb.Clamp(t)
}

// Clamp bounds a timeline position to [0, MaxSeconds].
func (tb Timebase) Clamp(seconds float64) float64 {
	if seconds < 0 {
		return 0
	}
	if tb.MaxSeconds > 0 && seconds > tb.MaxSeconds {
		return tb.MaxSeconds
	}
	return seconds
}

// FormatTimecode renders m:ss.cc.
func (tb Timebase) FormatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	mins := int(seconds) / 60
	secs := int(seconds) % 60
	cents := int(seconds*100) % 100
	return fmt.Sprintf("%d:%02d.%02d", mins, secs, cents)
}

// FormatBarsBeats renders bar.beat from the engine's current tempo.
func (tb Timebase) FormatBarsBeats(seconds, bpm float64) string {
	beatsPerBar := tb.BeatsPerBar
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	if bpm <= 0 {
		return "1.1"
	}
	totalBeats := int(seconds * bpm / 60)
	bar := totalBeats/beatsPerBar + 1
	beat := totalBeats%beatsPerBar + 1
	return fmt.Sprintf("%d.%d", bar, beat)
}
