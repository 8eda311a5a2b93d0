package render

import "comproom/logger"

// Gesture handlers all follow the same shape: pause playback if
// running, track pointer movement with purely visual updates, and on
// pointer-up perform exactly one authoritative seek/commit before
// optionally resuming. Intermediate moves never touch the host state
// store.

// SnapFunc quantizes a dragged position, e.g. to the bar grid. The
// host supplies it for loop-handle drags.
type SnapFunc func(seconds float64) float64

// LoopEdge says which loop handle a drag moves.
type LoopEdge int

const (
	LoopStartEdge LoopEdge = iota
	LoopEndEdge
)

// PointerHandler is one drag gesture over ruler x coordinates.
type PointerHandler interface {
	Down(x float64)
	Move(x float64)
	Up(x float64)
}

// scrubGesture covers ruler scrubbing and playhead dragging; the two
// differ only in where the pointer lands, not in behavior.
type scrubGesture struct {
	clock      *Clock
	active     bool
	wasPlaying bool
}

// NewRulerScrubHandler returns the drag handler for timeline ruler
// scrubbing.
func (c *Clock) NewRulerScrubHandler() PointerHandler {
	return &scrubGesture{clock: c}
}

// NewPlayheadDragHandler returns the drag handler for grabbing the
// playhead itself.
func (c *Clock) NewPlayheadDragHandler() PointerHandler {
	return &scrubGesture{clock: c}
}

func (g *scrubGesture) Down(x float64) {
	g.wasPlaying = g.clock.pauseForGesture()
	g.active = true
	g.clock.SetPlayheadVisual(g.clock.tb.PixelToTime(x))
}

func (g *scrubGesture) Move(x float64) {
	if !g.active {
		return
	}
	// Visual only; the authoritative seek waits for pointer-up.
	g.clock.SetPlayheadVisual(g.clock.tb.PixelToTime(x))
}

func (g *scrubGesture) Up(x float64) {
	if !g.active {
		return
	}
	g.active = false

	target := g.clock.tb.PixelToTime(x)
	g.clock.SetPlayheadVisual(target)

	if engine := g.clock.engine(); engine != nil {
		if err := engine.SeekTo(target); err != nil {
			logger.Warn("scrub seek failed", logger.ErrorField(err))
		}
	}
	g.clock.mu.Lock()
	commit := g.clock.onCommitPlayhead
	g.clock.mu.Unlock()
	if commit != nil {
		commit(target)
	}

	if g.wasPlaying {
		g.clock.StartPlayback()
	}
}

// loopHandleGesture drags one loop-region edge with host-supplied
// snapping.
type loopHandleGesture struct {
	clock      *Clock
	edge       LoopEdge
	snap       SnapFunc
	active     bool
	wasPlaying bool
}

// NewLoopHandleDragHandler returns the drag handler for a loop-region
// edge. snap may be nil for free positioning.
func (c *Clock) NewLoopHandleDragHandler(edge LoopEdge, snap SnapFunc) PointerHandler {
	return &loopHandleGesture{clock: c, edge: edge, snap: snap}
}

func (g *loopHandleGesture) Down(x float64) {
	g.wasPlaying = g.clock.pauseForGesture()
	g.active = true
	g.moveEdge(x)
}

func (g *loopHandleGesture) Move(x float64) {
	if !g.active {
		return
	}
	g.moveEdge(x)
}

func (g *loopHandleGesture) Up(x float64) {
	if !g.active {
		return
	}
	g.active = false
	g.moveEdge(x)

	// The one authoritative write of the gesture.
	g.clock.CommitLoopBounds()

	if g.wasPlaying {
		g.clock.StartPlayback()
	}
}

func (g *loopHandleGesture) moveEdge(x float64) {
	t := g.clock.tb.PixelToTime(x)
	if g.snap != nil {
		t = g.clock.tb.Clamp(g.snap(t))
	}

	g.clock.mu.Lock()
	start, end := g.clock.visualStart, g.clock.visualEnd
	g.clock.mu.Unlock()

	if g.edge == LoopStartEdge {
		start = t
	} else {
		end = t
	}
	g.clock.SetLoopBoundsVisual(start, end)
}
