package render

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a scriptable playback engine: tests set the clock
// position directly and inspect recorded seeks.
type fakeEngine struct {
	mu    sync.Mutex
	now   float64
	bpm   float64
	seeks []float64
	tm    TrackManager
}

func (e *fakeEngine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *fakeEngine) SeekTo(seconds float64) error {
	e.mu.Lock()
	e.seeks = append(e.seeks, seconds)
	e.now = seconds
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) BPM() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bpm
}

func (e *fakeEngine) TrackManager() TrackManager { return e.tm }

func (e *fakeEngine) setNow(seconds float64) {
	e.mu.Lock()
	e.now = seconds
	e.mu.Unlock()
}

func (e *fakeEngine) seekLog() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.seeks...)
}

type fakeTrackManager struct {
	nodes map[string]*fakeNode
}

func (m *fakeTrackManager) TrackIDs() []string {
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	return ids
}

func (m *fakeTrackManager) RoutingNode(trackID string) (RoutingNode, bool) {
	node, ok := m.nodes[trackID]
	return node, ok
}

type fakeNode struct {
	samples []float64
}

func (n *fakeNode) Samples() []float64 { return n.samples }

// fakeMeterView records every level write; loops run in goroutines so
// access is locked.
type fakeMeterView struct {
	mu     sync.Mutex
	levels []float64
}

func (v *fakeMeterView) SetLevel(percent float64) {
	v.mu.Lock()
	v.levels = append(v.levels, percent)
	v.mu.Unlock()
}

func (v *fakeMeterView) history() []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]float64(nil), v.levels...)
}

type fakePlayheadView struct {
	mu        sync.Mutex
	positions []float64
}

func (v *fakePlayheadView) SetPlayhead(seconds float64) {
	v.mu.Lock()
	v.positions = append(v.positions, seconds)
	v.mu.Unlock()
}

func (v *fakePlayheadView) last() (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.positions) == 0 {
		return 0, false
	}
	return v.positions[len(v.positions)-1], true
}

type fakeLoopView struct {
	mu     sync.Mutex
	bounds [][2]float64
}

func (v *fakeLoopView) SetLoopBounds(start, end float64) {
	v.mu.Lock()
	v.bounds = append(v.bounds, [2]float64{start, end})
	v.mu.Unlock()
}

func (v *fakeLoopView) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.bounds)
}

// commitRecorder counts host state-store commits.
type commitRecorder struct {
	mu        sync.Mutex
	playheads []float64
	loops     [][2]float64
}

func (r *commitRecorder) commitPlayhead(seconds float64) {
	r.mu.Lock()
	r.playheads = append(r.playheads, seconds)
	r.mu.Unlock()
}

func (r *commitRecorder) commitLoop(start, end float64) {
	r.mu.Lock()
	r.loops = append(r.loops, [2]float64{start, end})
	r.mu.Unlock()
}

func (r *commitRecorder) playheadCommits() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.playheads...)
}

func (r *commitRecorder) loopCommits() [][2]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]float64(nil), r.loops...)
}

func testTimebase() Timebase {
	return Timebase{PixelsPerSec: 10, HeaderWidth: 100, BeatsPerBar: 4, MaxSeconds: 60}
}

func newTestClock(engine *fakeEngine) (*Clock, *commitRecorder) {
	rec := &commitRecorder{}
	clock := NewClock(Options{
		Accessor:           func() PlaybackEngine { return engine },
		Timebase:           testTimebase(),
		FrameRate:          200, // fast loops keep the tests short
		MeterRate:          200,
		OnCommitPlayhead:   rec.commitPlayhead,
		OnCommitLoopBounds: rec.commitLoop,
	})
	return clock, rec
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestScrubGesture_CommitsExactlyOnceAtPointerUp(t *testing.T) {
	engine := &fakeEngine{}
	clock, rec := newTestClock(engine)
	defer clock.Dispose()

	handler := clock.NewRulerScrubHandler()
	handler.Down(150) // 5s
	handler.Move(160)
	handler.Move(170)
	handler.Move(180)
	handler.Up(200) // 10s

	require.Equal(t, []float64{10}, rec.playheadCommits(), "one commit, at pointer-up, at the final position")
	assert.Equal(t, []float64{10}, engine.seekLog(), "one authoritative seek")
	assert.Equal(t, 10.0, clock.Playhead())
	assert.False(t, clock.IsPlaying(), "playback was not running, so it must not start")
}

func TestScrubGesture_PausesAndResumesPlayback(t *testing.T) {
	engine := &fakeEngine{}
	clock, rec := newTestClock(engine)
	defer clock.Dispose()

	clock.StartPlayback()
	require.True(t, clock.IsPlaying())

	handler := clock.NewPlayheadDragHandler()
	handler.Down(150)
	assert.False(t, clock.IsPlaying(), "drag pauses the frame loop")

	handler.Move(170)
	assert.Empty(t, rec.playheadCommits(), "moves never commit")

	handler.Up(190)
	assert.True(t, clock.IsPlaying(), "drag end resumes playback")
	assert.Len(t, rec.playheadCommits(), 1)
}

func TestStopPlayback_CommitsOnceAndOnlyOnce(t *testing.T) {
	engine := &fakeEngine{}
	clock, rec := newTestClock(engine)
	defer clock.Dispose()

	clock.StartPlayback()
	engine.setNow(3.5)
	clock.StopPlayback()

	require.Equal(t, []float64{3.5}, rec.playheadCommits(), "final engine time is committed")
	assert.Equal(t, 3.5, clock.Playhead())

	// A second stop with no loop running must not commit again.
	clock.StopPlayback()
	assert.Len(t, rec.playheadCommits(), 1)
}

func TestFrameLoop_MirrorsEngineAndWrapsLoop(t *testing.T) {
	engine := &fakeEngine{}
	clock, _ := newTestClock(engine)
	defer clock.Dispose()

	view := &fakePlayheadView{}
	clock.BindPlayhead(view)
	clock.SetLoopState(true, 2.0, 8.0)

	engine.setNow(5.0)
	clock.StartPlayback()
	waitFor(t, func() bool {
		last, ok := view.last()
		return ok && last == 5.0
	}, "frame loop mirrors the engine clock")

	// Crossing the loop end seeks back to the loop start.
	engine.setNow(9.0)
	waitFor(t, func() bool {
		for _, s := range engine.seekLog() {
			if s == 2.0 {
				return true
			}
		}
		return false
	}, "loop wrap seek")
	waitFor(t, func() bool {
		last, ok := view.last()
		return ok && last == 2.0
	}, "playhead lands on the loop start")
}

func TestLoopHandleDrag_SnapsAndCommitsOnce(t *testing.T) {
	engine := &fakeEngine{}
	clock, rec := newTestClock(engine)
	defer clock.Dispose()

	view := &fakeLoopView{}
	clock.BindLoopHandles(view)
	clock.SetLoopState(true, 2.0, 8.0)

	snap := func(seconds float64) float64 { return math.Round(seconds) }
	handler := clock.NewLoopHandleDragHandler(LoopEndEdge, snap)

	handler.Down(196) // 9.6s, snaps to 10
	handler.Move(203) // 10.3s, snaps to 10
	handler.Move(213) // 11.3s, snaps to 11
	handler.Up(224)   // 12.4s, snaps to 12

	require.Equal(t, [][2]float64{{2.0, 12.0}}, rec.loopCommits(), "one commit per gesture")
	_, start, end := clock.LoopState()
	assert.Equal(t, 2.0, start)
	assert.Equal(t, 12.0, end)
	assert.GreaterOrEqual(t, view.count(), 4, "every pointer sample updates the visual bounds")
}

func TestLoopHandleDrag_InvertedBoundsSwapOnCommit(t *testing.T) {
	engine := &fakeEngine{}
	clock, rec := newTestClock(engine)
	defer clock.Dispose()

	clock.SetLoopState(true, 4.0, 8.0)

	// Drag the end handle left past the start handle.
	handler := clock.NewLoopHandleDragHandler(LoopEndEdge, nil)
	handler.Down(180) // 8s
	handler.Up(110)   // 1s, now left of start

	require.Equal(t, [][2]float64{{1.0, 4.0}}, rec.loopCommits(), "bounds are normalized before commit")
	_, start, end := clock.LoopState()
	assert.Equal(t, 1.0, start)
	assert.Equal(t, 4.0, end)
}

func TestDispose_StopsLoopsAndIsIdempotent(t *testing.T) {
	engine := &fakeEngine{tm: &fakeTrackManager{nodes: map[string]*fakeNode{}}}
	clock, rec := newTestClock(engine)

	clock.StartPlayback()
	clock.StartLevelMetering()
	require.True(t, clock.IsPlaying())

	clock.Dispose()
	clock.Dispose()
	assert.False(t, clock.IsPlaying())
	assert.Empty(t, rec.playheadCommits(), "dispose is not a stop; nothing commits")

	// A disposed clock refuses to start again.
	clock.StartPlayback()
	assert.False(t, clock.IsPlaying())
}
