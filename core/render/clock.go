package render

import (
	"sync"
	"time"

	"comproom/logger"
)

// CommitPlayheadFunc persists an authoritative playhead position into
// the host's state store.
type CommitPlayheadFunc func(seconds float64)

// CommitLoopBoundsFunc persists authoritative loop bounds.
type CommitLoopBoundsFunc func(start, end float64)

// loopTask is one periodic background loop with single ownership and
// an idempotent stop.
type loopTask struct {
	done chan struct{}
	once sync.Once
}

func newLoopTask() *loopTask {
	return &loopTask{done: make(chan struct{})}
}

func (t *loopTask) stop() {
	t.once.Do(func() { close(t.done) })
}

// Clock drives the per-frame visual loop and the slower level-metering
// loop. It owns no session state and reads time exclusively from the
// external playback engine. The core invariant: values that would
// re-render the host UI are committed only at transition boundaries
// (stop, pointer-up), never from inside a frame tick.
type Clock struct {
	mu sync.Mutex

	accessor  EngineAccessor
	tb        Timebase
	frameRate int
	meterRate int

	playhead float64

	loopEnabled            bool
	loopStart, loopEnd     float64
	visualStart, visualEnd float64 // bounds during interactive dragging

	playheadViews []PlayheadView
	timeViews     []TimeView
	loopViews     []LoopView
	meters        map[string]MeterView

	onCommitPlayhead   CommitPlayheadFunc
	onCommitLoopBounds CommitLoopBoundsFunc

	frameTask *loopTask
	meterTask *loopTask
	disposed  bool
}

// Options configures a render clock.
type Options struct {
	Accessor           EngineAccessor
	Timebase           Timebase
	FrameRate          int // visual loop, frames per second
	MeterRate          int // metering loop, updates per second
	OnCommitPlayhead   CommitPlayheadFunc
	OnCommitLoopBounds CommitLoopBoundsFunc
}

// NewClock builds a render clock around a playback-engine accessor.
func NewClock(opts Options) *Clock {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 60
	}
	if opts.MeterRate <= 0 {
		opts.MeterRate = 30
	}
	return &Clock{
		accessor:           opts.Accessor,
		tb:                 opts.Timebase,
		frameRate:          opts.FrameRate,
		meterRate:          opts.MeterRate,
		meters:             make(map[string]MeterView),
		onCommitPlayhead:   opts.OnCommitPlayhead,
		onCommitLoopBounds: opts.OnCommitLoopBounds,
	}
}

// Timebase returns the clock's time/pixel conversion.
func (c *Clock) Timebase() Timebase {
	return c.tb
}

// BindPlayhead registers a playhead visual target.
func (c *Clock) BindPlayhead(v PlayheadView) {
	c.mu.Lock()
	c.playheadViews = append(c.playheadViews, v)
	c.mu.Unlock()
}

// BindTimeDisplay registers a time readout target.
func (c *Clock) BindTimeDisplay(v TimeView) {
	c.mu.Lock()
	c.timeViews = append(c.timeViews, v)
	c.mu.Unlock()
}

// BindLoopHandles registers a loop-region visual target.
func (c *Clock) BindLoopHandles(v LoopView) {
	c.mu.Lock()
	c.loopViews = append(c.loopViews, v)
	c.mu.Unlock()
}

// BindLevelMeter registers a per-track meter target.
func (c *Clock) BindLevelMeter(trackID string, v MeterView) {
	c.mu.Lock()
	c.meters[trackID] = v
	c.mu.Unlock()
}

// UnbindLevelMeter removes a meter target when its track is deleted.
func (c *Clock) UnbindLevelMeter(trackID string) {
	c.mu.Lock()
	delete(c.meters, trackID)
	c.mu.Unlock()
}

// Playhead returns the current visual playhead position.
func (c *Clock) Playhead() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playhead
}

// SetPlayheadVisual updates the playhead value and pushes it to bound
// visual targets. It performs no state-store commit.
func (c *Clock) SetPlayheadVisual(seconds float64) {
	seconds = c.tb.Clamp(seconds)

	c.mu.Lock()
	c.playhead = seconds
	playheads := append([]PlayheadView(nil), c.playheadViews...)
	times := append([]TimeView(nil), c.timeViews...)
	c.mu.Unlock()

	bpm := 0.0
	if engine := c.engine(); engine != nil {
		bpm = engine.BPM()
	}
	for _, v := range playheads {
		v.SetPlayhead(seconds)
	}
	if len(times) > 0 {
		timecode := c.tb.FormatTimecode(seconds)
		bars := c.tb.FormatBarsBeats(seconds, bpm)
		for _, v := range times {
			v.SetTimeText(timecode, bars)
		}
	}
}

// StartPlayback starts the continuous per-frame loop. Each frame reads
// the engine clock and mirrors it visually; nothing is committed until
// StopPlayback.
func (c *Clock) StartPlayback() {
	c.mu.Lock()
	if c.disposed || c.frameTask != nil {
		c.mu.Unlock()
		return
	}
	task := newLoopTask()
	c.frameTask = task
	frameRate := c.frameRate
	c.mu.Unlock()

	go c.frameLoop(task, frameRate)
}

// StopPlayback cancels the frame loop and commits the final position
// exactly once via the host callback.
func (c *Clock) StopPlayback() {
	c.mu.Lock()
	task := c.frameTask
	c.frameTask = nil
	commit := c.onCommitPlayhead
	final := c.playhead
	c.mu.Unlock()

	if task == nil {
		return
	}
	task.stop()

	if engine := c.engine(); engine != nil {
		final = engine.CurrentTime()
		c.SetPlayheadVisual(final)
	}
	if commit != nil {
		commit(final)
	}
}

// IsPlaying reports whether the frame loop is running.
func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameTask != nil
}

// pauseForGesture stops the frame loop without committing and reports
// whether playback was running. Drag handlers use it so the single
// commit happens at pointer-up.
func (c *Clock) pauseForGesture() bool {
	c.mu.Lock()
	task := c.frameTask
	c.frameTask = nil
	c.mu.Unlock()

	if task == nil {
		return false
	}
	task.stop()
	return true
}

func (c *Clock) frameLoop(task *loopTask, frameRate int) {
	ticker := time.NewTicker(time.Second / time.Duration(frameRate))
	defer ticker.Stop()

	for {
		select {
		case <-task.done:
			return
		case <-ticker.C:
			engine := c.engine()
			if engine == nil {
				continue
			}
			now := engine.CurrentTime()

			c.mu.Lock()
			wrap := c.loopEnabled && c.loopEnd > c.loopStart && now >= c.loopEnd
			loopStart := c.loopStart
			c.mu.Unlock()

			if wrap {
				if err := engine.SeekTo(loopStart); err != nil {
					logger.Warn("loop wrap seek failed", logger.ErrorField(err))
				} else {
					now = loopStart
				}
			}
			c.SetPlayheadVisual(now)
		}
	}
}

// SetLoopState sets the authoritative loop bounds used during
// playback.
func (c *Clock) SetLoopState(enabled bool, start, end float64) {
	start = c.tb.Clamp(start)
	end = c.tb.Clamp(end)

	c.mu.Lock()
	c.loopEnabled = enabled
	c.loopStart = start
	c.loopEnd = end
	c.visualStart = start
	c.visualEnd = end
	views := append([]LoopView(nil), c.loopViews...)
	c.mu.Unlock()

	for _, v := range views {
		v.SetLoopBounds(start, end)
	}
}

// LoopState returns the authoritative loop bounds.
func (c *Clock) LoopState() (enabled bool, start, end float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopEnabled, c.loopStart, c.loopEnd
}

// SetLoopBoundsVisual updates bounds during interactive dragging
// without committing.
func (c *Clock) SetLoopBoundsVisual(start, end float64) {
	start = c.tb.Clamp(start)
	end = c.tb.Clamp(end)

	c.mu.Lock()
	c.visualStart = start
	c.visualEnd = end
	views := append([]LoopView(nil), c.loopViews...)
	c.mu.Unlock()

	for _, v := range views {
		v.SetLoopBounds(start, end)
	}
}

// CommitLoopBounds promotes the dragged bounds to authoritative state
// and invokes the host commit callback. Called once, on drag end.
func (c *Clock) CommitLoopBounds() {
	c.mu.Lock()
	start, end := c.visualStart, c.visualEnd
	if end < start {
		start, end = end, start
	}
	c.loopStart = start
	c.loopEnd = end
	commit := c.onCommitLoopBounds
	c.mu.Unlock()

	if commit != nil {
		commit(start, end)
	}
}

// Dispose stops every loop the clock owns. Double-dispose is safe.
func (c *Clock) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	frame := c.frameTask
	meter := c.meterTask
	c.frameTask = nil
	c.meterTask = nil
	c.mu.Unlock()

	if frame != nil {
		frame.stop()
	}
	if meter != nil {
		meter.stop()
	}
}

func (c *Clock) engine() PlaybackEngine {
	if c.accessor == nil {
		return nil
	}
	return c.accessor()
}
