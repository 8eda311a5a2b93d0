package render

import (
	"math"
	"time"
)

// fullScaleRMS is the RMS of a full-scale sine; it anchors 100% on the
// meter.
const fullScaleRMS = 0.7071067811865476

// StartLevelMetering runs the lower-frequency metering loop: each tick
// samples every bound track's routing node, estimates RMS energy and
// writes a clamped [0,100] percentage into the meter target.
func (c *Clock) StartLevelMetering() {
	c.mu.Lock()
	if c.disposed || c.meterTask != nil {
		c.mu.Unlock()
		return
	}
	task := newLoopTask()
	c.meterTask = task
	meterRate := c.meterRate
	c.mu.Unlock()

	go c.meterLoop(task, meterRate)
}

// StopLevelMetering cancels the metering loop and resets every bound
// meter to zero.
func (c *Clock) StopLevelMetering() {
	c.mu.Lock()
	task := c.meterTask
	c.meterTask = nil
	views := make([]MeterView, 0, len(c.meters))
	for _, v := range c.meters {
		views = append(views, v)
	}
	c.mu.Unlock()

	if task == nil {
		return
	}
	task.stop()

	for _, v := range views {
		v.SetLevel(0)
	}
}

func (c *Clock) meterLoop(task *loopTask, meterRate int) {
	ticker := time.NewTicker(time.Second / time.Duration(meterRate))
	defer ticker.Stop()

	for {
		select {
		case <-task.done:
			return
		case <-ticker.C:
			c.meterTick()
		}
	}
}

func (c *Clock) meterTick() {
	engine := c.engine()
	if engine == nil {
		return
	}
	manager := engine.TrackManager()
	if manager == nil {
		return
	}

	c.mu.Lock()
	targets := make(map[string]MeterView, len(c.meters))
	for trackID, v := range c.meters {
		targets[trackID] = v
	}
	c.mu.Unlock()

	for trackID, view := range targets {
		node, ok := manager.RoutingNode(trackID)
		if !ok {
			continue
		}
		view.SetLevel(LevelPercent(node.Samples()))
	}
}

// LevelPercent converts a sample window to a meter percentage: RMS
// relative to a full-scale sine, clamped to [0,100] regardless of
// input amplitude.
func LevelPercent(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	percent := rms / fullScaleRMS * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
