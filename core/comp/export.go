package comp

import (
	"fmt"

	"comproom/logger"
	"comproom/model"
)

// ExportComp renders the track's composed selection into a fresh
// buffer. Regions are mixed additively (existing value + new sample)
// with per-sample linear fades scaled by region gain. There is no
// final normalization or limiting pass: overlapping regions can exceed
// unit amplitude, and gain staging is deliberately the caller's
// responsibility. Take buffers are only read, never written.
func (e *Engine) ExportComp(trackID string) (*model.AudioBuffer, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}

	// The output covers the maximum extent of any take's placement,
	// not just the composed regions, so re-comps line up sample-exact.
	extent := 0.0
	for _, takeID := range track.TakeIDs {
		if take := e.session.Takes[takeID]; take != nil && take.End() > extent {
			extent = take.End()
		}
	}
	out := model.NewAudioBuffer(e.sampleRate, extent)

	for _, regionID := range track.RegionIDs {
		region := e.session.Regions[regionID]
		if region == nil {
			continue
		}
		take := e.session.Takes[region.TakeID]
		if take == nil || take.Buffer == nil || take.Muted {
			continue
		}
		mixRegion(out, take, region)
	}

	logger.Info("comp exported",
		logger.String("track", trackID),
		logger.Float64("seconds", extent),
		logger.Int("regions", len(track.RegionIDs)))
	return out, nil
}

// mixRegion adds one region's samples into the output buffer.
func mixRegion(out *model.AudioBuffer, take *model.Take, region *model.CompRegion) {
	rate := float64(out.SampleRate)
	src := take.Buffer.Samples

	srcStart := int(region.StartTime * rate)
	n := int(region.Span() * rate)
	dstStart := int((take.Offset + region.StartTime) * rate)

	fadeIn := int(region.FadeIn * rate)
	fadeOut := int(region.FadeOut * rate)

	for i := 0; i < n; i++ {
		si := srcStart + i
		di := dstStart + i
		if si < 0 || si >= len(src) || di < 0 || di >= len(out.Samples) {
			continue
		}

		g := region.Gain
		if fadeIn > 0 && i < fadeIn {
			g *= float64(i) / float64(fadeIn)
		}
		if fadeOut > 0 && i >= n-fadeOut {
			g *= float64(n-i) / float64(fadeOut)
		}
		out.Samples[di] += src[si] * g
	}
}
