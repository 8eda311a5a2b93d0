package comp

import (
	"fmt"
	"sort"

	"comproom/logger"
	"comproom/model"

	"github.com/google/uuid"
)

// minFade is the fade floor applied at fresh split boundaries so butt
// joins stay click-free.
const minFade = 0.005

// overlapEpsilon tolerates float jitter when checking region adjacency.
const overlapEpsilon = 1e-9

// CreateCompRegion adds a region over a slice of a take to the track's
// composed selection. Bounds are clamped to [0, take.Duration].
func (e *Engine) CreateCompRegion(trackID, takeID string, start, end float64) (*model.CompRegion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	take, ok := e.session.Takes[takeID]
	if !ok || take.TrackID != trackID {
		return nil, fmt.Errorf("take %s: %w", takeID, ErrNotFound)
	}

	if start < 0 {
		start = 0
	}
	if end > take.Duration {
		end = take.Duration
	}
	if start >= end {
		return nil, fmt.Errorf("region [%v,%v): %w", start, end, ErrInvalidRange)
	}

	region := &model.CompRegion{
		ID:        uuid.NewString(),
		TakeID:    takeID,
		StartTime: start,
		EndTime:   end,
		Gain:      1.0,
	}
	e.session.Regions[region.ID] = region
	take.RegionIDs = append(take.RegionIDs, region.ID)
	track.RegionIDs = append(track.RegionIDs, region.ID)

	return region, nil
}

// DeleteRegion removes a region from the arena and all id references.
func (e *Engine) DeleteRegion(regionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	region, ok := e.session.Regions[regionID]
	if !ok {
		return fmt.Errorf("region %s: %w", regionID, ErrNotFound)
	}
	e.removeRegionLocked(region)
	return nil
}

func (e *Engine) removeRegionLocked(region *model.CompRegion) {
	if take := e.session.Takes[region.TakeID]; take != nil {
		take.RegionIDs = removeID(take.RegionIDs, region.ID)
		if track := e.session.Tracks[take.TrackID]; track != nil {
			track.RegionIDs = removeID(track.RegionIDs, region.ID)
		}
	}
	delete(e.session.Regions, region.ID)
	delete(e.session.SelectedRegions, region.ID)
}

// SplitRegion cuts a region at take-relative time t. If t does not lie
// strictly inside the region the original is returned unmodified along
// with ErrInvalidRange. Otherwise the region is replaced by two
// contiguous halves; the fades at the new boundary reset to the fade
// floor while the outer fades are preserved.
func (e *Engine) SplitRegion(trackID, regionID string, t float64) (*model.CompRegion, *model.CompRegion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return nil, nil, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	region, ok := e.session.Regions[regionID]
	if !ok {
		return nil, nil, fmt.Errorf("region %s: %w", regionID, ErrNotFound)
	}
	if t <= region.StartTime || t >= region.EndTime {
		return region, nil, fmt.Errorf("split at %v outside (%v,%v): %w",
			t, region.StartTime, region.EndTime, ErrInvalidRange)
	}

	left := &model.CompRegion{
		ID:        uuid.NewString(),
		TakeID:    region.TakeID,
		StartTime: region.StartTime,
		EndTime:   t,
		Selected:  region.Selected,
		FadeIn:    region.FadeIn,
		FadeOut:   minFade,
		Gain:      region.Gain,
	}
	right := &model.CompRegion{
		ID:        uuid.NewString(),
		TakeID:    region.TakeID,
		StartTime: t,
		EndTime:   region.EndTime,
		Selected:  region.Selected,
		FadeIn:    minFade,
		FadeOut:   region.FadeOut,
		Gain:      region.Gain,
	}

	e.session.Regions[left.ID] = left
	e.session.Regions[right.ID] = right
	track.RegionIDs = replaceID(track.RegionIDs, regionID, left.ID, right.ID)
	if take := e.session.Takes[region.TakeID]; take != nil {
		take.RegionIDs = replaceID(take.RegionIDs, regionID, left.ID, right.ID)
	}
	delete(e.session.Regions, regionID)
	delete(e.session.SelectedRegions, regionID)

	logger.Debug("region split",
		logger.String("track", trackID),
		logger.String("region", regionID),
		logger.Float64("at", t))
	return left, right, nil
}

// MergeRegions joins two or more regions of the same take into one
// region spanning [first.start, last.end). The result inherits the
// first region's fade-in, the last region's fade-out and the maximum
// gain among the inputs. Regions from more than one take cannot merge.
func (e *Engine) MergeRegions(trackID string, regionIDs []string) (*model.CompRegion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	if len(regionIDs) < 2 {
		return nil, fmt.Errorf("merge needs at least two regions: %w", ErrInvalidRange)
	}

	regions := make([]*model.CompRegion, 0, len(regionIDs))
	for _, regionID := range regionIDs {
		region, ok := e.session.Regions[regionID]
		if !ok {
			return nil, fmt.Errorf("region %s: %w", regionID, ErrNotFound)
		}
		regions = append(regions, region)
	}

	takeID := regions[0].TakeID
	for _, region := range regions[1:] {
		if region.TakeID != takeID {
			return nil, ErrCrossTakeMerge
		}
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].StartTime < regions[j].StartTime
	})
	maxGain := regions[0].Gain
	selected := false
	for i, region := range regions {
		if region.Gain > maxGain {
			maxGain = region.Gain
		}
		if region.Selected {
			selected = true
		}
		if i > 0 && regions[i-1].EndTime > region.StartTime+overlapEpsilon {
			return nil, fmt.Errorf("regions overlap at %v: %w", region.StartTime, ErrInvalidRange)
		}
	}

	merged := &model.CompRegion{
		ID:        uuid.NewString(),
		TakeID:    takeID,
		StartTime: regions[0].StartTime,
		EndTime:   regions[len(regions)-1].EndTime,
		Selected:  selected,
		FadeIn:    regions[0].FadeIn,
		FadeOut:   regions[len(regions)-1].FadeOut,
		Gain:      maxGain,
	}

	// The merged region takes the track slot of the earliest input.
	e.session.Regions[merged.ID] = merged
	track.RegionIDs = replaceID(track.RegionIDs, regions[0].ID, merged.ID)
	if take := e.session.Takes[takeID]; take != nil {
		take.RegionIDs = replaceID(take.RegionIDs, regions[0].ID, merged.ID)
	}
	for _, region := range regions[1:] {
		e.removeRegionLocked(region)
	}
	delete(e.session.Regions, regions[0].ID)
	delete(e.session.SelectedRegions, regions[0].ID)

	logger.Debug("regions merged",
		logger.String("track", trackID),
		logger.Int("count", len(regions)),
		logger.String("merged", merged.ID))
	return merged, nil
}

// SetRegionFades adjusts a region's fade envelope.
func (e *Engine) SetRegionFades(regionID string, fadeIn, fadeOut float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	region, ok := e.session.Regions[regionID]
	if !ok {
		return fmt.Errorf("region %s: %w", regionID, ErrNotFound)
	}
	if fadeIn < 0 || fadeOut < 0 || fadeIn+fadeOut > region.Span() {
		return fmt.Errorf("fades %v/%v on span %v: %w", fadeIn, fadeOut, region.Span(), ErrInvalidRange)
	}
	region.FadeIn = fadeIn
	region.FadeOut = fadeOut
	return nil
}

// SetRegionGain sets the linear gain, clamped to [0,1].
func (e *Engine) SetRegionGain(regionID string, gain float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	region, ok := e.session.Regions[regionID]
	if !ok {
		return fmt.Errorf("region %s: %w", regionID, ErrNotFound)
	}
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	region.Gain = gain
	return nil
}

// replaceID swaps one id for one or more ids in place order.
func replaceID(ids []string, old string, repl ...string) []string {
	out := make([]string, 0, len(ids)+len(repl)-1)
	for _, cur := range ids {
		if cur == old {
			out = append(out, repl...)
		} else {
			out = append(out, cur)
		}
	}
	return out
}
