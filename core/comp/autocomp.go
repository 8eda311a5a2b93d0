package comp

import (
	"fmt"
	"sort"

	"comproom/logger"
	"comproom/model"

	"github.com/google/uuid"
)

// overlapWeight biases the best-take score toward coverage; a fully
// covering take earns three rating points worth of score.
const overlapWeight = 3.0

// AutoCompByRating replaces the track's composed selection with one
// whole-take region per take rated at or above minRating, ordered by
// rating descending.
func (e *Engine) AutoCompByRating(trackID string, minRating int) ([]*model.CompRegion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}

	qualifying := make([]*model.Take, 0, len(track.TakeIDs))
	for _, takeID := range track.TakeIDs {
		take := e.session.Takes[takeID]
		if take != nil && take.Rating >= minRating {
			qualifying = append(qualifying, take)
		}
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].Rating > qualifying[j].Rating
	})

	// Drop the previous composition.
	for _, regionID := range track.RegionIDs {
		if region, ok := e.session.Regions[regionID]; ok {
			if take := e.session.Takes[region.TakeID]; take != nil {
				take.RegionIDs = removeID(take.RegionIDs, regionID)
			}
			delete(e.session.Regions, regionID)
			delete(e.session.SelectedRegions, regionID)
		}
	}
	track.RegionIDs = track.RegionIDs[:0]

	composed := make([]*model.CompRegion, 0, len(qualifying))
	for _, take := range qualifying {
		region := &model.CompRegion{
			ID:        uuid.NewString(),
			TakeID:    take.ID,
			StartTime: 0,
			EndTime:   take.Duration,
			Gain:      1.0,
		}
		e.session.Regions[region.ID] = region
		take.RegionIDs = append(take.RegionIDs, region.ID)
		track.RegionIDs = append(track.RegionIDs, region.ID)
		composed = append(composed, region)
	}

	logger.Info("auto-comp by rating",
		logger.String("track", trackID),
		logger.Int("minRating", minRating),
		logger.Int("regions", len(composed)))
	return composed, nil
}

// FindBestTakeForRegion scores every take on the track as
// rating + overlapWeight * overlapFraction, where overlapFraction is
// the share of the timeline interval [start,end) the take's placement
// covers, and returns the top scorer. A take with no overlap can still
// win on rating alone; that fallback ranking is deliberate.
func (e *Engine) FindBestTakeForRegion(trackID string, start, end float64) (*model.Take, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	if len(track.TakeIDs) == 0 {
		return nil, fmt.Errorf("track %s has no takes: %w", trackID, ErrNotFound)
	}
	if end <= start {
		return nil, fmt.Errorf("interval [%v,%v): %w", start, end, ErrInvalidRange)
	}

	var best *model.Take
	bestScore := -1.0
	for _, takeID := range track.TakeIDs {
		take := e.session.Takes[takeID]
		if take == nil {
			continue
		}
		score := float64(take.Rating) + overlapWeight*overlapFraction(take, start, end)
		if score > bestScore {
			best = take
			bestScore = score
		}
	}
	return best, nil
}

// overlapFraction returns how much of [start,end) the take's placement
// covers, in [0,1].
func overlapFraction(take *model.Take, start, end float64) float64 {
	lo := take.Offset
	if start > lo {
		lo = start
	}
	hi := take.End()
	if end < hi {
		hi = end
	}
	if hi <= lo {
		return 0
	}
	return (hi - lo) / (end - start)
}
