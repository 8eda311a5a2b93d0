package comp

import (
	"context"
	"fmt"
	"sync"

	"comproom/logger"
	"comproom/model"

	"github.com/google/uuid"
)

// Decoder turns a fetchable source reference into a decoded buffer.
// The playback/decode engine is external; the comp engine only needs
// this one primitive to ingest new takes.
type Decoder interface {
	Decode(ctx context.Context, sourceURL string) (*model.AudioBuffer, error)
}

// Engine owns the take/region data model for one project. Tracks,
// takes and regions live in flat id-keyed arenas on the session;
// every cross-reference is an id lookup.
type Engine struct {
	mu         sync.RWMutex
	session    *model.CompSession
	decoder    Decoder
	sampleRate int
}

// NewEngine creates a comp engine for a project.
func NewEngine(projectID string, sampleRate int, decoder Decoder) *Engine {
	return &Engine{
		session:    model.NewCompSession(projectID),
		decoder:    decoder,
		sampleRate: sampleRate,
	}
}

// Session returns the underlying session state. Callers must treat it
// as read-only; mutations go through the engine API.
func (e *Engine) Session() *model.CompSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

// CreateCompTrack adds a new comping surface.
func (e *Engine) CreateCompTrack(name string) *model.CompTrack {
	e.mu.Lock()
	defer e.mu.Unlock()

	track := &model.CompTrack{
		ID:        uuid.NewString(),
		Name:      name,
		TakeIDs:   []string{},
		RegionIDs: []string{},
	}
	e.session.Tracks[track.ID] = track

	logger.Info("comp track created",
		logger.String("track", track.ID),
		logger.String("name", name))
	return track
}

// DeleteCompTrack removes a track and everything it owns.
func (e *Engine) DeleteCompTrack(trackID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}

	for _, takeID := range track.TakeIDs {
		e.removeTakeLocked(takeID)
	}
	for _, regionID := range track.RegionIDs {
		delete(e.session.Regions, regionID)
		delete(e.session.SelectedRegions, regionID)
	}
	delete(e.session.Tracks, trackID)

	logger.Info("comp track deleted", logger.String("track", trackID))
	return nil
}

// AddTake ingests a new take onto a track. Either a decoded buffer or
// a source reference must be supplied; a bare reference is decoded via
// the injected Decoder.
func (e *Engine) AddTake(ctx context.Context, trackID, name string, buf *model.AudioBuffer, sourceURL string, offset float64) (*model.Take, error) {
	if buf == nil && sourceURL == "" {
		return nil, ErrNoSource
	}
	if buf == nil {
		decoded, err := e.decoder.Decode(ctx, sourceURL)
		if err != nil {
			return nil, fmt.Errorf("decode take source: %w", err)
		}
		buf = decoded
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}

	take := &model.Take{
		ID:         uuid.NewString(),
		TrackID:    trackID,
		Name:       name,
		Buffer:     buf,
		SourceURL:  sourceURL,
		Offset:     offset,
		Duration:   buf.Duration(),
		RecordedAt: model.NowMillis(),
	}
	e.session.Takes[take.ID] = take
	track.TakeIDs = append(track.TakeIDs, take.ID)

	// First take on a track becomes the monitoring take.
	if track.ActiveTakeID == "" {
		track.ActiveTakeID = take.ID
	}

	logger.Info("take added",
		logger.String("track", trackID),
		logger.String("take", take.ID),
		logger.Float64("duration", take.Duration))
	return take, nil
}

// DeleteTake removes a take and its regions. Deleting the active take
// falls back to the next available take, or leaves the track take-less.
func (e *Engine) DeleteTake(takeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	take, ok := e.session.Takes[takeID]
	if !ok {
		return fmt.Errorf("take %s: %w", takeID, ErrNotFound)
	}
	if take.Locked {
		return fmt.Errorf("take %s: %w", takeID, ErrLocked)
	}

	track := e.session.Tracks[take.TrackID]
	e.removeTakeLocked(takeID)

	if track != nil && track.ActiveTakeID == takeID {
		track.ActiveTakeID = ""
		if len(track.TakeIDs) > 0 {
			track.ActiveTakeID = track.TakeIDs[0]
		}
	}
	if e.session.SelectedTakeID == takeID {
		e.session.SelectedTakeID = ""
	}

	logger.Info("take deleted", logger.String("take", takeID))
	return nil
}

// removeTakeLocked deletes a take, its arena regions and all id
// references. Caller holds the write lock.
func (e *Engine) removeTakeLocked(takeID string) {
	take, ok := e.session.Takes[takeID]
	if !ok {
		return
	}

	for _, regionID := range take.RegionIDs {
		delete(e.session.Regions, regionID)
		delete(e.session.SelectedRegions, regionID)
	}
	if track := e.session.Tracks[take.TrackID]; track != nil {
		track.TakeIDs = removeID(track.TakeIDs, takeID)
		// Composed regions referencing this take die with it.
		kept := track.RegionIDs[:0]
		for _, regionID := range track.RegionIDs {
			if region, ok := e.session.Regions[regionID]; ok && region.TakeID != takeID {
				kept = append(kept, regionID)
			}
		}
		track.RegionIDs = kept
	}
	delete(e.session.Takes, takeID)
}

// SetActiveTake selects the take used for monitoring/preview.
func (e *Engine) SetActiveTake(trackID, takeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	take, ok := e.session.Takes[takeID]
	if !ok || take.TrackID != trackID {
		return fmt.Errorf("take %s: %w", takeID, ErrNotFound)
	}
	track.ActiveTakeID = takeID
	return nil
}

// RateTake assigns a 1..5 rating; out-of-range input is clamped.
func (e *Engine) RateTake(takeID string, rating int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	take, ok := e.session.Takes[takeID]
	if !ok {
		return fmt.Errorf("take %s: %w", takeID, ErrNotFound)
	}
	if rating < 1 {
		rating = 1
	}
	if rating > 5 {
		rating = 5
	}
	take.Rating = rating
	return nil
}

// SetPlaylistMode toggles cycling through takes instead of compositing.
func (e *Engine) SetPlaylistMode(trackID string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.session.Tracks[trackID]
	if !ok {
		return fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	track.PlaylistMode = enabled
	return nil
}

// SetMuted flips a take's mute flag; muted takes are skipped at export.
func (e *Engine) SetMuted(takeID string, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	take, ok := e.session.Takes[takeID]
	if !ok {
		return fmt.Errorf("take %s: %w", takeID, ErrNotFound)
	}
	take.Muted = muted
	return nil
}

// SetLocked guards a take against deletion and region edits.
func (e *Engine) SetLocked(takeID string, locked bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	take, ok := e.session.Takes[takeID]
	if !ok {
		return fmt.Errorf("take %s: %w", takeID, ErrNotFound)
	}
	take.Locked = locked
	return nil
}

// SelectTake records the session-level selected take.
func (e *Engine) SelectTake(takeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.SelectedTakeID = takeID
}

// SelectRegion adds a region to the multi-select set.
func (e *Engine) SelectRegion(regionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if region, ok := e.session.Regions[regionID]; ok {
		region.Selected = true
		e.session.SelectedRegions[regionID] = true
	}
}

// DeselectRegion removes a region from the multi-select set.
func (e *Engine) DeselectRegion(regionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if region, ok := e.session.Regions[regionID]; ok {
		region.Selected = false
	}
	delete(e.session.SelectedRegions, regionID)
}

// ClearSelection empties the multi-select set.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for regionID := range e.session.SelectedRegions {
		if region, ok := e.session.Regions[regionID]; ok {
			region.Selected = false
		}
	}
	e.session.SelectedRegions = make(map[string]bool)
}

// SelectedRegionIDs returns the current multi-select set.
func (e *Engine) SelectedRegionIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.session.SelectedRegions))
	for regionID := range e.session.SelectedRegions {
		ids = append(ids, regionID)
	}
	return ids
}

// Track looks up a track by id.
func (e *Engine) Track(trackID string) (*model.CompTrack, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	track, ok := e.session.Tracks[trackID]
	return track, ok
}

// Take looks up a take by id.
func (e *Engine) Take(takeID string) (*model.Take, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	take, ok := e.session.Takes[takeID]
	return take, ok
}

// Region looks up a region by id.
func (e *Engine) Region(regionID string) (*model.CompRegion, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	region, ok := e.session.Regions[regionID]
	return region, ok
}

func removeID(ids []string, id string) []string {
	kept := ids[:0]
	for _, cur := range ids {
		if cur != id {
			kept = append(kept, cur)
		}
	}
	return kept
}
