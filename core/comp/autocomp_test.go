package comp

import (
	"context"
	"testing"

	"comproom/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addPlacedTake adds a constant-signal take at a timeline offset.
func addPlacedTake(t *testing.T, engine *Engine, trackID string, offset, seconds float64) *model.Take {
	t.Helper()

	buf := model.NewAudioBuffer(100, seconds)
	for i := range buf.Samples {
		buf.Samples[i] = 0.5
	}
	take, err := engine.AddTake(context.Background(), trackID, "placed", buf, "", offset)
	require.NoError(t, err)
	return take
}

func TestAutoCompByRating_FiltersByThreshold(t *testing.T) {
	engine, track, takes := newTestEngine(t, 2, 4.0)

	require.NoError(t, engine.RateTake(takes[0].ID, 5))
	require.NoError(t, engine.RateTake(takes[1].ID, 2))

	composed, err := engine.AutoCompByRating(track.ID, 3)
	require.NoError(t, err)

	require.Len(t, composed, 1)
	assert.Equal(t, takes[0].ID, composed[0].TakeID, "only the rating-5 take qualifies")
	assert.Equal(t, 0.0, composed[0].StartTime)
	assert.Equal(t, 4.0, composed[0].EndTime)
}

func TestAutoCompByRating_OrdersByRatingDesc(t *testing.T) {
	engine, track, takes := newTestEngine(t, 3, 2.0)

	require.NoError(t, engine.RateTake(takes[0].ID, 3))
	require.NoError(t, engine.RateTake(takes[1].ID, 5))
	require.NoError(t, engine.RateTake(takes[2].ID, 4))

	composed, err := engine.AutoCompByRating(track.ID, 3)
	require.NoError(t, err)

	require.Len(t, composed, 3)
	assert.Equal(t, takes[1].ID, composed[0].TakeID)
	assert.Equal(t, takes[2].ID, composed[1].TakeID)
	assert.Equal(t, takes[0].ID, composed[2].TakeID)
}

func TestAutoCompByRating_ReplacesPriorComposition(t *testing.T) {
	engine, track, takes := newTestEngine(t, 2, 4.0)

	old, err := engine.CreateCompRegion(track.ID, takes[0].ID, 1.0, 2.0)
	require.NoError(t, err)
	require.NoError(t, engine.RateTake(takes[1].ID, 4))

	composed, err := engine.AutoCompByRating(track.ID, 4)
	require.NoError(t, err)
	require.Len(t, composed, 1)

	_, ok := engine.Region(old.ID)
	assert.False(t, ok, "previous composition must be dropped")
	gotTrack, _ := engine.Track(track.ID)
	assert.Equal(t, []string{composed[0].ID}, gotTrack.RegionIDs)
}

func TestFindBestTakeForRegion_ScoresRatingPlusOverlap(t *testing.T) {
	engine, track, _ := newTestEngine(t, 0, 0)

	// Take A: rating 2, fully covering [0,4). Score 2 + 3*1 = 5.
	// Take B: rating 4, no overlap at all.  Score 4 + 0   = 4.
	a := addPlacedTake(t, engine, track.ID, 0, 4.0)
	b := addPlacedTake(t, engine, track.ID, 10.0, 4.0)
	require.NoError(t, engine.RateTake(a.ID, 2))
	require.NoError(t, engine.RateTake(b.ID, 4))

	best, err := engine.FindBestTakeForRegion(track.ID, 0, 4.0)
	require.NoError(t, err)
	assert.Equal(t, a.ID, best.ID, "full coverage beats a better rating")
}

func TestFindBestTakeForRegion_RatingFallbackWithoutOverlap(t *testing.T) {
	engine, track, _ := newTestEngine(t, 0, 0)

	// Neither take overlaps the interval; the better rating wins.
	// That fallback ranking is deliberate, not a bug.
	a := addPlacedTake(t, engine, track.ID, 10.0, 2.0)
	b := addPlacedTake(t, engine, track.ID, 20.0, 2.0)
	require.NoError(t, engine.RateTake(a.ID, 2))
	require.NoError(t, engine.RateTake(b.ID, 5))

	best, err := engine.FindBestTakeForRegion(track.ID, 0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, b.ID, best.ID)
}

func TestFindBestTakeForRegion_Errors(t *testing.T) {
	engine, track, _ := newTestEngine(t, 0, 0)

	_, err := engine.FindBestTakeForRegion(track.ID, 0, 1.0)
	assert.ErrorIs(t, err, ErrNotFound, "no takes to choose from")

	addPlacedTake(t, engine, track.ID, 0, 1.0)
	_, err = engine.FindBestTakeForRegion(track.ID, 2.0, 2.0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}
