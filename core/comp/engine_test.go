package comp

import (
	"context"
	"errors"
	"testing"

	"comproom/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDecoder struct {
	buf *model.AudioBuffer
	err error
}

func (d *stubDecoder) Decode(ctx context.Context, sourceURL string) (*model.AudioBuffer, error) {
	return d.buf, d.err
}

func TestRateTake_Clamps(t *testing.T) {
	engine, _, takes := newTestEngine(t, 1, 2.0)

	cases := []struct {
		in, want int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{3, 3},
		{5, 5},
		{9, 5},
	}
	for _, tc := range cases {
		require.NoError(t, engine.RateTake(takes[0].ID, tc.in))
		got, _ := engine.Take(takes[0].ID)
		assert.Equal(t, tc.want, got.Rating, "rating %d", tc.in)
	}
}

func TestAddTake_RequiresSource(t *testing.T) {
	engine := NewEngine("proj-1", 100, nil)
	track := engine.CreateCompTrack("gtr")

	_, err := engine.AddTake(context.Background(), track.ID, "empty", nil, "", 0)
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestAddTake_DecodesSourceReference(t *testing.T) {
	buf := model.NewAudioBuffer(100, 3.0)
	engine := NewEngine("proj-1", 100, &stubDecoder{buf: buf})
	track := engine.CreateCompTrack("gtr")

	take, err := engine.AddTake(context.Background(), track.ID, "ref", nil, "https://cdn/take.wav", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, take.Duration)
	assert.Equal(t, 1.0, take.Offset)
	assert.Same(t, buf, take.Buffer)

	gotTrack, _ := engine.Track(track.ID)
	assert.Equal(t, take.ID, gotTrack.ActiveTakeID, "first take becomes active")
}

func TestAddTake_DecodeFailure(t *testing.T) {
	engine := NewEngine("proj-1", 100, &stubDecoder{err: errors.New("boom")})
	track := engine.CreateCompTrack("gtr")

	_, err := engine.AddTake(context.Background(), track.ID, "ref", nil, "https://cdn/take.wav", 0)
	assert.Error(t, err)
}

func TestDeleteTake_ActiveFallback(t *testing.T) {
	engine, track, takes := newTestEngine(t, 2, 2.0)

	gotTrack, _ := engine.Track(track.ID)
	require.Equal(t, takes[0].ID, gotTrack.ActiveTakeID)

	require.NoError(t, engine.DeleteTake(takes[0].ID))
	gotTrack, _ = engine.Track(track.ID)
	assert.Equal(t, takes[1].ID, gotTrack.ActiveTakeID, "active falls back to the next take")

	require.NoError(t, engine.DeleteTake(takes[1].ID))
	gotTrack, _ = engine.Track(track.ID)
	assert.Empty(t, gotTrack.ActiveTakeID, "last deletion leaves the track take-less")
	assert.Empty(t, gotTrack.TakeIDs)
}

func TestDeleteTake_RemovesItsRegions(t *testing.T) {
	engine, track, takes := newTestEngine(t, 2, 2.0)

	mine, err := engine.CreateCompRegion(track.ID, takes[0].ID, 0, 1.0)
	require.NoError(t, err)
	other, err := engine.CreateCompRegion(track.ID, takes[1].ID, 1.0, 2.0)
	require.NoError(t, err)

	require.NoError(t, engine.DeleteTake(takes[0].ID))

	_, ok := engine.Region(mine.ID)
	assert.False(t, ok, "regions die with their take")
	_, ok = engine.Region(other.ID)
	assert.True(t, ok, "other takes' regions survive")

	gotTrack, _ := engine.Track(track.ID)
	assert.Equal(t, []string{other.ID}, gotTrack.RegionIDs)
}

func TestDeleteTake_LockedRefuses(t *testing.T) {
	engine, _, takes := newTestEngine(t, 1, 2.0)

	require.NoError(t, engine.SetLocked(takes[0].ID, true))
	err := engine.DeleteTake(takes[0].ID)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestDeleteCompTrack_ClearsArenas(t *testing.T) {
	engine, track, takes := newTestEngine(t, 2, 2.0)
	region, err := engine.CreateCompRegion(track.ID, takes[0].ID, 0, 1.0)
	require.NoError(t, err)

	require.NoError(t, engine.DeleteCompTrack(track.ID))

	_, ok := engine.Track(track.ID)
	assert.False(t, ok)
	for _, take := range takes {
		_, ok := engine.Take(take.ID)
		assert.False(t, ok)
	}
	_, ok = engine.Region(region.ID)
	assert.False(t, ok)
}

func TestSelection(t *testing.T) {
	engine, track, takes := newTestEngine(t, 1, 2.0)

	a, err := engine.CreateCompRegion(track.ID, takes[0].ID, 0, 1.0)
	require.NoError(t, err)
	b, err := engine.CreateCompRegion(track.ID, takes[0].ID, 1.0, 2.0)
	require.NoError(t, err)

	engine.SelectRegion(a.ID)
	engine.SelectRegion(b.ID)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, engine.SelectedRegionIDs())

	engine.DeselectRegion(a.ID)
	assert.Equal(t, []string{b.ID}, engine.SelectedRegionIDs())

	engine.ClearSelection()
	assert.Empty(t, engine.SelectedRegionIDs())
	got, _ := engine.Region(b.ID)
	assert.False(t, got.Selected)
}

func TestUnknownIDs(t *testing.T) {
	engine := NewEngine("proj-1", 100, nil)

	assert.ErrorIs(t, engine.DeleteCompTrack("nope"), ErrNotFound)
	assert.ErrorIs(t, engine.DeleteTake("nope"), ErrNotFound)
	assert.ErrorIs(t, engine.RateTake("nope", 3), ErrNotFound)
	assert.ErrorIs(t, engine.SetActiveTake("nope", "nope"), ErrNotFound)
	assert.ErrorIs(t, engine.DeleteRegion("nope"), ErrNotFound)
}
