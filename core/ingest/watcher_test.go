package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"comproom/core/comp"
	"comproom/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDecoder struct{}

func (stubDecoder) Decode(ctx context.Context, sourceURL string) (*model.AudioBuffer, error) {
	return model.NewAudioBuffer(44100, 1.0), nil
}

func takeNames(engine *comp.Engine, trackID string) []string {
	track, ok := engine.Track(trackID)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(track.TakeIDs))
	for _, id := range track.TakeIDs {
		if take, ok := engine.Take(id); ok {
			names = append(names, take.Name)
		}
	}
	return names
}

func TestWatcher_IngestsDroppedAudioFiles(t *testing.T) {
	dir := t.TempDir()
	engine := comp.NewEngine("proj-1", 44100, stubDecoder{})
	track := engine.CreateCompTrack("drops")

	w := NewWatcher(engine, track.ID, dir, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "verse-take.wav"), []byte("fake audio"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0644))

	deadline := time.Now().Add(3 * time.Second)
	for len(takeNames(engine, track.ID)) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	names := takeNames(engine, track.ID)
	require.Len(t, names, 1, "only audio extensions are ingested")
	assert.Equal(t, "verse-take", names[0], "take name drops the extension")
}

func TestWatcher_StartAndStopAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	engine := comp.NewEngine("proj-1", 44100, stubDecoder{})
	track := engine.CreateCompTrack("drops")

	w := NewWatcher(engine, track.ID, dir, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()), "second start is a no-op")

	w.Stop()
	w.Stop()
}

func TestWatcher_MissingDirFailsToStart(t *testing.T) {
	engine := comp.NewEngine("proj-1", 44100, stubDecoder{})
	track := engine.CreateCompTrack("drops")

	w := NewWatcher(engine, track.ID, "/does/not/exist", 20*time.Millisecond)
	assert.Error(t, w.Start(context.Background()))
}
