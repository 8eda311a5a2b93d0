package comp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportComp_CopiesRegionInterval(t *testing.T) {
	engine, track, takes := newTestEngine(t, 1, 4.0)

	_, err := engine.CreateCompRegion(track.ID, takes[0].ID, 1.0, 2.0)
	require.NoError(t, err)

	out, err := engine.ExportComp(track.ID)
	require.NoError(t, err)
	require.Equal(t, 400, len(out.Samples), "output covers the full take extent")

	// Samples inside the region carry the take's signal, outside stay 0.
	assert.Equal(t, 0.0, out.Samples[50])
	assert.Equal(t, 0.5, out.Samples[150])
	assert.Equal(t, 0.0, out.Samples[250])
}

func TestExportComp_AdditiveMixCanExceedUnit(t *testing.T) {
	engine, track, _ := newTestEngine(t, 0, 0)

	a := addPlacedTake(t, engine, track.ID, 0, 2.0)
	b := addPlacedTake(t, engine, track.ID, 0, 2.0)
	for i := range a.Buffer.Samples {
		a.Buffer.Samples[i] = 0.8
	}
	for i := range b.Buffer.Samples {
		b.Buffer.Samples[i] = 0.8
	}

	_, err := engine.CreateCompRegion(track.ID, a.ID, 0, 2.0)
	require.NoError(t, err)
	_, err = engine.CreateCompRegion(track.ID, b.ID, 0, 2.0)
	require.NoError(t, err)

	out, err := engine.ExportComp(track.ID)
	require.NoError(t, err)

	// Additive combination with no normalization: overlap sums.
	assert.InDelta(t, 1.6, out.Samples[100], 1e-12)
	assert.Greater(t, out.Samples[100], 1.0, "overlaps may exceed unit amplitude")
}

func TestExportComp_AppliesFadesAndGain(t *testing.T) {
	engine, track, takes := newTestEngine(t, 1, 2.0)

	region, err := engine.CreateCompRegion(track.ID, takes[0].ID, 0, 2.0)
	require.NoError(t, err)
	require.NoError(t, engine.SetRegionFades(region.ID, 1.0, 0.5))
	require.NoError(t, engine.SetRegionGain(region.ID, 0.5))

	out, err := engine.ExportComp(track.ID)
	require.NoError(t, err)

	// 100 samples of fade-in: sample i ramps linearly at i/100.
	assert.Equal(t, 0.0, out.Samples[0])
	assert.InDelta(t, 0.5*0.5*(50.0/100.0), out.Samples[50], 1e-12)
	// Plateau between the fades: gain only.
	assert.InDelta(t, 0.5*0.5, out.Samples[120], 1e-12)
	// Fade-out covers the last 50 samples: sample 175 is halfway down.
	assert.InDelta(t, 0.5*0.5*(25.0/50.0), out.Samples[175], 1e-12)
}

func TestExportComp_NeverMutatesTakeBuffers(t *testing.T) {
	engine, track, takes := newTestEngine(t, 1, 2.0)

	region, err := engine.CreateCompRegion(track.ID, takes[0].ID, 0, 2.0)
	require.NoError(t, err)
	require.NoError(t, engine.SetRegionGain(region.ID, 0.25))

	before := append([]float64(nil), takes[0].Buffer.Samples...)
	_, err = engine.ExportComp(track.ID)
	require.NoError(t, err)

	assert.Equal(t, before, takes[0].Buffer.Samples, "export reads takes, never writes them")
}

func TestExportComp_SkipsMutedTakes(t *testing.T) {
	engine, track, takes := newTestEngine(t, 1, 2.0)

	_, err := engine.CreateCompRegion(track.ID, takes[0].ID, 0, 2.0)
	require.NoError(t, err)
	require.NoError(t, engine.SetMuted(takes[0].ID, true))

	out, err := engine.ExportComp(track.ID)
	require.NoError(t, err)
	for _, s := range out.Samples {
		require.Equal(t, 0.0, s)
	}
}

func TestExportComp_RespectsTakeOffset(t *testing.T) {
	engine, track, _ := newTestEngine(t, 0, 0)

	take := addPlacedTake(t, engine, track.ID, 1.0, 2.0)
	_, err := engine.CreateCompRegion(track.ID, take.ID, 0, 2.0)
	require.NoError(t, err)

	out, err := engine.ExportComp(track.ID)
	require.NoError(t, err)
	require.Equal(t, 300, len(out.Samples), "extent runs to offset + duration")

	assert.Equal(t, 0.0, out.Samples[50], "before the placement")
	assert.Equal(t, 0.5, out.Samples[150], "inside the placement")
}
