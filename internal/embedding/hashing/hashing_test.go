package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionFixedAtConstruction(t *testing.T) {
	e := NewEmbedder(128)
	assert.Equal(t, 128, e.Dimension())

	vec, err := e.Embed("solar panels convert sunlight")
	require.NoError(t, err)
	assert.Len(t, vec, 128)

	// Default kicks in for nonsense dimensions.
	assert.Equal(t, defaultDimension, NewEmbedder(0).Dimension())
	assert.Equal(t, defaultDimension, NewEmbedder(-3).Dimension())
}

func TestEmbedDeterministic(t *testing.T) {
	e := NewEmbedder(64)
	a, err := e.Embed("wind turbines generate electricity")
	require.NoError(t, err)
	b, err := e.Embed("wind turbines generate electricity")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbedBatchMatchesSingle(t *testing.T) {
	e := NewEmbedder(64)
	texts := []string{
		"renewable energy reduces emissions",
		"hydropower dams store potential energy",
		"geothermal plants tap underground heat",
	}
	batch, err := e.EmbedBatch(texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))
	for i, text := range texts {
		single, err := e.Embed(text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "batch[%d] should equal Embed(texts[%d])", i, i)
	}
}

func TestNewlineNormalization(t *testing.T) {
	e := NewEmbedder(64)
	a, err := e.Embed("solar power\nstorage systems")
	require.NoError(t, err)
	b, err := e.Embed("solar power storage systems")
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestEmbedNoTokensYieldsZeroVector(t *testing.T) {
	e := NewEmbedder(32)
	vec, err := e.Embed("!!! 123 ...")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestEmbedUnitNorm(t *testing.T) {
	e := NewEmbedder(64)
	vec, err := e.Embed("tidal generators exploit ocean currents")
	require.NoError(t, err)
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}
