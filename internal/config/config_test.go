package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 5, cfg.Query.TopK)
	assert.InDelta(t, 0.5, cfg.Query.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.5, cfg.Query.SemanticWeight, 1e-9)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := defaultConfig()
	cfg.Query.TopK = 7
	cfg.Embedder.Type = "openai"
	cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{Model: "text-embedding-3-small", Dimension: 1536}

	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Query.TopK)
	assert.Equal(t, "openai", got.Embedder.Type)
	require.NotNil(t, got.Embedder.OpenAI)
	assert.Equal(t, 1536, got.Embedder.OpenAI.Dimension)
	// defaults fill in the unset openai fields
	assert.Equal(t, "https://api.openai.com/v1", got.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", got.Embedder.OpenAI.APIKeyEnv)
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  chunk_size: 500\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 0, cfg.Chunker.ChunkOverlap, "explicit chunk size keeps overlap as written")
	assert.Equal(t, "pdf_extracts.db", cfg.Metadata.DBPath)
	assert.Equal(t, "memory", cfg.Tasks.Type)
	assert.Equal(t, 3600, cfg.Tasks.TTLSecs)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
