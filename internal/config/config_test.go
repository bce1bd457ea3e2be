package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "events.json", cfg.Corpus.Path)
	assert.Equal(t, "load", cfg.Corpus.StateRefresh)
	assert.Equal(t, "openai", cfg.Embedder.Type)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "memory", cfg.Index.Type)
	require.NotNil(t, cfg.Index.Cache)
	assert.Equal(t, "jsonfile", cfg.Index.Cache.Type)
	assert.Equal(t, 5, cfg.Retriever.TopK)
	assert.Equal(t, 0.2, cfg.Retriever.MinScore)
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
corpus:
  path: my-events.json
embedder:
  type: openai
  openai:
    model: custom-model
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my-events.json", cfg.Corpus.Path)
	assert.Equal(t, "custom-model", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, 64, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, 5, cfg.Retriever.TopK)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corpus: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Corpus.Path = "festival.json"
	cfg.Corpus.Watch = true
	cfg.Retriever.MinScore = 0.4

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoad_TermfreqEmbedderNeedsNoOpenAIDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  type: termfreq\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "termfreq", cfg.Embedder.Type)
	assert.Nil(t, cfg.Embedder.OpenAI)
}
