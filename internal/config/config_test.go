package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/vault")

	assert.Equal(t, filepath.Join("/tmp/vault", "sessions.db"), cfg.Relational.Path)
	assert.Equal(t, filepath.Join("/tmp/vault", "contexts"), cfg.Document.Dir)
	assert.Equal(t, filepath.Join("/tmp/vault", "vectors"), cfg.Vector.Dir)
	assert.Equal(t, filepath.Join("/tmp/vault", "logs"), cfg.Logging.Dir)

	assert.Equal(t, 4, cfg.Relational.Workers)
	assert.Equal(t, 2, cfg.Document.Workers)
	assert.Equal(t, 1, cfg.Vector.Workers)
	assert.Equal(t, "memory", cfg.Vector.Index)
	assert.Equal(t, 256, cfg.Vector.Dimensions)
	assert.Equal(t, 10000, cfg.Vector.MaxVectors)
	assert.Equal(t, "deterministic", cfg.Embedding.Provider)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ".agentvault", cfg.DataDir)
	assert.Equal(t, "memory", cfg.Vector.Index)
}

func TestLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	in := DefaultConfig("/data/vault")
	in.Vector.Index = "sqlite-vec"
	in.Vector.Dimensions = 768
	in.Embedding.Provider = "ollama"
	in.Logging.DebugMode = true
	require.NoError(t, Save(in, path))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite-vec", out.Vector.Index)
	assert.Equal(t, 768, out.Vector.Dimensions)
	assert.Equal(t, "ollama", out.Embedding.Provider)
	assert.True(t, out.Logging.DebugMode)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relational: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())

	cfg.Vector.Index = "faiss"
	assert.Error(t, cfg.Validate())
	cfg.Vector.Index = "memory"

	cfg.Embedding.Provider = "openai"
	assert.Error(t, cfg.Validate())
	cfg.Embedding.Provider = "genai"
	cfg.Embedding.GenAIAPIKey = ""
	assert.Error(t, cfg.Validate())
	cfg.Embedding.GenAIAPIKey = "key"
	assert.NoError(t, cfg.Validate())
}
