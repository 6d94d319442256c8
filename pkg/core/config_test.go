package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/memlayer-go/pkg/core"
)

func TestValidateAcceptsKnownProviders(t *testing.T) {
	cfg := &core.Config{
		Storage:   core.StorageConfig{Provider: "sqlite", DBPath: "./test.db"},
		Embedding: core.EmbeddingConfig{Provider: "mock"},
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownStorageProvider(t *testing.T) {
	cfg := &core.Config{
		Storage:   core.StorageConfig{Provider: "mongodb"},
		Embedding: core.EmbeddingConfig{Provider: "mock"},
	}
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidConfig)
}

func TestValidateRejectsUnknownEmbeddingProvider(t *testing.T) {
	cfg := &core.Config{
		Storage:   core.StorageConfig{Provider: "sqlite"},
		Embedding: core.EmbeddingConfig{Provider: "word2vec"},
	}
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidConfig)
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_PROVIDER", "")
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("EMBEDDING_DIMS", "")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Provider)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
}

func TestLoadConfigFromEnvPostgres(t *testing.T) {
	t.Setenv("DATABASE_PROVIDER", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_USER", "svc")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DATABASE", "memories")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Provider)
	assert.Equal(t, "db.internal", cfg.Storage.Host)
	assert.Equal(t, 5433, cfg.Storage.Port)
	assert.Equal(t, "svc", cfg.Storage.User)
	assert.Equal(t, "secret", cfg.Storage.Password)
	assert.Equal(t, "memories", cfg.Storage.DBName)
	assert.Equal(t, "disable", cfg.Storage.SSLMode)
}

func TestLoadConfigFromEnvScoringAndRetrieval(t *testing.T) {
	t.Setenv("MEMORY_RECENCY_WEIGHT", "0.5")
	t.Setenv("MEMORY_ROLE_WEIGHT", "0.25")
	t.Setenv("MEMORY_EXPLICIT_WEIGHT", "0.25")
	t.Setenv("RETRIEVAL_TOP_K", "20")
	t.Setenv("RETRIEVAL_HALF_LIFE_HOURS", "12")
	t.Setenv("CACHE_ENABLED", "true")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Scoring.RecencyWeight)
	assert.Equal(t, 0.25, cfg.Scoring.RoleWeight)
	assert.Equal(t, 0.25, cfg.Scoring.ExplicitWeight)
	assert.Equal(t, 20, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, 12.0, cfg.Retrieval.HalfLifeHours)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{
		"storage": {"provider": "sqlite", "db_path": "./mem.db"},
		"embedding": {"provider": "mock", "dimensions": 64},
		"retrieval": {"default_top_k": 5}
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))

	cfg, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Provider)
	assert.Equal(t, "./mem.db", cfg.Storage.DBPath)
	assert.Equal(t, 64, cfg.Embedding.Dimensions)
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromJSONMissingFile(t *testing.T) {
	_, err := core.LoadConfigFromJSON("/nonexistent/config.json")
	assert.Error(t, err)
}
