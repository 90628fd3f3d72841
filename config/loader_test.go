package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "salesagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().WithEnvPrefix("SALESAGENT_TEST_DEFAULTS").Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Engine.MaxRebuttalAttempts)
	assert.Equal(t, 5, cfg.Engine.MaxSpinQuestionsPerCycle)
	assert.Equal(t, 3, cfg.Engine.MaxFollowUpAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Engine.FollowUpDelay)
	assert.Equal(t, 3, cfg.RAG.ChunkLimit)
	assert.InDelta(t, 0.7, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoader_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_rebuttal_attempts: 3
  follow_up_delay: 10m
rag:
  chunk_limit: 5
offerings:
  - name: CRM Pro
    description: Sales pipeline management
    keywords: [pipeline, leads]
    price: 99.9
`)
	t.Setenv("SALESAGENT_ENGINE_MAX_REBUTTAL_ATTEMPTS", "4")
	t.Setenv("SALESAGENT_REDIS_ADDR", "localhost:6379")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.MaxRebuttalAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Engine.FollowUpDelay)
	assert.Equal(t, 5, cfg.RAG.ChunkLimit)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Len(t, cfg.Offerings, 1)
	assert.Equal(t, "CRM Pro", cfg.Offerings[0].Name)
	assert.Equal(t, []string{"pipeline", "leads"}, cfg.Offerings[0].Keywords)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.MaxRebuttalAttempts)
}

func TestLoader_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_rebuttal_attempts: 0
rag:
  similarity_threshold: 1.5
offerings:
  - description: nameless
`)
	_, err := NewLoader().WithConfigPath(path).Load()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "max_rebuttal_attempts")
	assert.ErrorContains(t, err, "similarity_threshold")
	assert.ErrorContains(t, err, "offerings[0].name")
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("SALESAGENT_ENGINE_FOLLOW_UP_DELAY", "soon")
	_, err := NewLoader().Load()
	assert.ErrorContains(t, err, "SALESAGENT_ENGINE_FOLLOW_UP_DELAY")
}
