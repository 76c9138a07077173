package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearRagcoreEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for _, k := range []string{
			"DB_URL", "BUS_URL", "BUS_BACKEND", "REDIS_URL", "S3_ENDPOINT", "S3_BUCKET",
			"S3_KEY", "S3_SECRET", "EMBED_PROVIDER", "EMBED_DIM", "REMOTE_EMBED_URL",
			"LLM_PROVIDER", "VECTOR_BACKEND", "QDRANT_URL", "AUTH_SECRET", "REQUIRE_AUTH",
		} {
			if len(kv) >= len(k) && kv[:len(k)] == k {
				os.Unsetenv(k)
			}
		}
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearRagcoreEnv(t)
	os.Setenv("AUTH_SECRET", "test-secret")
	defer os.Unsetenv("AUTH_SECRET")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "local", cfg.Embedding.Provider)
	require.Equal(t, 384, cfg.Embedding.Dimension)
	require.Equal(t, "pgvector", cfg.Vector.Backend)
	require.Equal(t, "redis", cfg.Bus.Backend)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.True(t, cfg.Auth.RequireAuth)
}

func TestLoadRequiresAuthSecretWhenAuthRequired(t *testing.T) {
	clearRagcoreEnv(t)
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsQdrantBackendWithoutURL(t *testing.T) {
	clearRagcoreEnv(t)
	os.Setenv("AUTH_SECRET", "test-secret")
	os.Setenv("VECTOR_BACKEND", "qdrant")
	defer os.Unsetenv("AUTH_SECRET")
	defer os.Unsetenv("VECTOR_BACKEND")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownLLMProvider(t *testing.T) {
	clearRagcoreEnv(t)
	os.Setenv("AUTH_SECRET", "test-secret")
	os.Setenv("LLM_PROVIDER", "mistral")
	defer os.Unsetenv("AUTH_SECRET")
	defer os.Unsetenv("LLM_PROVIDER")

	_, err := Load()
	require.Error(t, err)
}

func TestGetEnvDurationAcceptsBareMillisecondsAndDurationStrings(t *testing.T) {
	os.Setenv("X_TEST_DUR_MS", "1500")
	defer os.Unsetenv("X_TEST_DUR_MS")
	require.Equal(t, int64(1500000000), getEnvDuration("X_TEST_DUR_MS", 0).Nanoseconds())

	os.Setenv("X_TEST_DUR_STR", "2s")
	defer os.Unsetenv("X_TEST_DUR_STR")
	require.Equal(t, int64(2000000000), getEnvDuration("X_TEST_DUR_STR", 0).Nanoseconds())
}
