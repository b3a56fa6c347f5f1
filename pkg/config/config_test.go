package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"IPEDS_SOURCES", "IPEDS_DATA_DIR", "IPEDS_BASE_SOURCE", "IPEDS_VINTAGE",
		"OUTPUT_PATH", "SENTINEL_TOKENS", "PUBLISH_ENABLED", "HTTP_TIMEOUT_SECONDS",
		"SNOWFLAKE_USER", "SNOWFLAKE_ACCOUNT", "SNOWFLAKE_WAREHOUSE", "SNOWFLAKE_PASSWORD",
		"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Len(t, cfg.Sources, 8)
	assert.Equal(t, "hd", cfg.BaseSource)
	assert.Equal(t, filepath.Join("data", "hd2022.csv"), cfg.Source("hd").Location)
	assert.Equal(t, "colleges_final.json", cfg.OutputPath)
	assert.Equal(t, []string{"."}, cfg.SentinelTokens)
	assert.Equal(t, 120*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.PublishEnabled)
	assert.Nil(t, cfg.Snowflake)
	assert.Nil(t, cfg.Postgres)
}

func TestLoadConfigSources(t *testing.T) {
	clearEnv(t)
	t.Setenv("IPEDS_SOURCES", "hd=/tmp/hd.csv, adm = https://example.org/adm.csv,ef=snowflake://IPEDS.EF2022A")
	t.Setenv("SENTINEL_TOKENS", ".,PrivacySuppressed")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, SourceSpec{Name: "adm", Location: "https://example.org/adm.csv"}, cfg.Sources[1])
	assert.Equal(t, "snowflake://IPEDS.EF2022A", cfg.Source("ef").Location)
	assert.Nil(t, cfg.Source("sfa"))
	assert.Equal(t, []string{".", "PrivacySuppressed"}, cfg.SentinelTokens)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("malformed source", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("IPEDS_SOURCES", "hd")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("duplicate source", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("IPEDS_SOURCES", "hd=a.csv,hd=b.csv")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("base source not configured", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("IPEDS_SOURCES", "adm=a.csv")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "base source")
	})

	t.Run("publishing without postgres", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PUBLISH_ENABLED", "true")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("partial snowflake configuration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SNOWFLAKE_ACCOUNT", "xy12345")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestLoadConfigPublishing(t *testing.T) {
	clearEnv(t)
	t.Setenv("PUBLISH_ENABLED", "1")
	t.Setenv("POSTGRES_USER", "ipeds")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "colleges")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.Postgres)
	assert.Equal(t, "colleges", cfg.Postgres.CollectionTable)
	assert.Equal(t, "ipeds_sync", cfg.Postgres.SyncTable)
	assert.Contains(t, cfg.Postgres.ConnectionString(), "dbname=colleges")

	off := cfg.WithPublish(false)
	assert.False(t, off.PublishEnabled)
	assert.True(t, cfg.PublishEnabled)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("OUTPUT_PATH", "")

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env"), false))
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env"), true))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("IPEDS_VINTAGE=2022\nSTATIC_SOURCE=custom\n"), 0o600))
	t.Setenv("STATIC_SOURCE", "")
	t.Setenv("IPEDS_VINTAGE", "")
	require.NoError(t, os.Unsetenv("STATIC_SOURCE"))
	require.NoError(t, LoadEnvFile(path, true))
	assert.Equal(t, "custom", os.Getenv("STATIC_SOURCE"))
}

func TestSplitCommaDelimited(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d,e"}, splitCommaDelimited(` a , b c ,"d,e"`))
	assert.Equal(t, []string{}, splitCommaDelimited(""))
}
