package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Source = Site{Endpoint: "http://rgw-us-east.test:8000", AccessKey: "ak", SecretKey: "sk", Zone: "us-east"}
	cfg.Dest = Site{Endpoint: "http://rgw-us-west.test:8000", AccessKey: "ak", SecretKey: "sk"}
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("missing source", func(t *testing.T) {
		cfg := validConfig()
		cfg.Source.Endpoint = ""
		assert.ErrorIs(t, cfg.Validate(), ErrNoSourceURL)
	})

	t.Run("missing destination", func(t *testing.T) {
		cfg := validConfig()
		cfg.Dest.Endpoint = ""
		assert.ErrorIs(t, cfg.Validate(), ErrNoDestURL)
	})

	t.Run("bad endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Source.Endpoint = "not a url"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Dest.SecretKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad worker count", func(t *testing.T) {
		cfg := validConfig()
		cfg.NumWorkers = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad sync scope", func(t *testing.T) {
		cfg := validConfig()
		cfg.SyncScope = "partial"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad filter pattern", func(t *testing.T) {
		cfg := validConfig()
		cfg.SyncFilters = []string{"logs-["}
		assert.Error(t, cfg.Validate())
	})

	t.Run("valid filter patterns", func(t *testing.T) {
		cfg := validConfig()
		cfg.SyncFilters = []string{"logs-*", "backup/**"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing source zone", func(t *testing.T) {
		cfg := validConfig()
		cfg.Source.Zone = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("metadata only needs no zone", func(t *testing.T) {
		cfg := validConfig()
		cfg.Source.Zone = ""
		cfg.MetadataOnly = true
		assert.NoError(t, cfg.Validate())
	})
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "radosgw-agent", cfg.DaemonID)
	assert.Equal(t, 1, cfg.NumWorkers)
	assert.Equal(t, 1000, cfg.MaxEntries)
	assert.Equal(t, SyncScopeIncremental, cfg.SyncScope)
}
