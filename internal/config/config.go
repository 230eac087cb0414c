package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// SyncScopeFull runs a baseline resynchronization before tailing the logs.
	SyncScopeFull = "full"
	// SyncScopeIncremental tails the shard logs from their recorded bounds.
	SyncScopeIncremental = "incremental"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".radosgw-agent", "config.yaml")
	DefaultLogPath    = filepath.Join(home, ".radosgw-agent", "agent.log")

	// DefaultDaemonID is the single writer identity used for all replica log
	// bound updates. The replica log supports one writer slot, so every agent
	// instance shares this identity; coordinating concurrent agents is the
	// operator's job, not ours.
	DefaultDaemonID = "radosgw-agent"
)

var (
	ErrNoSourceURL = errors.New("config: source endpoint missing")
	ErrNoDestURL   = errors.New("config: destination endpoint missing")
)

// Site holds the connection settings for one gateway site.
type Site struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Zone      string `mapstructure:"zone"`
}

func (s *Site) validate(which string) error {
	if s.Endpoint == "" {
		if which == "source" {
			return ErrNoSourceURL
		}
		return ErrNoDestURL
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid %s endpoint %q", which, s.Endpoint)
	}
	if s.AccessKey == "" || s.SecretKey == "" {
		return fmt.Errorf("config: missing credentials for %s endpoint", which)
	}
	return nil
}

// Config is the full agent configuration, merged from the config file,
// RADOSGW_AGENT_* environment variables and command line flags.
type Config struct {
	Source Site   `mapstructure:"source"`
	Dest   Site   `mapstructure:"destination"`
	Region string `mapstructure:"region"`

	NumWorkers           int           `mapstructure:"num_workers"`
	LockDuration         time.Duration `mapstructure:"lock_duration"`
	MaxEntries           int           `mapstructure:"max_entries"`
	ObjectSyncTimeout    time.Duration `mapstructure:"object_sync_timeout"`
	SettleWindow         time.Duration `mapstructure:"settle_window"`
	DaemonID             string        `mapstructure:"daemon_id"`
	MetadataOnly         bool          `mapstructure:"metadata_only"`
	SyncScope            string        `mapstructure:"sync_scope"`
	IncrementalSyncDelay time.Duration `mapstructure:"incremental_sync_delay"`
	SyncFilters          []string      `mapstructure:"sync_filters"`

	StatusAddr string `mapstructure:"status_addr"`
	LockFile   string `mapstructure:"lock_file"`
	LogFile    string `mapstructure:"log_file"`
	Once       bool   `mapstructure:"once"`
}

// Default returns a config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Region:               "default",
		NumWorkers:           1,
		LockDuration:         60 * time.Second,
		MaxEntries:           1000,
		ObjectSyncTimeout:    60 * time.Second,
		SettleWindow:         30 * time.Second,
		DaemonID:             DefaultDaemonID,
		SyncScope:            SyncScopeIncremental,
		IncrementalSyncDelay: 30 * time.Second,
		StatusAddr:           "127.0.0.1:8143",
		LogFile:              DefaultLogPath,
	}
}

func (c *Config) Validate() error {
	if err := c.Source.validate("source"); err != nil {
		return err
	}
	if err := c.Dest.validate("destination"); err != nil {
		return err
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("config: num_workers must be >= 1, got %d", c.NumWorkers)
	}
	if c.MaxEntries < 1 {
		return fmt.Errorf("config: max_entries must be >= 1, got %d", c.MaxEntries)
	}
	if c.SyncScope != SyncScopeFull && c.SyncScope != SyncScopeIncremental {
		return fmt.Errorf("config: sync_scope must be %q or %q, got %q", SyncScopeFull, SyncScopeIncremental, c.SyncScope)
	}
	if c.DaemonID == "" {
		return errors.New("config: daemon_id must not be empty")
	}
	if !c.MetadataOnly && c.Source.Zone == "" {
		return errors.New("config: source zone required for data sync")
	}
	for _, pattern := range c.SyncFilters {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("config: invalid sync filter pattern %q", pattern)
		}
	}
	return nil
}
