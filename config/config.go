// Package config defines the sync engine's own configuration struct,
// shaped the way dendrite's per-component configs are: a YAML-tagged
// struct with Defaults()/Verify() methods, loaded by a host process
// this library does not itself own.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// SyncEngine holds the tunables the engine's components read.
type SyncEngine struct {
	// DefaultTimelineLimit is used when a sync request's filter does
	// not specify one.
	DefaultTimelineLimit int `yaml:"default_timeline_limit"`
	// MaxTimelineLimit caps a client-requested timeline limit.
	MaxTimelineLimit int `yaml:"max_timeline_limit"`
	// LazyLoadMembersDefault is used when a filter omits lazy_load_members.
	LazyLoadMembersDefault bool `yaml:"lazy_load_members_default"`
	// ResponseCacheTTL is how long a resolved sync response is kept
	// around to serve duplicate in-flight requests.
	ResponseCacheTTL time.Duration `yaml:"response_cache_ttl"`
	// FanOutWidth bounds concurrent per-room materialization. The
	// paginator's per-room timestamp fetches run one at a time and do
	// not use it.
	FanOutWidth int64 `yaml:"fan_out_width"`
	// LongPollDefaultTimeout is used when a sync request omits timeout.
	LongPollDefaultTimeout time.Duration `yaml:"long_poll_default_timeout"`
	// LongPollMaxTimeout caps a client-requested long-poll timeout.
	LongPollMaxTimeout time.Duration `yaml:"long_poll_max_timeout"`
	// DefaultPaginationLimit is the base number of rooms a lazy-loading
	// page carries; a request's extras.paginate.limit is added on top.
	DefaultPaginationLimit int `yaml:"default_pagination_limit"`
}

// Defaults fills in the engine's out-of-the-box tunables.
func (c *SyncEngine) Defaults() {
	c.DefaultTimelineLimit = 20
	c.MaxTimelineLimit = 1000
	c.LazyLoadMembersDefault = false
	c.ResponseCacheTTL = 2 * time.Minute
	c.FanOutWidth = 10
	c.LongPollDefaultTimeout = 0
	c.LongPollMaxTimeout = 60 * time.Second
	c.DefaultPaginationLimit = 100
}

// Load reads a YAML config file into a SyncEngine, starting from its
// defaults so a partial file only overrides the fields it sets.
func Load(path string) (*SyncEngine, error) {
	c := &SyncEngine{}
	c.Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return c, nil
}

// Verify reports configuration errors rather than panicking, matching
// the teacher's non-fatal config-validation convention.
func (c *SyncEngine) Verify() []error {
	var errs []error
	if c.DefaultTimelineLimit <= 0 {
		errs = append(errs, fmt.Errorf("config: default_timeline_limit must be positive"))
	}
	if c.MaxTimelineLimit < c.DefaultTimelineLimit {
		errs = append(errs, fmt.Errorf("config: max_timeline_limit must be >= default_timeline_limit"))
	}
	if c.FanOutWidth <= 0 {
		errs = append(errs, fmt.Errorf("config: fan_out_width must be positive"))
	}
	if c.LongPollMaxTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: long_poll_max_timeout must be positive"))
	}
	return errs
}
