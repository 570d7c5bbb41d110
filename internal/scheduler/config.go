package scheduler

import (
	"time"

	"github.com/smallbiznis/nftcheckout/internal/config"
)

const (
	JobDeliverPending = "deliver_pending"
	JobRecoverStale   = "recover_stale"
	JobExpireIntents  = "expire_intents"
	JobBacklog        = "delivery_backlog"
)

// Config controls which jobs run and how long each may hold the lease.
// Intervals and batch sizes come from the reloadable delivery policy.
type Config struct {
	EnabledJobs []string
	JobTimeout  time.Duration
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		JobTimeout: 30 * time.Second,
		LockTTL:    45 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.EnabledJobs = cfg.Scheduler.Jobs
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = c.JobTimeout
	}
	return c
}
