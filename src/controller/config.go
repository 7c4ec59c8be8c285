package controller

import "time"

// Config tunes the controller. Zero values take the defaults below.
type Config struct {
	// Workers bounds concurrent adapter calls across all investigations.
	Workers     int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the +/- fraction applied to each backoff delay; zero disables it.
	Jitter float64
	// GracePeriod is how long an adapter may ignore its cancelled context
	// before the attempt is abandoned.
	GracePeriod time.Duration
	// TaskTimeouts overrides the adapter's declared max duration by name.
	TaskTimeouts map[string]time.Duration
	// DefaultTaskTimeout applies when neither an override nor a declared
	// duration exists.
	DefaultTaskTimeout time.Duration
}

const (
	defaultWorkers     = 8
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultGrace       = 5 * time.Second
	defaultTaskTimeout = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.Jitter > 1 {
		c.Jitter = 1
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGrace
	}
	if c.DefaultTaskTimeout <= 0 {
		c.DefaultTaskTimeout = defaultTaskTimeout
	}
	return c
}

func (c Config) taskTimeout(adapter string, declared time.Duration) time.Duration {
	if d, ok := c.TaskTimeouts[adapter]; ok && d > 0 {
		return d
	}
	if declared > 0 {
		return declared
	}
	return c.DefaultTaskTimeout
}
