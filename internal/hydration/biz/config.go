package biz

import (
	"time"
)

const (
	// DefaultHistoryLimit is used when the caller does not ask for a limit.
	DefaultHistoryLimit = 100
	// MaxHistoryLimit is the backend API ceiling for one history fetch.
	MaxHistoryLimit = 1000
	// DefaultTimeout bounds a single backend client, live stream included.
	DefaultTimeout     = 30 * time.Minute
	DefaultJoinRetries = 2
	DefaultJoinBackoff = 500 * time.Millisecond
)

// DefaultStreamModes are requested when joining a live run.
var DefaultStreamModes = []string{"events", "values", "updates", "custom"}

// StateExtractor maps the caller-supplied connect input to extra state that
// is merged over the latest checkpoint values.
type StateExtractor func(input map[string]any) map[string]any

// Config is the request-scoped hydration configuration. It is passed by
// value and never mutated after a connection starts.
type Config struct {
	Endpoint       string
	GraphID        string
	APIKey         string
	HistoryLimit   int
	Timeout        time.Duration
	Debug          bool
	JoinRetries    int
	JoinBackoff    time.Duration
	StreamModes    []string
	StateExtractor StateExtractor
}

// WithDefaults returns a copy of c with zero values replaced by defaults and
// the history limit clamped to the API ceiling.
func (c Config) WithDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.HistoryLimit > MaxHistoryLimit {
		c.HistoryLimit = MaxHistoryLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.JoinRetries < 0 {
		c.JoinRetries = 0
	}
	if c.JoinBackoff <= 0 {
		c.JoinBackoff = DefaultJoinBackoff
	}
	modes := c.StreamModes
	if len(modes) == 0 {
		modes = DefaultStreamModes
	}
	c.StreamModes = append([]string(nil), modes...)
	return c
}
