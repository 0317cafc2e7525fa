package ordering

import (
	"time"

	"github.com/vimeo/go-clocks"

	"github.com/okian/pitwall/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithLogger sets a custom logger for the manager.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock sets the clock used for timestamps and retry waits.
func WithClock(c clocks.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithRetryBackoff sets the minimum wait before a reorder is retried after a
// transient store failure. Zero retries immediately.
func WithRetryBackoff(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.retryBackoff = d
		}
	}
}

// WithMaxReorderEntries caps how many ids a single reorder may carry.
func WithMaxReorderEntries(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxReorder = n
		}
	}
}

// WithIDGenerator overrides how new entry ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}
