package leaderboard

import (
	"github.com/vimeo/go-clocks"

	"github.com/okian/pitwall/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock sets the clock used to stamp new laps and time computations.
func WithClock(c clocks.Clock) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithIDGenerator overrides how lap record ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(a *Aggregator) {
		if gen != nil {
			a.newID = gen
		}
	}
}

// WithRecentLaps sets the default and maximum size of a driver summary's
// recent list.
func WithRecentLaps(def, limit int) Option {
	return func(a *Aggregator) {
		if limit > 0 {
			a.recentMax = limit
		}
		if def >= 0 {
			a.recent = def
		}
	}
}
