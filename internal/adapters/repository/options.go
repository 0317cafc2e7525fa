package repository

import (
	"github.com/vimeo/go-clocks"

	"github.com/okian/pitwall/pkg/logger"
)

// FaultInjector is consulted at named points inside MemStore operations
// ("mutate.begin", "tx.insert", "tx.delete", "tx.set_positions",
// "mutate.commit"). A non-nil return aborts the operation with that error.
type FaultInjector func(point string) error

// MemOption applies a configuration option to the MemStore.
type MemOption func(*MemStore)

// WithFaultInjector installs a hook that can fail MemStore operations.
func WithFaultInjector(f FaultInjector) MemOption {
	return func(s *MemStore) {
		s.faults = f
	}
}

// WithMemClock sets the clock used to time MemStore operations.
func WithMemClock(c clocks.Clock) MemOption {
	return func(s *MemStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// SQLOption applies a configuration option to the SQLStore.
type SQLOption func(*SQLStore)

// WithLogger sets a custom logger for the SQLStore.
func WithLogger(l logger.Logger) SQLOption {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSQLClock sets the clock used to time SQLStore operations.
func WithSQLClock(c clocks.Clock) SQLOption {
	return func(s *SQLStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMigrate controls whether NewSQLStore creates the schema.
func WithMigrate(enabled bool) SQLOption {
	return func(s *SQLStore) {
		s.migrate = enabled
	}
}
