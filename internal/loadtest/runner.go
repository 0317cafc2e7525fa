// Package loadtest drives a running pitwall service over HTTP with
// concurrent laps and roster churn, then verifies what it reads back.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/pitwall/pkg/logger"
)

// Configuration errors.
var (
	ErrInvalidConfig = errors.New("invalid load test config")
)

// validate rejects configurations the run cannot use.
func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Laps < 0 || c.Entries < 0 || c.Reorders < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidConfig)
	case c.Laps > 0 && c.Drivers < 1:
		return fmt.Errorf("%w: drivers must be positive when laps are recorded", ErrInvalidConfig)
	}
	return nil
}

// Run executes the complete load run with a random seed.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	now := uint64(time.Now().UnixNano())
	return RunSeeded(ctx, cfg, now)
}

// RunSeeded executes the complete load run with a fixed seed so the generated
// laps and reorders can be reproduced.
func RunSeeded(ctx context.Context, cfg *Config, seed uint64) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	logger.Get().Info(ctx, "starting pitwall load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("laps", cfg.Laps),
		logger.Int("drivers", cfg.Drivers),
		logger.Int("entries", cfg.Entries),
		logger.Int("reorders", cfg.Reorders),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Record laps and verify the leaderboard
	if cfg.Laps > 0 {
		scope, laps := generateLaps(cfg, rng)
		accepted := submitLaps(ctx, cfg, client, laps, stats)
		if err := verifyLeaderboard(ctx, client, scope, accepted, stats); err != nil {
			return stats, fmt.Errorf("leaderboard verification failed: %w", err)
		}
	}

	// Step 3: Churn a roster and verify its positions
	if cfg.Entries > 0 {
		id, err := churnRoster(ctx, cfg, client, rng, stats)
		if err != nil {
			return stats, err
		}
		if err := verifyRoster(ctx, client, id, stats); err != nil {
			return stats, fmt.Errorf("roster verification failed: %w", err)
		}
	}

	stats.Retries = int(client.retries.Load())
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	logger.Get().Info(ctx, "load run completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	if err := client.do(ctx, "GET", "/healthz", nil, nil, StatusOK); err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var lapsPerSecond float64
	if stats.Duration > 0 {
		lapsPerSecond = float64(stats.LapsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("lapsSubmitted", stats.LapsSubmitted),
		logger.Int("lapsFailed", stats.LapsFailed),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Int("entriesAppended", stats.EntriesAppended),
		logger.Int("entriesFailed", stats.EntriesFailed),
		logger.Int("reordersApplied", stats.ReordersApplied),
		logger.Int("reordersFailed", stats.ReordersFailed),
		logger.Int("retries", stats.Retries),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("lapsPerSecond", lapsPerSecond))
}
