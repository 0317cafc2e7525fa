package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

// lapRequest mirrors the OpenAPI schema for POST /laps.
type lapRequest struct {
	DriverID  string `json:"driver_id"`
	CarID     string `json:"car_id"`
	TrackID   string `json:"track_id"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// generateLaps spreads cfg.Laps laps over cfg.Drivers drivers in one fresh
// scope so earlier runs never leak into the verification.
func generateLaps(cfg *Config, rng *rand.Rand) (model.Scope, []lapRequest) {
	scope := model.Scope{CarID: "load-car-" + uuid.NewString()[:8], TrackID: "load-track"}
	drivers := make([]string, cfg.Drivers)
	for i := range drivers {
		drivers[i] = fmt.Sprintf("driver-%03d", i)
	}

	laps := make([]lapRequest, cfg.Laps)
	for i := range laps {
		laps[i] = lapRequest{
			DriverID:  drivers[rng.IntN(len(drivers))],
			CarID:     scope.CarID,
			TrackID:   scope.TrackID,
			ElapsedMS: lapBaseMS + rng.Int64N(lapSpreadMS),
		}
	}
	return scope, laps
}

// submitLaps posts laps concurrently using a worker pool and returns the ones
// the service accepted.
func submitLaps(ctx context.Context, cfg *Config, client *HTTPClient, laps []lapRequest, stats *Stats) []model.LapRecord {
	logger.Get().Info(ctx, "submitting laps", logger.Int("laps", len(laps)), logger.Int("workers", cfg.Workers))

	var (
		mu       sync.Mutex
		accepted = make([]model.LapRecord, 0, len(laps))
		failed   atomic.Int64
		wg       sync.WaitGroup
	)
	lapChan := make(chan lapRequest, cfg.Workers*WorkerChannelMultiplier)

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for lap := range lapChan {
				var rec model.LapRecord
				if err := client.do(ctx, "POST", "/laps", lap, &rec, StatusCreated); err != nil {
					failed.Add(1)
					if cfg.Verbose {
						logger.Get().Warn(ctx, "lap rejected", logger.String("driver", lap.DriverID), logger.Error(err))
					}
					continue
				}
				mu.Lock()
				accepted = append(accepted, rec)
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(lapChan)
		for _, lap := range laps {
			select {
			case <-ctx.Done():
				return
			case lapChan <- lap:
			}
		}
	}()
	wg.Wait()

	stats.LapsSubmitted = len(accepted)
	stats.LapsFailed = int(failed.Load())
	logger.Get().Info(ctx, "lap submission completed",
		logger.Int("accepted", stats.LapsSubmitted),
		logger.Int("failed", stats.LapsFailed))
	return accepted
}
