package loadtest

import (
	"context"
	"fmt"
	"net/url"

	"github.com/okian/pitwall/internal/domain/leaderboard"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/ordering"
	"github.com/okian/pitwall/pkg/logger"
)

// verifyLeaderboard fetches the standings for scope and checks them against
// a ranking recomputed locally from the laps the service accepted.
func verifyLeaderboard(ctx context.Context, client *HTTPClient, scope model.Scope, accepted []model.LapRecord, stats *Stats) error {
	q := url.Values{"car_id": {scope.CarID}, "track_id": {scope.TrackID}}
	var got model.Standings
	if err := client.do(ctx, "GET", "/leaderboard?"+q.Encode(), nil, &got, StatusOK); err != nil {
		return fmt.Errorf("fetch leaderboard: %w", err)
	}
	stats.LeaderboardEntries = len(got.Leaderboard)

	want := leaderboard.Rank(accepted)
	if len(got.Leaderboard) != len(want) {
		return fmt.Errorf("leaderboard has %d drivers, expected %d", len(got.Leaderboard), len(want))
	}
	for i := range want {
		g, w := got.Leaderboard[i], want[i]
		if g.DriverID != w.DriverID || g.BestTimeMS != w.BestTimeMS || g.BestRecordID != w.BestRecordID ||
			g.LapCount != w.LapCount || g.Rank != w.Rank {
			return fmt.Errorf("rank %d: got %s %dms (%d laps), expected %s %dms (%d laps)",
				i+1, g.DriverID, g.BestTimeMS, g.LapCount, w.DriverID, w.BestTimeMS, w.LapCount)
		}
	}

	wantStats := leaderboard.ComputeStatistics(accepted, want)
	if len(accepted) > 0 {
		if got.Statistics.TotalLaps == nil || *got.Statistics.TotalLaps != *wantStats.TotalLaps {
			return fmt.Errorf("total laps mismatch: expected %d", *wantStats.TotalLaps)
		}
		if got.Statistics.AverageTimeMS == nil || *got.Statistics.AverageTimeMS != *wantStats.AverageTimeMS {
			return fmt.Errorf("average lap mismatch: expected %d", *wantStats.AverageTimeMS)
		}
	}

	logger.Get().Info(ctx, "leaderboard verified", logger.Int("drivers", len(want)))
	return nil
}

// verifyRoster checks that the roster holds every appended entry at the
// dense positions 1..N.
func verifyRoster(ctx context.Context, client *HTTPClient, collectionID string, stats *Stats) error {
	var got model.CollectionWithEntries
	if err := client.do(ctx, "GET", "/collections/"+collectionID, nil, &got, StatusOK); err != nil {
		return fmt.Errorf("fetch roster: %w", err)
	}
	if len(got.Entries) != stats.EntriesAppended {
		return fmt.Errorf("roster holds %d entries, expected %d", len(got.Entries), stats.EntriesAppended)
	}
	if err := ordering.CheckDense(got.Entries); err != nil {
		return fmt.Errorf("roster positions: %w", err)
	}

	logger.Get().Info(ctx, "roster verified", logger.Int("entries", len(got.Entries)))
	return nil
}
