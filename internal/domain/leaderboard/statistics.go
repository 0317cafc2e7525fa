package leaderboard

import "github.com/okian/pitwall/internal/domain/model"

// ComputeStatistics derives scope-wide figures from records and the board
// ranked from those same records. With no records every field stays nil.
func ComputeStatistics(records []model.LapRecord, board []model.LeaderboardEntry) model.Statistics {
	var stats model.Statistics
	if len(records) == 0 {
		return stats
	}

	var (
		sum     int64
		fastest = records[0].ElapsedMS
		latest  = records[0].CreatedAt
		drivers = make(map[string]struct{})
	)
	for _, r := range records {
		sum += r.ElapsedMS
		if r.ElapsedMS < fastest {
			fastest = r.ElapsedMS
		}
		if r.CreatedAt.After(latest) {
			latest = r.CreatedAt
		}
		drivers[r.DriverID] = struct{}{}
	}

	total, unique := len(records), len(drivers)
	avg := roundedMean(sum, int64(total))
	last := latest.UTC()

	stats.TotalLaps = &total
	stats.UniqueDrivers = &unique
	stats.FastestTimeMS = &fastest
	stats.AverageTimeMS = &avg
	stats.LastActivity = &last
	if len(board) > 0 {
		wr := board[0]
		stats.WorldRecord = &wr
	}
	return stats
}

