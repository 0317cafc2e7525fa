// Package leaderboard ranks drivers within a (car, track) scope and derives
// scope-wide statistics from the same record snapshot. Nothing here is
// persisted or cached; every read recomputes from raw lap records.
package leaderboard

import (
	"sort"

	"github.com/okian/pitwall/internal/domain/model"
)

// Rank groups records by driver and orders drivers by best time. A driver's
// best is their minimum elapsed time; on equal times the earliest-created
// record wins, then the lower record id. Drivers with equal bests are ordered
// by who set it first, then by driver id.
func Rank(records []model.LapRecord) []model.LeaderboardEntry {
	byDriver := make(map[string]*model.LeaderboardEntry)
	bestAt := make(map[string]model.LapRecord)

	for _, r := range records {
		e, ok := byDriver[r.DriverID]
		if !ok {
			byDriver[r.DriverID] = &model.LeaderboardEntry{
				DriverID:        r.DriverID,
				BestTimeMS:      r.ElapsedMS,
				BestRecordID:    r.ID,
				LapCount:        1,
				LastImprovement: r.CreatedAt,
			}
			bestAt[r.DriverID] = r
			continue
		}
		e.LapCount++
		if beats(r, bestAt[r.DriverID]) {
			e.BestTimeMS = r.ElapsedMS
			e.BestRecordID = r.ID
			e.LastImprovement = r.CreatedAt
			bestAt[r.DriverID] = r
		}
	}

	board := make([]model.LeaderboardEntry, 0, len(byDriver))
	for _, e := range byDriver {
		board = append(board, *e)
	}
	sort.Slice(board, func(i, j int) bool {
		a, b := board[i], board[j]
		if a.BestTimeMS != b.BestTimeMS {
			return a.BestTimeMS < b.BestTimeMS
		}
		if !a.LastImprovement.Equal(b.LastImprovement) {
			return a.LastImprovement.Before(b.LastImprovement)
		}
		return a.DriverID < b.DriverID
	})
	for i := range board {
		board[i].Rank = i + 1
	}
	return board
}

// beats reports whether candidate should replace current as a driver's best.
func beats(candidate, current model.LapRecord) bool {
	if candidate.ElapsedMS != current.ElapsedMS {
		return candidate.ElapsedMS < current.ElapsedMS
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.ID < current.ID
}

// Summarize describes driverID's activity in the scope. recent bounds how many
// of the driver's latest records are included, newest first. A driver with no
// records gets a zero count, nil figures and an empty recent list.
func Summarize(driverID string, records []model.LapRecord, board []model.LeaderboardEntry, recent int) *model.DriverSummary {
	s := &model.DriverSummary{DriverID: driverID, Recent: []model.LapRecord{}}

	var (
		mine []model.LapRecord
		sum  int64
	)
	for _, r := range records {
		if r.DriverID == driverID {
			mine = append(mine, r)
			sum += r.ElapsedMS
		}
	}
	if len(mine) == 0 {
		return s
	}

	s.LapCount = len(mine)
	avg := roundedMean(sum, int64(len(mine)))
	s.AverageTimeMS = &avg

	for _, e := range board {
		if e.DriverID == driverID {
			best, rank := e.BestTimeMS, e.Rank
			s.BestTimeMS = &best
			s.Rank = &rank
			break
		}
	}

	sort.SliceStable(mine, func(i, j int) bool {
		if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].CreatedAt.After(mine[j].CreatedAt)
		}
		return mine[i].ID > mine[j].ID
	})
	if recent < 0 {
		recent = 0
	}
	if recent < len(mine) {
		mine = mine[:recent]
	}
	s.Recent = append(s.Recent, mine...)
	return s
}

// roundedMean is sum/n rounded half up to the nearest integer. Elapsed times
// are positive, so the sum is never negative.
func roundedMean(sum, n int64) int64 {
	return (sum + n/2) / n
}
