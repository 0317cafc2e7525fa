package model

import "time"

// LapRecord is one timed lap by one driver on one car/track pair. Records are
// immutable once stored.
type LapRecord struct {
	ID        string    `json:"id"`
	DriverID  string    `json:"driver_id"`
	CarID     string    `json:"car_id"`
	TrackID   string    `json:"track_id"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Scope identifies the (car, track) pair a leaderboard ranks.
type Scope struct {
	CarID   string `json:"car_id"`
	TrackID string `json:"track_id"`
}

// LeaderboardEntry is one driver's standing within a scope. Derived on every
// read, never persisted.
type LeaderboardEntry struct {
	Rank            int       `json:"rank"`
	DriverID        string    `json:"driver_id"`
	BestTimeMS      int64     `json:"best_time_ms"`
	BestRecordID    string    `json:"best_record_id"`
	LapCount        int       `json:"lap_count"`
	LastImprovement time.Time `json:"last_improvement"`
}

// DriverSummary describes one driver's activity within a scope.
type DriverSummary struct {
	DriverID      string      `json:"driver_id"`
	LapCount      int         `json:"lap_count"`
	BestTimeMS    *int64      `json:"best_time_ms"`
	AverageTimeMS *int64      `json:"average_time_ms"`
	Rank          *int        `json:"rank"`
	Recent        []LapRecord `json:"recent"`
}

// Statistics are scope-wide aggregates. Every field is nil when the scope has
// no records, so "no data" is distinguishable from a zero value.
type Statistics struct {
	TotalLaps     *int              `json:"total_laps"`
	UniqueDrivers *int              `json:"unique_drivers"`
	FastestTimeMS *int64            `json:"fastest_time_ms"`
	AverageTimeMS *int64            `json:"average_time_ms"`
	LastActivity  *time.Time        `json:"last_activity"`
	WorldRecord   *LeaderboardEntry `json:"world_record"`
}

// Standings is the full answer to a leaderboard read.
type Standings struct {
	Scope         Scope              `json:"scope"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	DriverSummary *DriverSummary     `json:"driver_summary,omitempty"`
	Statistics    Statistics         `json:"statistics"`
}
