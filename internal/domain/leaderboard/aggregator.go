package leaderboard

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/vimeo/go-clocks"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Operation names used in errors and logs.
const (
	OpRecordLap = "leaderboard.record_lap"
	OpStandings = "leaderboard.standings"
)

const (
	defaultRecent    = 10
	defaultRecentMax = 100
)

// LapSource is where lap records are stored and read back per scope.
type LapSource interface {
	InsertLap(ctx context.Context, rec model.LapRecord) error
	ListLaps(ctx context.Context, scope model.Scope) ([]model.LapRecord, error)
}

// Query selects a scope and, optionally, a driver to summarize. Recent <= 0
// uses the aggregator's default.
type Query struct {
	Scope    model.Scope
	DriverID string
	Recent   int
}

// Aggregator answers leaderboard reads from one snapshot of lap records.
type Aggregator struct {
	source    LapSource
	clock     clocks.Clock
	logger    logger.Logger
	newID     func() string
	recent    int
	recentMax int
}

// NewAggregator creates an Aggregator over source.
func NewAggregator(source LapSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:    source,
		clock:     clocks.DefaultClock(),
		logger:    logger.Discard(),
		newID:     uuid.NewString,
		recent:    defaultRecent,
		recentMax: defaultRecentMax,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.recent > a.recentMax {
		a.recent = a.recentMax
	}
	return a
}

// RecordLap validates and stores a new lap. ID and CreatedAt are assigned
// here; any values the caller set are ignored.
func (a *Aggregator) RecordLap(ctx context.Context, rec model.LapRecord) (model.LapRecord, error) {
	rec.DriverID = strings.TrimSpace(rec.DriverID)
	rec.CarID = strings.TrimSpace(rec.CarID)
	rec.TrackID = strings.TrimSpace(rec.TrackID)
	switch {
	case rec.DriverID == "" || rec.CarID == "" || rec.TrackID == "":
		return model.LapRecord{}, model.Invalid(OpRecordLap, "driver_id, car_id and track_id are required")
	case rec.ElapsedMS <= 0:
		return model.LapRecord{}, model.Invalid(OpRecordLap, "elapsed_ms must be positive")
	}

	rec.ID = a.newID()
	rec.CreatedAt = a.clock.Now().UTC()
	if err := a.source.InsertLap(ctx, rec); err != nil {
		return model.LapRecord{}, model.Wrap(OpRecordLap, err)
	}

	metrics.RecordLapRecorded()
	a.logger.Debug(ctx, "lap recorded",
		logger.String("lap_id", rec.ID),
		logger.String("driver_id", rec.DriverID),
		logger.String("car_id", rec.CarID),
		logger.String("track_id", rec.TrackID),
		logger.Int64("elapsed_ms", rec.ElapsedMS))
	return rec, nil
}

// Standings ranks the scope, computes its statistics and, when q.DriverID is
// set, that driver's summary. All three come from the same record read. An
// empty scope is a valid result, not an error.
func (a *Aggregator) Standings(ctx context.Context, q Query) (model.Standings, error) {
	if strings.TrimSpace(q.Scope.CarID) == "" || strings.TrimSpace(q.Scope.TrackID) == "" {
		return model.Standings{}, model.Invalid(OpStandings, "car_id and track_id are required")
	}

	start := a.clock.Now()
	records, err := a.source.ListLaps(ctx, q.Scope)
	if err != nil {
		return model.Standings{}, model.Wrap(OpStandings, err)
	}

	board := Rank(records)
	out := model.Standings{
		Scope:       q.Scope,
		Leaderboard: board,
		Statistics:  ComputeStatistics(records, board),
	}
	if q.DriverID != "" {
		out.DriverSummary = Summarize(q.DriverID, records, board, a.recentLimit(q.Recent))
	}

	elapsed := a.clock.Now().Sub(start)
	metrics.RecordLeaderboardComputation(len(records), float64(elapsed.Microseconds())/1000.0)
	a.logger.Debug(ctx, "standings computed",
		logger.String("car_id", q.Scope.CarID),
		logger.String("track_id", q.Scope.TrackID),
		logger.Int("records", len(records)),
		logger.Int("drivers", len(board)),
		logger.Duration("elapsed", elapsed))
	return out, nil
}

func (a *Aggregator) recentLimit(n int) int {
	if n <= 0 {
		return a.recent
	}
	if n > a.recentMax {
		return a.recentMax
	}
	return n
}
