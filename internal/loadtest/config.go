package loadtest

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Laps     int           // Number of laps to record
	Drivers  int           // Number of distinct drivers the laps are spread over
	Entries  int           // Number of entries appended to the roster
	Reorders int           // Number of concurrent partial reorders
	Workers  int           // Number of concurrent workers
	Timeout  time.Duration // HTTP request timeout
	Verbose  bool          // Enable verbose logging
}

// Stats holds run statistics.
type Stats struct {
	LapsSubmitted      int
	LapsFailed         int
	EntriesAppended    int
	EntriesFailed      int
	ReordersApplied    int
	ReordersFailed     int
	Retries            int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
