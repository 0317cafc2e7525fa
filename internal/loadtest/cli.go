package loadtest

import (
	"os"
)

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	os.Stdout.WriteString(`Pitwall Load Tool
=================

Drives a running pitwall service with concurrent lap submissions and roster
churn, then verifies the leaderboard and the roster positions it reads back.

Usage:
  go run ./cmd/pitwall-load [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -laps int
        Number of laps to record (default 5000)
  -drivers int
        Number of drivers the laps are spread over (default 200)
  -entries int
        Number of roster entries to append concurrently (default 200)
  -reorders int
        Number of concurrent partial reorders (default 100)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed uint
        Seed for generated laps and reorders (default: time based)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Run with default settings
  go run ./cmd/pitwall-load

  # Heavier roster churn against another host
  go run ./cmd/pitwall-load -entries 400 -reorders 1000 -workers 32 -url http://pitwall:8080
`)
}
