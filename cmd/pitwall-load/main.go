package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/pitwall/internal/loadtest"
	"github.com/okian/pitwall/pkg/logger"
)

// Default configuration constants.
const (
	defaultLaps        = 5000
	defaultDrivers     = 200
	defaultEntries     = 200
	defaultReorders    = 100
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "Base URL of the service")
		laps     = flag.Int("laps", defaultLaps, "Number of laps to record")
		drivers  = flag.Int("drivers", defaultDrivers, "Number of drivers the laps are spread over")
		entries  = flag.Int("entries", defaultEntries, "Number of roster entries to append concurrently")
		reorders = flag.Int("reorders", defaultReorders, "Number of concurrent partial reorders")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed     = flag.Uint64("seed", 0, "Seed for generated laps and reorders (0 picks one)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &loadtest.Config{
		BaseURL:  *baseURL,
		Laps:     *laps,
		Drivers:  *drivers,
		Entries:  *entries,
		Reorders: *reorders,
		Workers:  *workers,
		Timeout:  *timeout,
		Verbose:  *verbose,
	}

	var err error
	if *seed == 0 {
		_, err = loadtest.Run(ctx, cfg)
	} else {
		_, err = loadtest.RunSeeded(ctx, cfg, *seed)
	}
	if err != nil {
		os.Stderr.WriteString("load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
