package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

type createCollectionRequest struct {
	Kind    model.CollectionKind `json:"kind"`
	Name    string               `json:"name"`
	OwnerID string               `json:"owner_id"`
}

type appendEntryRequest struct {
	Payload map[string]any `json:"payload"`
}

type reorderRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

// churnRoster creates a race roster, fills it with concurrent appends, then
// fires concurrent partial reorders at it. It returns the collection id.
func churnRoster(ctx context.Context, cfg *Config, client *HTTPClient, rng *rand.Rand, stats *Stats) (string, error) {
	var c model.Collection
	err := client.do(ctx, "POST", "/collections",
		createCollectionRequest{Kind: model.KindRace, Name: "load roster", OwnerID: "loadtest"}, &c, StatusCreated)
	if err != nil {
		return "", fmt.Errorf("create roster: %w", err)
	}
	logger.Get().Info(ctx, "roster created", logger.String("collection_id", c.ID))

	var (
		mu       sync.Mutex
		ids      = make([]string, 0, cfg.Entries)
		appended atomic.Int64
		failed   atomic.Int64
	)
	runPool(cfg.Workers, cfg.Entries, func(i int) {
		var e model.Entry
		path := "/collections/" + c.ID + "/entries"
		if err := client.do(ctx, "POST", path, appendEntryRequest{Payload: map[string]any{"member": i}}, &e, StatusCreated); err != nil {
			failed.Add(1)
			return
		}
		appended.Add(1)
		mu.Lock()
		ids = append(ids, e.ID)
		mu.Unlock()
	})
	stats.EntriesAppended = int(appended.Load())
	stats.EntriesFailed = int(failed.Load())
	if len(ids) == 0 {
		return c.ID, nil
	}

	// Pre-draw each reorder so workers never share the generator.
	orders := make([][]string, cfg.Reorders)
	for i := range orders {
		n := 1 + rng.IntN(len(ids))
		perm := rng.Perm(len(ids))[:n]
		order := make([]string, n)
		for j, k := range perm {
			order[j] = ids[k]
		}
		orders[i] = order
	}

	var applied, rejected atomic.Int64
	runPool(cfg.Workers, len(orders), func(i int) {
		path := "/collections/" + c.ID + "/order"
		if err := client.do(ctx, "PUT", path, reorderRequest{EntryIDs: orders[i]}, nil, StatusOK); err != nil {
			rejected.Add(1)
			if cfg.Verbose {
				logger.Get().Warn(ctx, "reorder failed", logger.Error(err))
			}
			return
		}
		applied.Add(1)
	})
	stats.ReordersApplied = int(applied.Load())
	stats.ReordersFailed = int(rejected.Load())

	logger.Get().Info(ctx, "roster churn completed",
		logger.Int("appended", stats.EntriesAppended),
		logger.Int("reorders", stats.ReordersApplied),
		logger.Int("reorderFailures", stats.ReordersFailed))
	return c.ID, nil
}

// runPool calls fn for every index in [0, n) on workers goroutines.
func runPool(workers, n int, fn func(i int)) {
	jobs := make(chan int, workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
