// Package service wires configuration, the store and the domain components
// into the dependency bundle the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vimeo/go-clocks"

	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/internal/domain/leaderboard"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/ordering"
	"github.com/okian/pitwall/pkg/logger"
)

// Operation names used in errors.
const (
	opCreateCollection = "service.create_collection"
	opGetCollection    = "service.get_collection"
)

// ErrNotStarted is returned by calls made before Start or after Stop.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for collections and leaderboards.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store    repository.Store
	ordering *ordering.Manager
	board    *leaderboard.Aggregator

	// injected store, kept across restarts and never closed by Stop
	external repository.Store

	clock clocks.Clock
	newID func() string

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore makes the service use store instead of opening one from config.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.external = store
	}
}

// WithClock sets the clock shared by the service and its components.
func WithClock(c clocks.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIDGenerator overrides how collection ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New constructs a Service from cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:   cfg,
		clock: clocks.DefaultClock(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and builds the domain components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting pitwall service...", logger.String("store_driver", s.cfg.StoreDriver))

	store, err := s.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = store

	s.ordering = ordering.NewManager(store,
		ordering.WithLogger(s.logger.Named("ordering")),
		ordering.WithClock(s.clock),
		ordering.WithRetryBackoff(s.cfg.ReorderRetryBackoff()),
		ordering.WithMaxReorderEntries(s.cfg.MaxReorderEntries),
	)
	s.board = leaderboard.NewAggregator(store,
		leaderboard.WithLogger(s.logger.Named("leaderboard")),
		leaderboard.WithClock(s.clock),
		leaderboard.WithRecentLaps(s.cfg.RecentLapsDefault, s.cfg.RecentLapsMax),
	)

	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "pitwall service started",
		logger.Int("maxReorderEntries", s.cfg.MaxReorderEntries),
		logger.Duration("reorderRetryBackoff", s.cfg.ReorderRetryBackoff()),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	if s.external != nil {
		return s.external, nil
	}
	switch s.cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemStore(repository.WithMemClock(s.clock)), nil
	case config.DriverSQLite, config.DriverPostgres:
		return repository.OpenSQL(ctx, s.cfg.StoreDriver, s.cfg.DatabaseURL, s.cfg.MaxOpenConns,
			repository.WithLogger(s.logger.Named("store")),
			repository.WithSQLClock(s.clock),
		)
	default:
		return nil, fmt.Errorf("%w: unknown store_driver %q", config.ErrInvalidConfig, s.cfg.StoreDriver)
	}
}

// Stop closes the store. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping pitwall service...")

	if s.store != nil && s.store != s.external {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(context.Background(), "pitwall service stopped")
}

// components returns the running components or ErrNotStarted.
func (s *Service) components() (repository.Store, *ordering.Manager, *leaderboard.Aggregator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, model.WrapKind("service", model.ErrTransientStore, ErrNotStarted)
	}
	return s.store, s.ordering, s.board, nil
}

// CreateCollection creates an empty run list or race roster.
func (s *Service) CreateCollection(ctx context.Context, kind model.CollectionKind, name, ownerID string) (model.Collection, error) {
	store, _, _, err := s.components()
	if err != nil {
		return model.Collection{}, err
	}
	if !kind.Valid() {
		return model.Collection{}, model.Invalid(opCreateCollection, fmt.Sprintf("unknown kind %q", kind))
	}

	c := model.Collection{
		ID:        s.newID(),
		Kind:      kind,
		Name:      strings.TrimSpace(name),
		OwnerID:   strings.TrimSpace(ownerID),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := store.CreateCollection(ctx, c); err != nil {
		return model.Collection{}, model.Wrap(opCreateCollection, err)
	}
	s.logger.Info(ctx, "collection created",
		logger.String("collection_id", c.ID),
		logger.String("kind", string(c.Kind)))
	return c, nil
}

// GetCollection returns a collection and its entries ordered by position.
func (s *Service) GetCollection(ctx context.Context, id string) (model.CollectionWithEntries, error) {
	store, mgr, _, err := s.components()
	if err != nil {
		return model.CollectionWithEntries{}, err
	}

	c, err := store.GetCollection(ctx, id)
	if err != nil {
		return model.CollectionWithEntries{}, model.Wrap(opGetCollection, err)
	}
	entries, err := mgr.Entries(ctx, id)
	if err != nil {
		return model.CollectionWithEntries{}, model.Wrap(opGetCollection, err)
	}
	return model.CollectionWithEntries{Collection: c, Entries: entries}, nil
}

// AppendEntry adds an entry at the end of a collection.
func (s *Service) AppendEntry(ctx context.Context, collectionID string, payload model.Payload) (model.Entry, error) {
	_, mgr, _, err := s.components()
	if err != nil {
		return model.Entry{}, err
	}
	return mgr.Append(ctx, collectionID, payload)
}

// RemoveEntry deletes an entry and renumbers the rest.
func (s *Service) RemoveEntry(ctx context.Context, collectionID, entryID string) error {
	_, mgr, _, err := s.components()
	if err != nil {
		return err
	}
	return mgr.Remove(ctx, collectionID, entryID)
}

// UpdateEntry merges fields into an entry's payload.
func (s *Service) UpdateEntry(ctx context.Context, entryID string, fields model.Payload) (model.Entry, error) {
	_, mgr, _, err := s.components()
	if err != nil {
		return model.Entry{}, err
	}
	return mgr.UpdatePayload(ctx, entryID, fields)
}

// Reorder applies a full or partial ordering to a collection.
func (s *Service) Reorder(ctx context.Context, collectionID string, entryIDs []string) ([]model.Entry, error) {
	_, mgr, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return mgr.Reorder(ctx, collectionID, entryIDs)
}

// RecordLap stores a timed lap.
func (s *Service) RecordLap(ctx context.Context, rec model.LapRecord) (model.LapRecord, error) {
	_, _, board, err := s.components()
	if err != nil {
		return model.LapRecord{}, err
	}
	return board.RecordLap(ctx, rec)
}

// Standings returns the leaderboard, statistics and optional driver summary
// for a (car, track) scope.
func (s *Service) Standings(ctx context.Context, q leaderboard.Query) (model.Standings, error) {
	_, _, board, err := s.components()
	if err != nil {
		return model.Standings{}, err
	}
	return board.Standings(ctx, q)
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	store, _, _, err := s.components()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":             s.started,
		"storeDriver":         s.cfg.StoreDriver,
		"maxReorderEntries":   s.cfg.MaxReorderEntries,
		"reorderRetryBackoff": s.cfg.ReorderRetryBackoff().String(),
		"recentLapsDefault":   s.cfg.RecentLapsDefault,
		"recentLapsMax":       s.cfg.RecentLapsMax,
	}
	if s.started {
		stats["uptimeSeconds"] = int64(s.clock.Now().Sub(s.startedAt).Seconds())
	}
	return stats
}
