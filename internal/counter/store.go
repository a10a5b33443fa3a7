// Package counter implements the keyed counter store: per-day, per-category
// event counts that are loaded from a kv.Store once and written back in full
// after every mutation.
package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/kv"
)

var (
	// ErrPersist wraps any failure to write the table back to storage. The
	// in-memory mutation that triggered the write is kept.
	ErrPersist = errors.New("persist counter table")

	ErrUnknownCategory = core.ErrUnknownCategory
)

// Store holds one tracker's CounterTable. Mutations and the persist that
// follows them run under a single lock, so storage always sees writes in
// the same order as memory.
type Store struct {
	mu       sync.RWMutex
	tracker  core.Tracker
	kv       kv.Store
	table    core.CounterTable
	revision uint64

	clock      core.Clock
	loc        *time.Location
	logger     *slog.Logger
	bestEffort bool

	obsMu     sync.Mutex
	observers map[uint64]Observer
	nextObsID uint64
}

type Option func(*Store)

func WithClock(c core.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLocation sets the zone used to derive DayKeys. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBestEffortPersistence makes persist failures log-only: mutating calls
// return nil even when the write to storage failed.
func WithBestEffortPersistence() Option {
	return func(s *Store) { s.bestEffort = true }
}

// New builds a store for tracker and hydrates it from backend. Missing or
// malformed persisted data yields an empty table; only an invalid tracker or
// a nil backend is reported as an error.
func New(ctx context.Context, tracker core.Tracker, backend kv.Store, opts ...Option) (*Store, error) {
	if err := tracker.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker: %w", err)
	}
	if backend == nil {
		return nil, errors.New("kv store is nil")
	}

	s := &Store{
		tracker:   tracker.Clone(),
		kv:        backend,
		clock:     core.SystemClock,
		loc:       time.UTC,
		logger:    slog.Default(),
		observers: make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("tracker", tracker.Name)
	s.table = s.load(ctx)
	return s, nil
}

func (s *Store) load(ctx context.Context) core.CounterTable {
	blob, err := s.kv.Load(ctx, s.tracker.StorageKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			s.logger.DebugContext(ctx, "No persisted counters, starting empty", "key", s.tracker.StorageKey)
		} else {
			s.logger.WarnContext(ctx, "Failed to load counters, starting empty", "key", s.tracker.StorageKey, "error", err)
		}
		return core.NewCounterTable()
	}

	table, err := core.UnmarshalBlob(blob)
	if err != nil {
		s.logger.WarnContext(ctx, "Malformed counter blob, starting empty", "key", s.tracker.StorageKey, "error", err)
		return core.NewCounterTable()
	}

	// Ordinals outside the tracker's closed set cannot be addressed; drop them.
	dropped := 0
	for day, counts := range table {
		for ord := range counts {
			if _, ok := s.tracker.ByOrdinal(ord); !ok {
				delete(counts, ord)
				dropped++
			}
		}
		if len(counts) == 0 {
			delete(table, day)
		}
	}
	if dropped > 0 {
		s.logger.WarnContext(ctx, "Dropped counts for unknown categories", "count", dropped)
	}

	s.logger.InfoContext(ctx, "Counters loaded", "key", s.tracker.StorageKey, "days", len(table))
	return table
}

// persist writes the whole table. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	blob, err := s.table.MarshalBlob()
	if err == nil {
		err = s.kv.Save(ctx, s.tracker.StorageKey, blob)
	}
	if err == nil {
		return nil
	}

	s.logger.ErrorContext(ctx, "Failed to persist counters, change kept in memory only",
		"key", s.tracker.StorageKey, "revision", s.revision, "error", err)
	return fmt.Errorf("%w: %w", ErrPersist, err)
}

// finish notifies observers of a persisted change. Unpersisted changes are
// not announced; in best-effort mode their error is swallowed.
func (s *Store) finish(ctx context.Context, change Change, persistErr error) error {
	if persistErr != nil {
		if s.bestEffort {
			return nil
		}
		return persistErr
	}
	s.notify(ctx, change)
	return nil
}

// Tracker returns a copy of the store's tracker.
func (s *Store) Tracker() core.Tracker { return s.tracker.Clone() }

// TodayKey derives the current DayKey from the store's clock and zone.
func (s *Store) TodayKey() core.DayKey {
	return core.DayKeyOf(s.clock.Now(), s.loc)
}

// RecordEvent increments today's count for c and persists the table.
func (s *Store) RecordEvent(ctx context.Context, c core.Category) (Change, error) {
	return s.RecordEventAt(ctx, c, s.clock.Now())
}

// RecordEventAt increments the count for c on the day containing at.
func (s *Store) RecordEventAt(ctx context.Context, c core.Category, at time.Time) (Change, error) {
	if !s.tracker.Has(c) {
		return Change{}, fmt.Errorf("%w: %q in %s", ErrUnknownCategory, c.Name, s.tracker.Name)
	}
	day := core.DayKeyOf(at, s.loc)

	s.mu.Lock()
	count := s.table.Increment(day, c.Ordinal)
	s.revision++
	change := Change{
		Kind:     ChangeRecorded,
		Tracker:  s.tracker.Name,
		Day:      day,
		Category: c,
		Count:    count,
		DayTotal: s.table.Count(day),
		Revision: s.revision,
		At:       at,
	}
	err := s.persist(ctx)
	s.mu.Unlock()

	return change, s.finish(ctx, change, err)
}

// CountFor returns the count for day filtered to cats, or the sum across all
// categories when cats is empty. Categories from another tracker count zero.
func (s *Store) CountFor(day core.DayKey, cats ...core.Category) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(cats) == 0 {
		return s.table.Count(day)
	}
	ords := make([]int, 0, len(cats))
	for _, c := range cats {
		if s.tracker.Has(c) {
			ords = append(ords, c.Ordinal)
		}
	}
	if len(ords) == 0 {
		return 0
	}
	return s.table.Count(day, ords...)
}

// Day returns the count of every category on day, in tracker order.
func (s *Store) Day(day core.DayKey) []core.CategoryCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.CategoryCount, 0, len(s.tracker.Categories))
	for _, c := range s.tracker.Categories {
		out = append(out, core.CategoryCount{Category: c, Count: s.table.Count(day, c.Ordinal)})
	}
	return out
}

// Days lists the days with at least one recorded event, ascending.
func (s *Store) Days() []core.DayKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Days()
}

// Snapshot returns a deep copy of the table.
func (s *Store) Snapshot() core.CounterTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone()
}

// Revision increases by one on every mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// ClearDay removes all counts for day. Clearing an empty day is a no-op and
// does not touch storage.
func (s *Store) ClearDay(ctx context.Context, day core.DayKey) error {
	if err := day.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.table.ClearDay(day) {
		s.mu.Unlock()
		return nil
	}
	s.revision++
	change := Change{
		Kind:     ChangeDayCleared,
		Tracker:  s.tracker.Name,
		Day:      day,
		Revision: s.revision,
		At:       s.clock.Now(),
	}
	err := s.persist(ctx)
	s.mu.Unlock()

	return s.finish(ctx, change, err)
}

// ClearAll empties the table and persists the empty table.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	s.table = core.NewCounterTable()
	s.revision++
	change := Change{
		Kind:     ChangeAllCleared,
		Tracker:  s.tracker.Name,
		Revision: s.revision,
		At:       s.clock.Now(),
	}
	err := s.persist(ctx)
	s.mu.Unlock()

	return s.finish(ctx, change, err)
}
