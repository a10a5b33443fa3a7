package counter

import (
	"context"
	"slices"
	"time"

	"tally/internal/core"
)

type ChangeKind string

const (
	ChangeRecorded   ChangeKind = "recorded"
	ChangeDayCleared ChangeKind = "day_cleared"
	ChangeAllCleared ChangeKind = "all_cleared"
)

// Change describes one applied mutation. Category, Count and DayTotal are
// only set for ChangeRecorded.
type Change struct {
	Kind     ChangeKind
	Tracker  string
	Day      core.DayKey
	Category core.Category
	Count    int
	DayTotal int
	Revision uint64
	At       time.Time
}

// Observer receives changes after they have been applied and persisted.
// A change whose save failed stays in memory but is never delivered.
type Observer interface {
	OnChange(ctx context.Context, c Change)
}

type ObserverFunc func(ctx context.Context, c Change)

func (f ObserverFunc) OnChange(ctx context.Context, c Change) { f(ctx, c) }

// Subscribe registers o and returns a function that removes it.
func (s *Store) Subscribe(o Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = o
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify runs on the mutating goroutine, outside the table lock, in
// subscription order.
func (s *Store) notify(ctx context.Context, c Change) {
	s.obsMu.Lock()
	if len(s.observers) == 0 {
		s.obsMu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	s.obsMu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		s.obsMu.Lock()
		o, ok := s.observers[id]
		s.obsMu.Unlock()
		if ok {
			o.OnChange(ctx, c)
		}
	}
}
