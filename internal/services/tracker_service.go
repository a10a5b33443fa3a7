package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/counter"
	"tally/internal/kv"
)

var ErrUnknownTracker = errors.New("unknown tracker")

// EventPublisher announces recorded events; *amqp.Client implements it.
type EventPublisher interface {
	PublishEventRecorded(ctx context.Context, msg *amqp.EventRecordedMessage) error
}

type Options struct {
	Clock      core.Clock
	Location   *time.Location
	Logger     *slog.Logger
	BestEffort bool
	// Publisher is optional; nil disables the change feed.
	Publisher    EventPublisher
	SummaryCache *cache.LRUCache[core.RangeSummary]
}

// TrackerService owns one counter store per built-in tracker, all sharing
// one key-value backend.
type TrackerService struct {
	backend    kv.Store
	stores     map[string]*counter.Store
	trackers   []core.Tracker
	summarizer *counter.Summarizer
	publisher  EventPublisher
	logger     *slog.Logger
	unsubs     []func()
}

func NewTrackerService(ctx context.Context, backend kv.Store, opts Options) (*TrackerService, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &TrackerService{
		backend:    backend,
		stores:     make(map[string]*counter.Store),
		summarizer: counter.NewSummarizer(opts.SummaryCache),
		publisher:  opts.Publisher,
		logger:     logger,
	}

	storeOpts := []counter.Option{
		counter.WithClock(opts.Clock),
		counter.WithLocation(opts.Location),
		counter.WithLogger(logger),
	}
	if opts.BestEffort {
		storeOpts = append(storeOpts, counter.WithBestEffortPersistence())
	}

	for _, t := range core.Trackers() {
		st, err := counter.New(ctx, t, backend, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", t.Name, err)
		}
		s.stores[t.Name] = st
		s.trackers = append(s.trackers, t)
		s.unsubs = append(s.unsubs, st.Subscribe(s.summarizer))
		if s.publisher != nil {
			s.unsubs = append(s.unsubs, st.Subscribe(counter.ObserverFunc(s.publishChange)))
		}
	}
	return s, nil
}

func (s *TrackerService) Trackers() []core.Tracker {
	out := make([]core.Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		out = append(out, t.Clone())
	}
	return out
}

// Store returns the counter store for the named tracker.
func (s *TrackerService) Store(name string) (*counter.Store, error) {
	t, ok := core.FindTracker(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTracker, name)
	}
	return s.stores[t.Name], nil
}

// Category resolves a category name within a tracker.
func (s *TrackerService) Category(tracker, category string) (*counter.Store, core.Category, error) {
	st, err := s.Store(tracker)
	if err != nil {
		return nil, core.Category{}, err
	}
	c, ok := st.Tracker().Lookup(category)
	if !ok {
		return nil, core.Category{}, fmt.Errorf("%w: %q in %s", core.ErrUnknownCategory, category, st.Tracker().Name)
	}
	return st, c, nil
}

// RecordEvent records one event by tracker and category name.
func (s *TrackerService) RecordEvent(ctx context.Context, tracker, category string) (counter.Change, error) {
	st, c, err := s.Category(tracker, category)
	if err != nil {
		return counter.Change{}, err
	}
	return st.RecordEvent(ctx, c)
}

// Summarize returns a cached range summary for the named tracker.
func (s *TrackerService) Summarize(tracker string, from, to core.DayKey) (core.RangeSummary, error) {
	st, err := s.Store(tracker)
	if err != nil {
		return core.RangeSummary{}, err
	}
	return s.summarizer.Summarize(st, from, to)
}

// publishChange forwards recorded events. A publish failure never fails the
// mutation; the count is already stored.
func (s *TrackerService) publishChange(ctx context.Context, c counter.Change) {
	if c.Kind != counter.ChangeRecorded {
		return
	}
	msg := amqp.NewEventRecordedMessage(c.Tracker, c.Day.String(), c.Category.Ordinal, c.Category.Name, c.Count, c.DayTotal, c.At)
	if err := s.publisher.PublishEventRecorded(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event recorded message",
			"tracker", c.Tracker, "day", c.Day, "category", c.Category.Name, "error", err)
	}
}

// Ping checks the backend when it supports it.
func (s *TrackerService) Ping(ctx context.Context) error {
	if p, ok := s.backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close detaches observers and closes the publisher and the backend.
func (s *TrackerService) Close() error {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil

	var errs []error
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close tracker service: %w", errors.Join(errs...))
	}
	return nil
}
