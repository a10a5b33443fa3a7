package counter

import (
	"context"
	"errors"
	"fmt"

	"tally/internal/cache"
	"tally/internal/core"
)

// MaxSummaryDays bounds the length of a summarized range.
const MaxSummaryDays = 366

var ErrInvalidRange = errors.New("invalid day range")

// Summary aggregates counts over the inclusive range [from, to]. ByDay has
// one entry per calendar day, zero days included.
func (s *Store) Summary(from, to core.DayKey) (core.RangeSummary, error) {
	sum, _, err := s.summary(from, to)
	return sum, err
}

func (s *Store) summary(from, to core.DayKey) (core.RangeSummary, uint64, error) {
	days, err := dayRange(from, to)
	if err != nil {
		return core.RangeSummary{}, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := core.RangeSummary{
		Tracker:    s.tracker.Name,
		From:       from,
		To:         to,
		ByCategory: make([]core.CategoryCount, len(s.tracker.Categories)),
		ByDay:      make([]core.DayTotal, 0, len(days)),
	}
	for i, c := range s.tracker.Categories {
		out.ByCategory[i].Category = c
	}
	for _, d := range days {
		dayTotal := 0
		for i, c := range s.tracker.Categories {
			n := s.table.Count(d, c.Ordinal)
			out.ByCategory[i].Count += n
			dayTotal += n
		}
		out.ByDay = append(out.ByDay, core.DayTotal{Day: d, Total: dayTotal})
		out.Total += dayTotal
	}
	return out, s.revision, nil
}

func dayRange(from, to core.DayKey) ([]core.DayKey, error) {
	if err := from.Validate(); err != nil {
		return nil, fmt.Errorf("%w: from: %w", ErrInvalidRange, err)
	}
	if err := to.Validate(); err != nil {
		return nil, fmt.Errorf("%w: to: %w", ErrInvalidRange, err)
	}
	// yyyy-MM-dd sorts lexically in calendar order
	if from > to {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from, to)
	}

	var days []core.DayKey
	for d := from; d <= to; {
		if len(days) == MaxSummaryDays {
			return nil, fmt.Errorf("%w: longer than %d days", ErrInvalidRange, MaxSummaryDays)
		}
		days = append(days, d)
		next, err := d.AddDays(1)
		if err != nil {
			return nil, err
		}
		d = next
	}
	return days, nil
}

// Summarizer caches range summaries. Entries are keyed by store revision so a
// stale summary is never served; it also observes stores to drop their
// entries eagerly.
type Summarizer struct {
	cache *cache.LRUCache[core.RangeSummary]
}

var _ Observer = (*Summarizer)(nil)

func NewSummarizer(c *cache.LRUCache[core.RangeSummary]) *Summarizer {
	return &Summarizer{cache: c}
}

func summaryKey(tracker string, from, to core.DayKey, rev uint64) string {
	return fmt.Sprintf("%s:%s:%s:%d", tracker, from, to, rev)
}

func (z *Summarizer) Summarize(st *Store, from, to core.DayKey) (core.RangeSummary, error) {
	if z.cache != nil {
		if sum, ok := z.cache.Get(summaryKey(st.tracker.Name, from, to, st.Revision())); ok {
			return sum, nil
		}
	}

	sum, rev, err := st.summary(from, to)
	if err != nil {
		return core.RangeSummary{}, err
	}
	if z.cache != nil {
		z.cache.Set(summaryKey(st.tracker.Name, from, to, rev), sum)
	}
	return sum, nil
}

// OnChange drops every cached summary of the changed tracker.
func (z *Summarizer) OnChange(_ context.Context, c Change) {
	if z.cache != nil {
		z.cache.DeletePrefix(c.Tracker + ":")
	}
}
