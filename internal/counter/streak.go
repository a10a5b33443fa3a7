package counter

import "tally/internal/core"

// Streak counts consecutive days with at least one event for c, ending today.
// An empty today does not break a streak that ran through yesterday.
func (s *Store) Streak(c core.Category) int {
	if !s.tracker.Has(c) {
		return 0
	}
	day := s.TodayKey()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.table.Count(day, c.Ordinal) == 0 {
		prev, err := day.AddDays(-1)
		if err != nil {
			return 0
		}
		day = prev
	}

	streak := 0
	for s.table.Count(day, c.Ordinal) > 0 {
		streak++
		prev, err := day.AddDays(-1)
		if err != nil {
			break
		}
		day = prev
	}
	return streak
}

// Streaks returns the streak of every category, in tracker order.
func (s *Store) Streaks() []core.CategoryCount {
	out := make([]core.CategoryCount, 0, len(s.tracker.Categories))
	for _, c := range s.tracker.Categories {
		out = append(out, core.CategoryCount{Category: c, Count: s.Streak(c)})
	}
	return out
}
