package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// CounterTable maps a day to per-category counts keyed by category ordinal.
// Missing entries read as zero.
type CounterTable map[DayKey]map[int]int

var ErrMalformedTable = errors.New("malformed counter table")

func NewCounterTable() CounterTable {
	return make(CounterTable)
}

// Increment adds one to table[day][ordinal] and returns the new count.
func (t CounterTable) Increment(day DayKey, ordinal int) int {
	counts, ok := t[day]
	if !ok {
		counts = make(map[int]int)
		t[day] = counts
	}
	counts[ordinal]++
	return counts[ordinal]
}

// Count returns the count for the given ordinals on day, or the sum across
// all categories when no ordinal is given.
func (t CounterTable) Count(day DayKey, ordinals ...int) int {
	counts, ok := t[day]
	if !ok {
		return 0
	}
	total := 0
	if len(ordinals) == 0 {
		for _, n := range counts {
			total += n
		}
		return total
	}
	for _, o := range ordinals {
		total += counts[o]
	}
	return total
}

// ClearDay drops every count recorded on day.
func (t CounterTable) ClearDay(day DayKey) bool {
	if _, ok := t[day]; !ok {
		return false
	}
	delete(t, day)
	return true
}

// Days returns the populated days in ascending order.
func (t CounterTable) Days() []DayKey {
	days := make([]DayKey, 0, len(t))
	for d := range t {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

func (t CounterTable) Clone() CounterTable {
	out := make(CounterTable, len(t))
	for d, counts := range t {
		c := make(map[int]int, len(counts))
		for k, v := range counts {
			c[k] = v
		}
		out[d] = c
	}
	return out
}

// MarshalBlob encodes the whole table as
// {"<dayKey>": {"<ordinal>": <count>}}.
func (t CounterTable) MarshalBlob() ([]byte, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[DayKey]map[int]int(t))
	if err != nil {
		return nil, fmt.Errorf("marshal counter table: %w", err)
	}
	return b, nil
}

// UnmarshalBlob decodes a blob produced by MarshalBlob. Bad day keys and
// negative counts are reported as ErrMalformedTable.
func UnmarshalBlob(b []byte) (CounterTable, error) {
	var raw map[DayKey]map[int]int
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	t := make(CounterTable, len(raw))
	for day, counts := range raw {
		if err := day.Validate(); err != nil {
			return nil, fmt.Errorf("%w: day %q", ErrMalformedTable, day)
		}
		c := make(map[int]int, len(counts))
		for ord, n := range counts {
			if n < 0 {
				return nil, fmt.Errorf("%w: negative count %d for %s/%d", ErrMalformedTable, n, day, ord)
			}
			if n == 0 {
				continue
			}
			c[ord] = n
		}
		if len(c) > 0 {
			t[day] = c
		}
	}
	return t, nil
}
