package sheets

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Row is one exported event: [timestamp, day, tracker, category, count, day total].
type Row struct {
	Timestamp time.Time
	Day       string
	Tracker   string
	Category  string
	Count     int
	DayTotal  int
}

var ErrInvalidRow = errors.New("invalid row")

func (r Row) Validate() error {
	switch {
	case r.Timestamp.IsZero():
		return errors.Join(ErrInvalidRow, errors.New("timestamp is required"))
	case strings.TrimSpace(r.Day) == "":
		return errors.Join(ErrInvalidRow, errors.New("day is required"))
	case strings.TrimSpace(r.Tracker) == "":
		return errors.Join(ErrInvalidRow, errors.New("tracker is required"))
	case r.Count < 0 || r.DayTotal < 0:
		return errors.Join(ErrInvalidRow, errors.New("counts must be non-negative"))
	}
	return nil
}

// Values returns the cells in column order.
func (r Row) Values() []any {
	return []any{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Day,
		r.Tracker,
		r.Category,
		r.Count,
		r.DayTotal,
	}
}

// Ports for outbound adapters.
type (
	RowAppender interface {
		AppendRow(ctx context.Context, r Row) (rowRef string, err error)
	}
)
