package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/sheets"
)

const (
	defaultSeenSize = 1024
	defaultSeenTTL  = time.Hour
)

// ExportWorker appends one spreadsheet row per recorded event.
type ExportWorker struct {
	sheets sheets.RowAppender
	// Message IDs already exported; redeliveries are acked without a second row.
	seen *cache.LRUCache[string]
}

func NewExportWorker(appender sheets.RowAppender, seen *cache.LRUCache[string]) *ExportWorker {
	if seen == nil {
		seen = cache.NewLRUCache[string](defaultSeenSize, defaultSeenTTL)
	}
	return &ExportWorker{sheets: appender, seen: seen}
}

// Seen exposes the dedup cache so callers can register it for cleanup.
func (w *ExportWorker) Seen() *cache.LRUCache[string] { return w.seen }

// HandleEventRecorded exports msg. A returned error requeues the message.
// Messages without an ID are exported but never deduplicated.
func (w *ExportWorker) HandleEventRecorded(ctx context.Context, msg *amqp.EventRecordedMessage) error {
	if msg.ID != "" {
		if ref, ok := w.seen.Get(msg.ID); ok {
			slog.InfoContext(ctx, "Skipping already exported event", "id", msg.ID, "row_ref", ref)
			return nil
		}
	}

	row, err := rowFromMessage(msg)
	if err != nil {
		// Retrying cannot fix an event for a tracker this build does not know.
		slog.WarnContext(ctx, "Dropping unexportable event", "id", msg.ID, "error", err)
		return nil
	}

	ref, err := w.sheets.AppendRow(ctx, row)
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if msg.ID != "" {
		w.seen.Set(msg.ID, ref)
	}

	slog.InfoContext(ctx, "Exported event",
		"id", msg.ID,
		"tracker", msg.Tracker,
		"day", msg.Day,
		"category", row.Category,
		"row_ref", ref)
	return nil
}

func rowFromMessage(msg *amqp.EventRecordedMessage) (sheets.Row, error) {
	tracker, ok := core.FindTracker(msg.Tracker)
	if !ok {
		return sheets.Row{}, fmt.Errorf("unknown tracker %q", msg.Tracker)
	}
	label := msg.CategoryName
	if c, ok := tracker.ByOrdinal(msg.Category); ok {
		label = c.Label
	}
	if _, err := core.ParseDayKey(msg.Day); err != nil {
		return sheets.Row{}, err
	}

	row := sheets.Row{
		Timestamp: msg.Timestamp,
		Day:       msg.Day,
		Tracker:   tracker.Name,
		Category:  label,
		Count:     msg.Count,
		DayTotal:  msg.DayTotal,
	}
	return row, row.Validate()
}
