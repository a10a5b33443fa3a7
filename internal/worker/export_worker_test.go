package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"tally/internal/amqp"
	"tally/internal/sheets"
	"tally/internal/sheets/memory"
)

type flakyAppender struct {
	failures int
	inner    *memory.Appender
}

func (f *flakyAppender) AppendRow(ctx context.Context, r sheets.Row) (string, error) {
	if f.failures > 0 {
		f.failures--
		return "", errors.New("quota exceeded")
	}
	return f.inner.AppendRow(ctx, r)
}

func testMessage() *amqp.EventRecordedMessage {
	return amqp.NewEventRecordedMessage("moods", "2025-03-14", 3, "sad", 1, 4,
		time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC))
}

func TestExportWorker_AppendsRow(t *testing.T) {
	mem := memory.New()
	w := NewExportWorker(mem, nil)

	if err := w.HandleEventRecorded(context.Background(), testMessage()); err != nil {
		t.Fatalf("HandleEventRecorded() error = %v", err)
	}

	rows := mem.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.Tracker != "moods" || got.Category != "Sad" || got.Count != 1 || got.DayTotal != 4 || got.Day != "2025-03-14" {
		t.Errorf("unexpected row %+v", got)
	}
}

func TestExportWorker_RedeliveryIsIdempotent(t *testing.T) {
	mem := memory.New()
	w := NewExportWorker(mem, nil)
	msg := testMessage()

	for i := 0; i < 3; i++ {
		if err := w.HandleEventRecorded(context.Background(), msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if n := len(mem.Rows()); n != 1 {
		t.Fatalf("expected 1 row after redelivery, got %d", n)
	}
}

func TestExportWorker_MessagesWithoutIDAreNotDeduplicated(t *testing.T) {
	mem := memory.New()
	w := NewExportWorker(mem, nil)

	happy := testMessage()
	happy.ID, happy.Category, happy.CategoryName = "", 0, "happy"
	sad := testMessage()
	sad.ID = ""

	for _, msg := range []*amqp.EventRecordedMessage{happy, sad} {
		if err := w.HandleEventRecorded(context.Background(), msg); err != nil {
			t.Fatalf("HandleEventRecorded(%s) error = %v", msg.CategoryName, err)
		}
	}
	rows := mem.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Category != "Happy" || rows[1].Category != "Sad" {
		t.Errorf("unexpected rows %+v", rows)
	}
	if n := w.Seen().Size(); n != 0 {
		t.Errorf("empty id cached, seen size = %d", n)
	}
}

func TestExportWorker_AppendFailureRequeues(t *testing.T) {
	app := &flakyAppender{failures: 1, inner: memory.New()}
	w := NewExportWorker(app, nil)
	msg := testMessage()

	if err := w.HandleEventRecorded(context.Background(), msg); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
	if err := w.HandleEventRecorded(context.Background(), msg); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if n := len(app.inner.Rows()); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestExportWorker_DropsUnexportableEvents(t *testing.T) {
	tests := []struct {
		name string
		msg  *amqp.EventRecordedMessage
	}{
		{"unknown tracker", amqp.NewEventRecordedMessage("sleep", "2025-03-14", 0, "deep", 1, 1, time.Now())},
		{"bad day", amqp.NewEventRecordedMessage("moods", "14/03/2025", 0, "happy", 1, 1, time.Now())},
		{"negative count", amqp.NewEventRecordedMessage("moods", "2025-03-14", 0, "happy", -1, 1, time.Now())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.New()
			w := NewExportWorker(mem, nil)
			if err := w.HandleEventRecorded(context.Background(), tt.msg); err != nil {
				t.Fatalf("unexportable events must be acked, got %v", err)
			}
			if len(mem.Rows()) != 0 {
				t.Fatal("no row expected")
			}
		})
	}
}

func TestExportWorker_UnknownOrdinalKeepsName(t *testing.T) {
	mem := memory.New()
	w := NewExportWorker(mem, nil)
	msg := amqp.NewEventRecordedMessage("habits", "2025-03-14", 7, "stretch", 1, 1, time.Now())

	if err := w.HandleEventRecorded(context.Background(), msg); err != nil {
		t.Fatalf("HandleEventRecorded() error = %v", err)
	}
	if rows := mem.Rows(); len(rows) != 1 || rows[0].Category != "stretch" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
