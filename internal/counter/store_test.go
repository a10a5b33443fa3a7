package counter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/kv/memory"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// failingKV wraps a memory store and fails saves while failSaves is set.
type failingKV struct {
	*memory.Store
	failSaves bool
	loadErr   error
	saves     int
}

var errDiskFull = errors.New("disk full")

func (f *failingKV) Save(ctx context.Context, key string, blob []byte) error {
	f.saves++
	if f.failSaves {
		return errDiskFull
	}
	return f.Store.Save(ctx, key, blob)
}

func (f *failingKV) Load(ctx context.Context, key string) ([]byte, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.Store.Load(ctx, key)
}

var day1 = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, backend kv.Store, opts ...Option) (*Store, *fixedClock) {
	t.Helper()
	clk := &fixedClock{t: day1}
	opts = append([]Option{WithClock(clk)}, opts...)
	s, err := New(context.Background(), core.Moods, backend, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, clk
}

func mood(t *testing.T, name string) core.Category {
	t.Helper()
	c, ok := core.Moods.Lookup(name)
	if !ok {
		t.Fatalf("unknown mood %q", name)
	}
	return c
}

func TestFreshStoreCountsZero(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	today := s.TodayKey()
	for _, c := range core.Moods.Categories {
		if got := s.CountFor(today, c); got != 0 {
			t.Fatalf("%s: got %d want 0", c.Name, got)
		}
	}
	if got := s.CountFor(today); got != 0 {
		t.Fatalf("total: got %d want 0", got)
	}
}

func TestRecordEventCounts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New())
	happy, sad := mood(t, "happy"), mood(t, "sad")

	for i := 0; i < 3; i++ {
		if _, err := s.RecordEvent(ctx, happy); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	ch, err := s.RecordEvent(ctx, sad)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ch.Count != 1 || ch.DayTotal != 4 || ch.Revision != 4 || ch.Day != "2025-03-14" {
		t.Fatalf("unexpected change: %+v", ch)
	}

	today := s.TodayKey()
	if got := s.CountFor(today, happy); got != 3 {
		t.Fatalf("happy=%d want 3", got)
	}
	if got := s.CountFor(today, sad); got != 1 {
		t.Fatalf("sad=%d want 1", got)
	}
	if got := s.CountFor(today); got != 4 {
		t.Fatalf("total=%d want 4", got)
	}
	if got := s.CountFor(today, mood(t, "meh")); got != 0 {
		t.Fatalf("meh=%d want 0", got)
	}
}

func TestRecordEventRejectsForeignCategory(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	water, _ := core.Habits.Lookup("water")

	if _, err := s.RecordEvent(context.Background(), water); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if s.Revision() != 0 || s.CountFor(s.TodayKey()) != 0 {
		t.Fatalf("rejected category must not mutate the table")
	}
	// Same ordinal as "happy" but a different tracker.
	if got := s.CountFor(s.TodayKey(), water); got != 0 {
		t.Fatalf("foreign category count=%d", got)
	}
}

func TestDayBoundary(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, memory.New())
	happy := mood(t, "happy")

	if _, err := s.RecordEvent(ctx, happy); err != nil {
		t.Fatalf("record: %v", err)
	}
	d1 := s.TodayKey()

	clk.set(day1.Add(24 * time.Hour))
	d2 := s.TodayKey()
	if d1 == d2 {
		t.Fatalf("clock did not advance the day")
	}
	if got := s.CountFor(d2); got != 0 {
		t.Fatalf("event from %s leaked into %s: %d", d1, d2, got)
	}
	if _, err := s.RecordEvent(ctx, happy); err != nil {
		t.Fatalf("record: %v", err)
	}
	if s.CountFor(d1, happy) != 1 || s.CountFor(d2, happy) != 1 {
		t.Fatalf("unexpected per-day counts: d1=%d d2=%d", s.CountFor(d1), s.CountFor(d2))
	}
}

func TestTodayKeyUsesLocation(t *testing.T) {
	clk := &fixedClock{t: time.Date(2025, 3, 14, 23, 30, 0, 0, time.UTC)}
	tokyo := time.FixedZone("JST", 9*3600)
	s, err := New(context.Background(), core.Moods, memory.New(), WithClock(clk), WithLocation(tokyo))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := s.TodayKey(); got != "2025-03-15" {
		t.Fatalf("TodayKey=%s want 2025-03-15", got)
	}
}

func TestRoundTripThroughStorage(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s, clk := newTestStore(t, backend)

	s.RecordEvent(ctx, mood(t, "happy"))
	s.RecordEvent(ctx, mood(t, "okay"))
	clk.set(day1.Add(48 * time.Hour))
	s.RecordEvent(ctx, mood(t, "sad"))
	s.RecordEvent(ctx, mood(t, "sad"))

	reloaded, _ := newTestStore(t, backend)
	for _, d := range s.Days() {
		for _, c := range core.Moods.Categories {
			if got, want := reloaded.CountFor(d, c), s.CountFor(d, c); got != want {
				t.Fatalf("%s/%s: got %d want %d", d, c.Name, got, want)
			}
		}
	}
	if len(reloaded.Days()) != 2 {
		t.Fatalf("expected 2 days after reload, got %v", reloaded.Days())
	}
}

func TestMalformedBlobStartsEmpty(t *testing.T) {
	for _, blob := range []string{`garbage`, `{"2025-03-14":{"0":-4}}`, `{"yesterday":{"0":1}}`} {
		backend := memory.NewSeeded(map[string][]byte{core.Moods.StorageKey: []byte(blob)})
		s, _ := newTestStore(t, backend)
		if len(s.Days()) != 0 {
			t.Fatalf("%q: expected empty table, got %v", blob, s.Days())
		}
	}
}

func TestLoadErrorStartsEmpty(t *testing.T) {
	backend := &failingKV{Store: memory.New(), loadErr: errors.New("io error")}
	s, _ := newTestStore(t, backend)
	if len(s.Days()) != 0 {
		t.Fatalf("expected empty table")
	}
}

func TestUnknownOrdinalsDroppedOnLoad(t *testing.T) {
	backend := memory.NewSeeded(map[string][]byte{
		core.Moods.StorageKey: []byte(`{"2025-03-14":{"0":2,"9":5},"2025-03-13":{"9":1}}`),
	})
	s, _ := newTestStore(t, backend)
	if got := s.CountFor("2025-03-14"); got != 2 {
		t.Fatalf("total=%d want 2", got)
	}
	if days := s.Days(); len(days) != 1 {
		t.Fatalf("expected only one populated day, got %v", days)
	}
}

func TestPersistFailureSurfacesAndKeepsMemory(t *testing.T) {
	ctx := context.Background()
	backend := &failingKV{Store: memory.New(), failSaves: true}
	s, _ := newTestStore(t, backend)
	happy := mood(t, "happy")

	_, err := s.RecordEvent(ctx, happy)
	if !errors.Is(err, ErrPersist) || !errors.Is(err, errDiskFull) {
		t.Fatalf("expected ErrPersist wrapping the backend error, got %v", err)
	}
	if got := s.CountFor(s.TodayKey(), happy); got != 1 {
		t.Fatalf("in-memory count=%d want 1", got)
	}

	// Next successful write carries the earlier increment too.
	backend.failSaves = false
	if _, err := s.RecordEvent(ctx, happy); err != nil {
		t.Fatalf("record: %v", err)
	}
	reloaded, _ := newTestStore(t, backend)
	if got := reloaded.CountFor(s.TodayKey(), happy); got != 2 {
		t.Fatalf("persisted count=%d want 2", got)
	}
}

func TestBestEffortPersistenceSwallowsErrors(t *testing.T) {
	backend := &failingKV{Store: memory.New(), failSaves: true}
	s, _ := newTestStore(t, backend, WithBestEffortPersistence())

	if _, err := s.RecordEvent(context.Background(), mood(t, "meh")); err != nil {
		t.Fatalf("best-effort mode returned %v", err)
	}
	if backend.saves != 1 {
		t.Fatalf("expected one save attempt, got %d", backend.saves)
	}
	if s.CountFor(s.TodayKey()) != 1 {
		t.Fatalf("in-memory count lost")
	}
}

func TestEverySaveReplacesWholeBlob(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s, clk := newTestStore(t, backend)
	s.RecordEvent(ctx, mood(t, "happy"))
	clk.set(day1.Add(24 * time.Hour))
	s.RecordEvent(ctx, mood(t, "sad"))

	blob, err := backend.Load(ctx, core.Moods.StorageKey)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(blob) != `{"2025-03-14":{"0":1},"2025-03-15":{"3":1}}` {
		t.Fatalf("unexpected blob: %s", blob)
	}
}

func TestClearDayAndClearAll(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s, clk := newTestStore(t, backend)
	s.RecordEvent(ctx, mood(t, "happy"))
	clk.set(day1.Add(24 * time.Hour))
	s.RecordEvent(ctx, mood(t, "okay"))

	if err := s.ClearDay(ctx, "2025-03-14"); err != nil {
		t.Fatalf("clear day: %v", err)
	}
	if s.CountFor("2025-03-14") != 0 || s.CountFor("2025-03-15") != 1 {
		t.Fatalf("clear day touched the wrong day")
	}
	rev := s.Revision()
	if err := s.ClearDay(ctx, "2025-03-01"); err != nil || s.Revision() != rev {
		t.Fatalf("clearing an empty day must be a no-op (err=%v)", err)
	}
	if err := s.ClearDay(ctx, "bad"); !errors.Is(err, core.ErrInvalidDayKey) {
		t.Fatalf("expected ErrInvalidDayKey, got %v", err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	reloaded, _ := newTestStore(t, backend)
	if len(reloaded.Days()) != 0 {
		t.Fatalf("clear all not persisted: %v", reloaded.Days())
	}
}

func TestTrackerReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t, memory.New())

	tr := s.Tracker()
	tr.Categories[0] = core.Category{Ordinal: 0, Name: "furious"}

	if got := s.Tracker().Categories[0].Name; got != "happy" {
		t.Fatalf("store tracker changed through copy: %q", got)
	}
	if got := core.Moods.Categories[0].Name; got != "happy" {
		t.Fatalf("catalog changed through store tracker: %q", got)
	}
	if _, err := s.RecordEvent(context.Background(), mood(t, "happy")); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
}

func TestDaySnapshotInTrackerOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New())
	s.RecordEvent(ctx, mood(t, "meh"))
	s.RecordEvent(ctx, mood(t, "meh"))

	counts := s.Day(s.TodayKey())
	if len(counts) != len(core.Moods.Categories) {
		t.Fatalf("expected one entry per category, got %d", len(counts))
	}
	for i, cc := range counts {
		if cc.Category.Name != core.Moods.Categories[i].Name {
			t.Fatalf("entry %d out of order: %s", i, cc.Category.Name)
		}
	}
	if counts[2].Count != 2 {
		t.Fatalf("meh=%d want 2", counts[2].Count)
	}

	snap := s.Snapshot()
	snap.Increment(s.TodayKey(), 0)
	if s.CountFor(s.TodayKey()) != 2 {
		t.Fatalf("snapshot mutation leaked into the store")
	}
}

func TestConcurrentRecordEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New())
	happy := mood(t, "happy")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordEvent(ctx, happy)
		}()
	}
	wg.Wait()
	if got := s.CountFor(s.TodayKey(), happy); got != 50 {
		t.Fatalf("count=%d want 50", got)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(context.Background(), core.Tracker{}, memory.New()); err == nil {
		t.Fatalf("expected error for invalid tracker")
	}
	if _, err := New(context.Background(), core.Moods, nil); err == nil {
		t.Fatalf("expected error for nil backend")
	}
}
