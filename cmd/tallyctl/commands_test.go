package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/kv/memory"
	"tally/internal/services"
)

// newTestApp opens a fresh service per command over one shared backend, so
// every command reloads what the previous one persisted.
func newTestApp(t *testing.T) *app {
	t.Helper()
	backend := memory.New()
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return &app{
		open: func(ctx context.Context) (*services.TrackerService, error) {
			return services.NewTrackerService(ctx, backend, services.Options{
				Clock: core.ClockFunc(func() time.Time { return now }),
			})
		},
	}
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, a *app, args ...string) string {
	t.Helper()
	out, err := run(t, a, args...)
	if err != nil {
		t.Fatalf("tallyctl %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestTrackersCmd(t *testing.T) {
	out := mustRun(t, newTestApp(t), "trackers")

	if !strings.Contains(out, "habits") || !strings.Contains(out, "water, move, breath") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "happy, okay, meh, sad") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRecordAndCountCmds(t *testing.T) {
	a := newTestApp(t)
	for _, cat := range []string{"happy", "happy", "happy"} {
		mustRun(t, a, "record", "moods", cat)
	}
	out := mustRun(t, a, "record", "moods", "sad")
	if want := "recorded moods/sad on 2025-03-14: count 1, day total 4\n"; out != want {
		t.Errorf("record output = %q, want %q", out, want)
	}

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"count", "moods"}, "4\n"},
		{[]string{"count", "moods", "--category", "happy"}, "3\n"},
		{[]string{"count", "moods", "--category", "sad"}, "1\n"},
		{[]string{"count", "moods", "--day", "2025-03-13"}, "0\n"},
		{[]string{"count", "habits"}, "0\n"},
	}
	for _, tt := range tests {
		if got := mustRun(t, a, tt.args...); got != tt.want {
			t.Errorf("%v = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestRecordCmd_Errors(t *testing.T) {
	a := newTestApp(t)

	if _, err := run(t, a, "record", "sleep", "deep"); !errors.Is(err, services.ErrUnknownTracker) {
		t.Errorf("expected ErrUnknownTracker, got %v", err)
	}
	if _, err := run(t, a, "record", "habits", "happy"); !errors.Is(err, core.ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := run(t, a, "record", "habits"); err == nil {
		t.Error("expected argument error")
	}
	if _, err := run(t, a, "count", "moods", "--day", "14/03/2025"); !errors.Is(err, core.ErrInvalidDayKey) {
		t.Errorf("expected ErrInvalidDayKey, got %v", err)
	}
}

func TestDayCmd(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "record", "habits", "move")
	mustRun(t, a, "record", "habits", "move")

	out := mustRun(t, a, "day", "habits")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %q", out)
	}
	want := [][]string{
		{"habits", "2025-03-14"},
		{"water", "0"},
		{"move", "2"},
		{"breath", "0"},
		{"total", "2"},
	}
	for i, w := range want {
		got := strings.Fields(lines[i])
		if len(got) != 2 || got[0] != w[0] || got[1] != w[1] {
			t.Errorf("line %d = %q, want %v", i, lines[i], w)
		}
	}
}

func TestClearCmd(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "record", "moods", "okay")

	if _, err := run(t, a, "clear", "moods"); err == nil {
		t.Error("clear without --day or --all must fail")
	}
	if _, err := run(t, a, "clear", "moods", "--all", "--day", "2025-03-14"); err == nil {
		t.Error("--day and --all together must fail")
	}

	if out := mustRun(t, a, "clear", "moods", "--day", "2025-03-14"); out != "cleared moods on 2025-03-14\n" {
		t.Errorf("clear output = %q", out)
	}
	if got := mustRun(t, a, "count", "moods"); got != "0\n" {
		t.Errorf("count after clear = %q", got)
	}

	mustRun(t, a, "record", "moods", "meh")
	mustRun(t, a, "clear", "moods", "--all")
	if got := mustRun(t, a, "count", "moods"); got != "0\n" {
		t.Errorf("count after clear --all = %q", got)
	}
}

func TestSummaryCmd(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "record", "habits", "water")
	mustRun(t, a, "record", "habits", "breath")

	out := mustRun(t, a, "summary", "habits")
	if !strings.Contains(out, "2025-03-08..2025-03-14") {
		t.Errorf("default range missing: %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if last := strings.Fields(lines[len(lines)-1]); len(last) != 2 || last[1] != "2" {
		t.Errorf("total line = %q", lines[len(lines)-1])
	}

	if _, err := run(t, a, "summary", "habits", "--from", "2025-03-15", "--to", "2025-03-14"); err == nil {
		t.Error("inverted range must fail")
	}
}

func TestStreaksCmd(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "record", "habits", "water")

	out := mustRun(t, a, "streaks", "habits")
	if fields := strings.Fields(strings.Split(out, "\n")[0]); len(fields) != 2 || fields[0] != "water" || fields[1] != "1" {
		t.Errorf("unexpected streaks output %q", out)
	}
}
