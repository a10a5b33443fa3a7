package memory

import (
	"context"
	"errors"
	"testing"

	"tally/internal/kv"
)

func TestMemoryStoreSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Load(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	blob := []byte(`{"a":1}`)
	if err := s.Save(ctx, "k", blob); err != nil {
		t.Fatalf("save: %v", err)
	}
	blob[0] = 'X'

	got, err := s.Load(ctx, "k")
	if err != nil || string(got) != `{"a":1}` {
		t.Fatalf("unexpected load: %q err=%v", got, err)
	}
	got[0] = 'Y'
	again, _ := s.Load(ctx, "k")
	if string(again) != `{"a":1}` {
		t.Fatalf("stored blob was aliased: %q", again)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Keys() != 0 {
		t.Fatalf("expected empty store after delete")
	}
}

func TestNewSeeded(t *testing.T) {
	seed := map[string][]byte{"mood_counts": []byte("{}")}
	s := NewSeeded(seed)
	seed["mood_counts"][0] = 'X'
	got, err := s.Load(context.Background(), "mood_counts")
	if err != nil || string(got) != "{}" {
		t.Fatalf("unexpected seeded value: %q err=%v", got, err)
	}
}
