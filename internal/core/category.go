package core

import (
	"errors"
	"strings"
)

type (
	// Category is one member of a tracker's closed enumeration.
	// Ordinal is the persisted identity; Name is the stable lookup key.
	Category struct {
		Ordinal int
		Name    string
		Label   string
		Color   string
	}

	// Tracker is a fixed set of categories persisted under one storage key.
	Tracker struct {
		Name       string
		StorageKey string
		Categories []Category
	}
)

var ErrUnknownCategory = errors.New("unknown category")

var (
	Habits = Tracker{
		Name:       "habits",
		StorageKey: "habit_counts",
		Categories: []Category{
			{Ordinal: 0, Name: "water", Label: "Water", Color: "#3B82F6"},
			{Ordinal: 1, Name: "move", Label: "Move", Color: "#22C55E"},
			{Ordinal: 2, Name: "breath", Label: "Breath", Color: "#A855F7"},
		},
	}

	Moods = Tracker{
		Name:       "moods",
		StorageKey: "mood_counts",
		Categories: []Category{
			{Ordinal: 0, Name: "happy", Label: "Happy", Color: "#FACC15"},
			{Ordinal: 1, Name: "okay", Label: "Okay", Color: "#60A5FA"},
			{Ordinal: 2, Name: "meh", Label: "Meh", Color: "#9CA3AF"},
			{Ordinal: 3, Name: "sad", Label: "Sad", Color: "#8B5CF6"},
		},
	}
)

// Trackers returns copies of every built-in tracker.
func Trackers() []Tracker {
	return []Tracker{Habits.Clone(), Moods.Clone()}
}

// Clone returns a copy of t that shares no category storage with it.
func (t Tracker) Clone() Tracker {
	t.Categories = append([]Category(nil), t.Categories...)
	return t
}

// Lookup finds a category by name, case-insensitively.
func (t Tracker) Lookup(name string) (Category, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range t.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// ByOrdinal finds a category by its persisted ordinal.
func (t Tracker) ByOrdinal(ordinal int) (Category, bool) {
	for _, c := range t.Categories {
		if c.Ordinal == ordinal {
			return c, true
		}
	}
	return Category{}, false
}

// Has reports whether c belongs to the tracker.
func (t Tracker) Has(c Category) bool {
	got, ok := t.ByOrdinal(c.Ordinal)
	return ok && got.Name == c.Name
}

func (t Tracker) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("tracker name cannot be empty")
	}
	if strings.TrimSpace(t.StorageKey) == "" {
		return errors.New("tracker storage key cannot be empty")
	}
	if len(t.Categories) == 0 {
		return errors.New("tracker must have at least one category")
	}
	seenOrd := map[int]struct{}{}
	seenName := map[string]struct{}{}
	for _, c := range t.Categories {
		if c.Ordinal < 0 {
			return errors.New("category ordinal must be non-negative")
		}
		if _, ok := seenOrd[c.Ordinal]; ok {
			return errors.New("duplicate category ordinal")
		}
		if _, ok := seenName[c.Name]; ok {
			return errors.New("duplicate category name")
		}
		seenOrd[c.Ordinal] = struct{}{}
		seenName[c.Name] = struct{}{}
	}
	return nil
}

// FindTracker looks up a built-in tracker by name and returns a copy.
func FindTracker(name string) (Tracker, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range Trackers() {
		if t.Name == name {
			return t, true
		}
	}
	return Tracker{}, false
}
