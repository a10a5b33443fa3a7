package core

// CategoryCount is a count aggregated by category.
type CategoryCount struct {
	Category Category
	Count    int
}

// DayTotal is the sum across categories for one day.
type DayTotal struct {
	Day   DayKey
	Total int
}

// RangeSummary aggregates counts over an inclusive day range.
type RangeSummary struct {
	Tracker    string
	From       DayKey
	To         DayKey
	Total      int
	ByCategory []CategoryCount
	ByDay      []DayTotal
}
