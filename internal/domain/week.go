package domain

import "time"

// WeeklySummary is the derived digest of one owner's entries for one
// Monday-aligned week.
type WeeklySummary struct {
	Owner     string `json:"owner"`
	WeekStart string `json:"weekStart"`
	WeekEnd   string `json:"weekEnd"`
	Summary   string `json:"summary"`
}

// WeekOf returns the Monday and Sunday of the ISO week containing t, at
// midnight UTC.
func WeekOf(t time.Time) (start, end time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start = day.AddDate(0, 0, -(weekday - 1))
	end = start.AddDate(0, 0, 6)
	return start, end
}
