package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Entry is one persisted journal record derived from a finished session.
type Entry struct {
	ID       string    `json:"id"`
	Owner    string    `json:"owner"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
	Summary  string    `json:"summary"`
	Emotions []Emotion `json:"emotions"`
	People   []string  `json:"people"`
	Topics   []string  `json:"topics"`
}

// Day parses the entry date in UTC.
func (e Entry) Day() (time.Time, error) {
	d, err := time.Parse(DateLayout, e.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("domain: entry %s: parse date %q: %w", e.ID, e.Date, err)
	}
	return d, nil
}

// SortKey orders entries by (date, time); it compares lexically.
func (e Entry) SortKey() string {
	return e.Date + "#" + e.Time
}

// HasEmotion reports whether the entry carries the emotion, ignoring case.
func (e Entry) HasEmotion(name string) bool {
	for _, em := range e.Emotions {
		if strings.EqualFold(string(em), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// HasPerson reports whether the entry mentions the person, ignoring case.
func (e Entry) HasPerson(name string) bool {
	return containsFold(e.People, name)
}

// HasTopic reports whether the entry discusses the topic, ignoring case.
func (e Entry) HasTopic(name string) bool {
	return containsFold(e.Topics, name)
}

func containsFold(values []string, want string) bool {
	want = strings.TrimSpace(want)
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
