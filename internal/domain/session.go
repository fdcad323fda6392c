package domain

import "time"

// Session is an in-progress journaling conversation. It is the only holder of
// the conversation buffer and is discarded once its entry is committed.
type Session struct {
	ID        string
	Owner     string
	Name      string
	Turns     []Turn
	StartedAt time.Time
}

// TurnCount returns the number of buffered turns.
func (s Session) TurnCount() int {
	return len(s.Turns)
}
