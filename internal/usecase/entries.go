package usecase

import (
	"context"
	"strings"
	"time"

	"reflection-journal/internal/domain"
)

// EntryFilter narrows ListEntries. Empty fields match everything; From and
// To are inclusive dates in domain.DateLayout.
type EntryFilter struct {
	Emotion string
	Person  string
	Topic   string
	From    string
	To      string
}

func (f EntryFilter) validate() error {
	if f.Emotion != "" {
		if _, ok := domain.ParseEmotion(f.Emotion); !ok {
			return newError(ErrorInvalidInput, "unknown_emotion", nil)
		}
	}
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, d); err != nil {
			return newError(ErrorInvalidInput, "invalid_date", err)
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return newError(ErrorInvalidInput, "invalid_date_range", nil)
	}
	return nil
}

func (f EntryFilter) match(e domain.Entry) bool {
	switch {
	case f.Emotion != "" && !e.HasEmotion(f.Emotion):
		return false
	case f.Person != "" && !e.HasPerson(f.Person):
		return false
	case f.Topic != "" && !e.HasTopic(f.Topic):
		return false
	case f.From != "" && e.Date < f.From:
		return false
	case f.To != "" && e.Date > f.To:
		return false
	}
	return true
}

// ListEntries returns the owner's entries newest first, filtered by f.
func (s *JournalService) ListEntries(ctx context.Context, owner string, f EntryFilter) ([]domain.Entry, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	f.Emotion = strings.TrimSpace(f.Emotion)
	f.Person = strings.TrimSpace(f.Person)
	f.Topic = strings.TrimSpace(f.Topic)
	if err := f.validate(); err != nil {
		return nil, err
	}
	entries, err := s.entries.ListEntries(ctx, owner)
	if err != nil {
		return nil, newError(ErrorInternal, "entry_read_error", err)
	}
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *JournalService) CountEntries(ctx context.Context, owner string) (int, error) {
	if err := requireOwner(owner); err != nil {
		return 0, err
	}
	n, err := s.entries.CountEntries(ctx, owner)
	if err != nil {
		return 0, newError(ErrorInternal, "entry_read_error", err)
	}
	return n, nil
}

// DeleteEntry removes the entry and refreshes its week. Deleting an unknown
// id succeeds without side effects.
func (s *JournalService) DeleteEntry(ctx context.Context, owner, id string) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return newError(ErrorInvalidInput, "missing_entry_id", nil)
	}
	entries, err := s.entries.ListEntries(ctx, owner)
	if err != nil {
		return newError(ErrorInternal, "entry_read_error", err)
	}
	var target *domain.Entry
	for i := range entries {
		if entries[i].ID == id {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return nil
	}
	if err := s.entries.DeleteEntry(ctx, owner, id); err != nil {
		return newError(ErrorInternal, "entry_delete_error", err)
	}
	s.logger.InfoContext(ctx, "journal entry deleted", "owner", owner, "entry_id", id)
	if err := s.refreshWeek(ctx, *target); err != nil {
		s.logger.ErrorContext(ctx, "weekly summary refresh failed", "owner", owner, "entry_id", id, "error", err)
	}
	return nil
}

func (s *JournalService) ListWeeklySummaries(ctx context.Context, owner string) ([]domain.WeeklySummary, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	out, err := s.weekly.ListWeeklySummaries(ctx, owner)
	if err != nil {
		return nil, newError(ErrorInternal, "weekly_read_error", err)
	}
	return out, nil
}

// RecomputeWeekly rebuilds all weekly summaries of owner and returns how many
// weeks were written.
func (s *JournalService) RecomputeWeekly(ctx context.Context, owner string) (int, error) {
	if err := requireOwner(owner); err != nil {
		return 0, err
	}
	n, err := s.aggregator.Recompute(ctx, owner)
	if err != nil {
		if isGenerationFailure(err) {
			return n, generationError(err)
		}
		return n, newError(ErrorInternal, "weekly_recompute_error", err)
	}
	return n, nil
}
