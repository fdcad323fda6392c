package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"reflection-journal/internal/domain"
)

// UpsertWeeklySummary writes or replaces the summary for (owner, week start).
func (s *Store) UpsertWeeklySummary(ctx context.Context, w domain.WeeklySummary) error {
	if w.Owner == "" || w.WeekStart == "" {
		return errors.New("sqlstore: UpsertWeeklySummary: owner and week start are required")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO weekly_summaries (owner, week_start, week_end, summary)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner, week_start) DO UPDATE
		SET week_end = excluded.week_end, summary = excluded.summary`),
		w.Owner, w.WeekStart, w.WeekEnd, w.Summary)
	if err != nil {
		return fmt.Errorf("sqlstore: UpsertWeeklySummary: %w", err)
	}
	return nil
}

// ListWeeklySummaries returns the owner's summaries, latest week first.
func (s *Store) ListWeeklySummaries(ctx context.Context, owner string) ([]domain.WeeklySummary, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT owner, week_start, week_end, summary
		FROM weekly_summaries WHERE owner = ?
		ORDER BY week_start DESC`), owner)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: ListWeeklySummaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.WeeklySummary{}
	for rows.Next() {
		var w domain.WeeklySummary
		if err := rows.Scan(&w.Owner, &w.WeekStart, &w.WeekEnd, &w.Summary); err != nil {
			return nil, fmt.Errorf("sqlstore: ListWeeklySummaries scan: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: ListWeeklySummaries: %w", err)
	}
	return out, nil
}

// DeleteWeeklySummary removes the summary for (owner, week start) if present.
func (s *Store) DeleteWeeklySummary(ctx context.Context, owner, weekStart string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM weekly_summaries WHERE owner = ? AND week_start = ?`), owner, weekStart)
	if err != nil {
		return fmt.Errorf("sqlstore: DeleteWeeklySummary: %w", err)
	}
	return nil
}
