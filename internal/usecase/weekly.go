package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"reflection-journal/internal/domain"
)

type entryLister interface {
	ListEntries(ctx context.Context, owner string) ([]domain.Entry, error)
}

// WeeklyAggregator derives one summary per owner and Monday-aligned week
// from the stored entries.
type WeeklyAggregator struct {
	gen         Generator
	entries     entryLister
	weekly      WeeklyStore
	temperature float64
	attempts    int
	logger      *slog.Logger
	locks       ownerLocks
}

// NewWeeklyAggregator creates a WeeklyAggregator. attempts bounds the calls
// made for one week when the model returns a blank summary.
func NewWeeklyAggregator(gen Generator, entries entryLister, weekly WeeklyStore, temperature float64, attempts int, logger *slog.Logger) (*WeeklyAggregator, error) {
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if entries == nil {
		return nil, errors.New("usecase: entry store must not be nil")
	}
	if weekly == nil {
		return nil, errors.New("usecase: weekly store must not be nil")
	}
	if attempts <= 0 {
		attempts = defaultExtractAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeeklyAggregator{gen: gen, entries: entries, weekly: weekly, temperature: temperature, attempts: attempts, logger: logger}, nil
}

type weekBucket struct {
	start, end time.Time
	entries    []domain.Entry
}

// Recompute rebuilds every weekly summary of owner from scratch. Weeks
// without entries get no row, and rows left over from such weeks are
// removed. It returns the number of summaries written.
func (a *WeeklyAggregator) Recompute(ctx context.Context, owner string) (int, error) {
	unlock := a.locks.lock(owner)
	defer unlock()

	buckets, err := a.buckets(ctx, owner)
	if err != nil {
		return 0, err
	}

	written := 0
	keep := make(map[string]bool, len(buckets))
	if len(buckets) > 0 {
		first, last := buckets[0].start, buckets[len(buckets)-1].start
		byStart := make(map[string]weekBucket, len(buckets))
		for _, b := range buckets {
			byStart[b.start.Format(domain.DateLayout)] = b
		}
		for week := first; !week.After(last); week = week.AddDate(0, 0, 7) {
			key := week.Format(domain.DateLayout)
			b, ok := byStart[key]
			if !ok {
				continue
			}
			if err := a.summarize(ctx, owner, b); err != nil {
				return written, err
			}
			keep[key] = true
			written++
		}
	}

	existing, err := a.weekly.ListWeeklySummaries(ctx, owner)
	if err != nil {
		return written, fmt.Errorf("usecase: list weekly summaries: %w", err)
	}
	for _, w := range existing {
		if keep[w.WeekStart] {
			continue
		}
		if err := a.weekly.DeleteWeeklySummary(ctx, owner, w.WeekStart); err != nil {
			return written, fmt.Errorf("usecase: delete stale week %s: %w", w.WeekStart, err)
		}
	}
	a.logger.InfoContext(ctx, "weekly summaries recomputed", "owner", owner, "weeks", written)
	return written, nil
}

// RecomputeWeek rebuilds the summary of the week containing day, deleting
// the row when that week no longer has entries.
func (a *WeeklyAggregator) RecomputeWeek(ctx context.Context, owner string, day time.Time) error {
	unlock := a.locks.lock(owner)
	defer unlock()

	start, _ := domain.WeekOf(day)
	buckets, err := a.buckets(ctx, owner)
	if err != nil {
		return err
	}
	for _, b := range buckets {
		if b.start.Equal(start) {
			return a.summarize(ctx, owner, b)
		}
	}
	weekStart := start.Format(domain.DateLayout)
	if err := a.weekly.DeleteWeeklySummary(ctx, owner, weekStart); err != nil {
		return fmt.Errorf("usecase: delete empty week %s: %w", weekStart, err)
	}
	return nil
}

// buckets groups the owner's entries by week, oldest week first, with the
// entries of each week in chronological order.
func (a *WeeklyAggregator) buckets(ctx context.Context, owner string) ([]weekBucket, error) {
	entries, err := a.entries.ListEntries(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("usecase: list entries: %w", err)
	}
	sorted := append([]domain.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SortKey() < sorted[j].SortKey() })

	var out []weekBucket
	for _, e := range sorted {
		d, err := e.Day()
		if err != nil {
			return nil, fmt.Errorf("usecase: %w", err)
		}
		start, end := domain.WeekOf(d)
		if n := len(out); n > 0 && out[n-1].start.Equal(start) {
			out[n-1].entries = append(out[n-1].entries, e)
			continue
		}
		out = append(out, weekBucket{start: start, end: end, entries: []domain.Entry{e}})
	}
	return out, nil
}

func (a *WeeklyAggregator) summarize(ctx context.Context, owner string, b weekBucket) error {
	start := b.start.Format(domain.DateLayout)
	end := b.end.Format(domain.DateLayout)
	summary, err := generateParsed(ctx, a.gen, weeklyPrompt(start, end, b.entries), a.temperature, a.attempts, parseSummary)
	if err != nil {
		return fmt.Errorf("usecase: summarize week %s: %w", start, err)
	}
	if err := a.weekly.UpsertWeeklySummary(ctx, domain.WeeklySummary{
		Owner:     owner,
		WeekStart: start,
		WeekEnd:   end,
		Summary:   summary,
	}); err != nil {
		return fmt.Errorf("usecase: upsert week %s: %w", start, err)
	}
	return nil
}

// ownerLocks serializes work per owner within this process.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *ownerLocks) lock(owner string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[owner]
	if !ok {
		m = &sync.Mutex{}
		l.locks[owner] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
