package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reflection-journal/internal/domain"
)

const owner = "a@example.com"

func newTestAggregator(t *testing.T, gen Generator, store *memStore) *WeeklyAggregator {
	t.Helper()
	a, err := NewWeeklyAggregator(gen, store, store, 0.1, 3, discardLogger())
	require.NoError(t, err)
	return a
}

func TestNewWeeklyAggregator_Validation(t *testing.T) {
	store := newMemStore()
	_, err := NewWeeklyAggregator(nil, store, store, 0.1, 1, nil)
	require.Error(t, err)
	_, err = NewWeeklyAggregator(&fakeGenerator{}, nil, store, 0.1, 1, nil)
	require.Error(t, err)
	_, err = NewWeeklyAggregator(&fakeGenerator{}, store, nil, 0.1, 1, nil)
	require.Error(t, err)
}

func TestRecompute_GroupsIntoMondayWeek(t *testing.T) {
	store := newMemStore()
	store.addEntry(owner, "2024-01-04", "20:00:00", "Thursday dinner with Sam.")
	store.addEntry(owner, "2024-01-02", "08:00:00", "Tuesday run.")
	gen := &fakeGenerator{respond: journalResponder}

	n, err := newTestAggregator(t, gen, store).Recompute(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, gen.callCount())

	rows, err := store.ListWeeklySummaries(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, []domain.WeeklySummary{{
		Owner: owner, WeekStart: "2024-01-01", WeekEnd: "2024-01-07", Summary: "A busy week.",
	}}, rows)

	prompt := gen.calls[0][1].Text
	require.Contains(t, prompt, "from 2024-01-01 to 2024-01-07")
	tue := strings.Index(prompt, "(2024-01-02): Tuesday run.")
	thu := strings.Index(prompt, "(2024-01-04): Thursday dinner with Sam.")
	require.True(t, tue >= 0 && thu > tue, "entries must be chronological")
}

func TestRecompute_IsIdempotent(t *testing.T) {
	store := newMemStore()
	store.addEntry(owner, "2024-01-02", "08:00:00", "a")
	store.addEntry(owner, "2024-01-16", "08:00:00", "b")
	a := newTestAggregator(t, &fakeGenerator{respond: journalResponder}, store)

	_, err := a.Recompute(context.Background(), owner)
	require.NoError(t, err)
	first, err := store.ListWeeklySummaries(context.Background(), owner)
	require.NoError(t, err)

	_, err = a.Recompute(context.Background(), owner)
	require.NoError(t, err)
	second, err := store.ListWeeklySummaries(context.Background(), owner)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, second, 2, "the empty week in between gets no row")
	require.Equal(t, "2024-01-15", second[0].WeekStart)
	require.Equal(t, "2024-01-01", second[1].WeekStart)
}

func TestRecompute_DeletesStaleWeeks(t *testing.T) {
	store := newMemStore()
	store.addEntry(owner, "2024-01-02", "08:00:00", "a")
	store.weekly[weeklyKey(owner, "2023-12-25")] = domain.WeeklySummary{Owner: owner, WeekStart: "2023-12-25", WeekEnd: "2023-12-31", Summary: "old"}
	store.weekly[weeklyKey("other@example.com", "2023-12-25")] = domain.WeeklySummary{Owner: "other@example.com", WeekStart: "2023-12-25"}

	_, err := newTestAggregator(t, &fakeGenerator{respond: journalResponder}, store).Recompute(context.Background(), owner)
	require.NoError(t, err)

	rows, _ := store.ListWeeklySummaries(context.Background(), owner)
	require.Len(t, rows, 1)
	require.Equal(t, "2024-01-01", rows[0].WeekStart)
	others, _ := store.ListWeeklySummaries(context.Background(), "other@example.com")
	require.Len(t, others, 1)
}

func TestRecompute_NoEntries(t *testing.T) {
	store := newMemStore()
	gen := &fakeGenerator{respond: journalResponder}
	n, err := newTestAggregator(t, gen, store).Recompute(context.Background(), owner)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, gen.callCount())
}

func TestRecompute_GeneratorError(t *testing.T) {
	store := newMemStore()
	store.addEntry(owner, "2024-01-02", "08:00:00", "a")
	gen := &fakeGenerator{respond: func([]domain.Turn) (string, error) { return "", errors.New("boom") }}
	_, err := newTestAggregator(t, gen, store).Recompute(context.Background(), owner)
	require.Error(t, err)
	require.Zero(t, store.upsertCalls)
}

func TestRecompute_ListError(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("boom")
	_, err := newTestAggregator(t, &fakeGenerator{respond: journalResponder}, store).Recompute(context.Background(), owner)
	require.Error(t, err)
}

func TestRecomputeWeek_OnlyTouchesThatWeek(t *testing.T) {
	store := newMemStore()
	store.addEntry(owner, "2024-01-02", "08:00:00", "a")
	store.addEntry(owner, "2024-01-16", "08:00:00", "b")
	gen := &fakeGenerator{respond: journalResponder}

	err := newTestAggregator(t, gen, store).RecomputeWeek(context.Background(), owner, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, gen.callCount())
	rows, _ := store.ListWeeklySummaries(context.Background(), owner)
	require.Len(t, rows, 1)
	require.Equal(t, "2024-01-15", rows[0].WeekStart)
	require.Equal(t, "2024-01-21", rows[0].WeekEnd)
}

func TestRecomputeWeek_EmptyWeekDeletesRow(t *testing.T) {
	store := newMemStore()
	store.weekly[weeklyKey(owner, "2024-01-01")] = domain.WeeklySummary{Owner: owner, WeekStart: "2024-01-01", WeekEnd: "2024-01-07"}
	gen := &fakeGenerator{respond: journalResponder}

	err := newTestAggregator(t, gen, store).RecomputeWeek(context.Background(), owner, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, gen.callCount())
	require.Empty(t, store.weekly)
}

func TestOwnerLocks_SerializeSameOwner(t *testing.T) {
	var l ownerLocks
	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock(owner)
			defer unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxActive)
}

func TestRecompute_RetriesBlankSummary(t *testing.T) {
	store := newMemStore()
	store.addEntry(owner, "2024-01-02", "08:00:00", "Tuesday run.")
	gen := &fakeGenerator{respond: sequence("   ", "A quiet week of running.")}

	n, err := newTestAggregator(t, gen, store).Recompute(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 2, gen.callCount())
	rows, _ := store.ListWeeklySummaries(context.Background(), owner)
	require.Len(t, rows, 1)
	require.Equal(t, "A quiet week of running.", rows[0].Summary)
}

func TestRecompute_BlankSummaryExhaustsAttempts(t *testing.T) {
	store := newMemStore()
	store.addEntry(owner, "2024-01-02", "08:00:00", "Tuesday run.")
	gen := &fakeGenerator{respond: sequence("")}

	_, err := newTestAggregator(t, gen, store).Recompute(context.Background(), owner)
	require.ErrorIs(t, err, ErrMalformedOutput)
	require.Equal(t, 3, gen.callCount())
	require.Zero(t, store.upsertCalls)
}
