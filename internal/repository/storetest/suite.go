// Package storetest holds a behavioral suite every journal store backend
// must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"reflection-journal/internal/domain"
)

// Store is the union of the entry, weekly and session stores.
type Store interface {
	AppendEntry(ctx context.Context, e domain.Entry) (domain.Entry, error)
	ListEntries(ctx context.Context, owner string) ([]domain.Entry, error)
	CountEntries(ctx context.Context, owner string) (int, error)
	DeleteEntry(ctx context.Context, owner, id string) error

	UpsertWeeklySummary(ctx context.Context, w domain.WeeklySummary) error
	ListWeeklySummaries(ctx context.Context, owner string) ([]domain.WeeklySummary, error)
	DeleteWeeklySummary(ctx context.Context, owner, weekStart string) error

	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	AppendTurns(ctx context.Context, id string, expected int, turns ...domain.Turn) error
	ClaimSession(ctx context.Context, id string, until time.Time) error
	ReleaseSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
}

// Run exercises the suite against a clean store returned by makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) Store) {
	t.Helper()
	t.Run("Entries", func(t *testing.T) { testEntries(t, makeStore(t)) })
	t.Run("TagValues", func(t *testing.T) { testTagValues(t, makeStore(t)) })
	t.Run("Weekly", func(t *testing.T) { testWeekly(t, makeStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, makeStore(t)) })
	t.Run("SessionClaims", func(t *testing.T) { testSessionClaims(t, makeStore(t)) })
}

func testEntries(t *testing.T, s Store) {
	ctx := context.Background()
	owner := "u-" + uuid.NewString() + "@example.test"
	other := "v-" + uuid.NewString() + "@example.test"

	n, err := s.CountEntries(ctx, owner)
	require.NoError(t, err)
	require.Zero(t, n)

	e1, err := s.AppendEntry(ctx, domain.Entry{
		Owner: owner, Date: "2024-01-02", Time: "08:00:00", Summary: "Morning run.",
		Emotions: []domain.Emotion{domain.EmotionJoy},
		People:   []string{"None"},
		Topics:   []string{"running", "health"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, e1.ID)

	e2, err := s.AppendEntry(ctx, domain.Entry{
		Owner: owner, Date: "2024-01-04", Time: "21:15:00", Summary: "Argued with Sam.",
		Emotions: []domain.Emotion{domain.EmotionAnger, domain.EmotionSadness},
		People:   []string{"Sam"},
		Topics:   []string{},
	})
	require.NoError(t, err)
	require.NotEqual(t, e1.ID, e2.ID)

	_, err = s.AppendEntry(ctx, domain.Entry{Owner: other, Date: "2024-01-03", Time: "12:00:00", Summary: "x"})
	require.NoError(t, err)

	list, err := s.ListEntries(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, e2.ID, list[0].ID, "newest first")
	require.Equal(t, []domain.Emotion{domain.EmotionAnger, domain.EmotionSadness}, list[0].Emotions)
	require.Equal(t, []string{"Sam"}, list[0].People)
	require.Empty(t, list[0].Topics)
	require.Empty(t, list[1].People)
	require.Equal(t, []string{"running", "health"}, list[1].Topics)
	require.Equal(t, "Morning run.", list[1].Summary)

	n, err = s.CountEntries(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Deleting another owner's id is a no-op.
	require.NoError(t, s.DeleteEntry(ctx, other, e1.ID))
	n, err = s.CountEntries(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.DeleteEntry(ctx, owner, e1.ID))
	require.NoError(t, s.DeleteEntry(ctx, owner, e1.ID))
	list, err = s.ListEntries(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, e2.ID, list[0].ID)
}

// testTagValues checks tags come back exactly as written, commas included.
func testTagValues(t *testing.T, s Store) {
	ctx := context.Background()
	owner := "u-" + uuid.NewString() + "@example.test"

	_, err := s.AppendEntry(ctx, domain.Entry{
		Owner: owner, Date: "2024-02-01", Time: "19:00:00", Summary: "Dinner with the Smiths.",
		Emotions: []domain.Emotion{domain.EmotionJoy},
		People:   []string{"Smith, John", "Dr. Lee"},
		Topics:   []string{"None, really", "food; wine"},
	})
	require.NoError(t, err)

	list, err := s.ListEntries(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, []string{"Smith, John", "Dr. Lee"}, list[0].People)
	require.Equal(t, []string{"None, really", "food; wine"}, list[0].Topics)
}

func testWeekly(t *testing.T, s Store) {
	ctx := context.Background()
	owner := "u-" + uuid.NewString() + "@example.test"

	w := domain.WeeklySummary{Owner: owner, WeekStart: "2024-01-01", WeekEnd: "2024-01-07", Summary: "first"}
	require.NoError(t, s.UpsertWeeklySummary(ctx, w))
	w.Summary = "second"
	require.NoError(t, s.UpsertWeeklySummary(ctx, w))
	require.NoError(t, s.UpsertWeeklySummary(ctx, domain.WeeklySummary{Owner: owner, WeekStart: "2024-01-08", WeekEnd: "2024-01-14", Summary: "later"}))

	list, err := s.ListWeeklySummaries(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2, "upsert keeps one row per week")
	require.Equal(t, "2024-01-08", list[0].WeekStart)
	require.Equal(t, "second", list[1].Summary)

	require.NoError(t, s.DeleteWeeklySummary(ctx, owner, "2024-01-08"))
	require.NoError(t, s.DeleteWeeklySummary(ctx, owner, "2030-01-07"))
	list, err = s.ListWeeklySummaries(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func testSessions(t *testing.T, s Store) {
	ctx := context.Background()
	id := uuid.NewString()
	started := time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)

	_, err := s.GetSession(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.CreateSession(ctx, domain.Session{ID: id, Owner: "a@example.test", Name: "Ana", StartedAt: started}))

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Ana", got.Name)
	require.True(t, started.Equal(got.StartedAt))
	require.Zero(t, got.TurnCount())

	require.NoError(t, s.AppendTurns(ctx, id, 0,
		domain.Turn{Role: domain.RoleUser, Text: "I slept badly."},
		domain.Turn{Role: domain.RoleAssistant, Text: "What kept you up?"},
	))
	err = s.AppendTurns(ctx, id, 0, domain.Turn{Role: domain.RoleUser, Text: "stale"})
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, s.AppendTurns(ctx, id, 2, domain.Turn{Role: domain.RoleUser, Text: "Work."}))

	got, err = s.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Text: "I slept badly."},
		{Role: domain.RoleAssistant, Text: "What kept you up?"},
		{Role: domain.RoleUser, Text: "Work."},
	}, got.Turns)

	require.NoError(t, s.DeleteSession(ctx, id))
	require.NoError(t, s.DeleteSession(ctx, id))
	_, err = s.GetSession(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testSessionClaims(t *testing.T, s Store) {
	ctx := context.Background()
	id := uuid.NewString()
	later := time.Now().Add(time.Hour)

	require.ErrorIs(t, s.ClaimSession(ctx, id, later), domain.ErrConflict, "missing session")
	require.NoError(t, s.ReleaseSession(ctx, id), "release of a missing session")

	require.NoError(t, s.CreateSession(ctx, domain.Session{ID: id, Owner: "a@example.test", StartedAt: time.Now()}))
	require.NoError(t, s.AppendTurns(ctx, id, 0, domain.Turn{Role: domain.RoleUser, Text: "Long day."}))

	require.NoError(t, s.ClaimSession(ctx, id, later))
	require.ErrorIs(t, s.ClaimSession(ctx, id, later), domain.ErrConflict)
	err := s.AppendTurns(ctx, id, 1, domain.Turn{Role: domain.RoleAssistant, Text: "Tell me."})
	require.ErrorIs(t, err, domain.ErrConflict, "no turns while finishing")

	require.NoError(t, s.ReleaseSession(ctx, id))
	require.NoError(t, s.AppendTurns(ctx, id, 1, domain.Turn{Role: domain.RoleAssistant, Text: "Tell me."}))

	// An expired claim does not block a new one.
	require.NoError(t, s.ClaimSession(ctx, id, time.Now().Add(-time.Minute)))
	require.NoError(t, s.ClaimSession(ctx, id, later))

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, got.TurnCount())
}
