package usecase

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reflection-journal/internal/domain"
	"reflection-journal/internal/integrations/openai"
)

func init() {
	retryInitialInterval = time.Millisecond
	retryMaxInterval = 2 * time.Millisecond
}

type fakeGenerator struct {
	mu        sync.Mutex
	respond   func(msgs []domain.Turn) (string, error)
	fragments []string
	streamErr error
	calls     [][]domain.Turn
	streams   [][]domain.Turn
	temps     []float64
}

func (f *fakeGenerator) Generate(_ context.Context, turns []domain.Turn, temperature float64) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, turns)
	f.temps = append(f.temps, temperature)
	f.mu.Unlock()
	if f.respond == nil {
		return "", fmt.Errorf("no response configured")
	}
	return f.respond(turns)
}

func (f *fakeGenerator) GenerateStream(_ context.Context, turns []domain.Turn, temperature float64) iter.Seq2[string, error] {
	f.mu.Lock()
	f.streams = append(f.streams, turns)
	f.temps = append(f.temps, temperature)
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// callsWith returns the calls whose first turn is the given system prompt.
func (f *fakeGenerator) callsWith(systemPrompt string) [][]domain.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]domain.Turn
	for _, c := range f.calls {
		if len(c) > 0 && c[0].Text == systemPrompt {
			out = append(out, c)
		}
	}
	return out
}

// sequence answers calls with responses in order, repeating the last one.
func sequence(responses ...string) func([]domain.Turn) (string, error) {
	var mu sync.Mutex
	n := 0
	return func([]domain.Turn) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		r := responses[min(n, len(responses)-1)]
		n++
		return r, nil
	}
}

// journalResponder answers every prompt kind with a well-formed response.
func journalResponder(msgs []domain.Turn) (string, error) {
	switch msgs[0].Text {
	case summarySystemPrompt:
		return "I talked about a stressful day at work.", nil
	case emotionSystemPrompt:
		return "Frustration, joy", nil
	case peopleSystemPrompt:
		return "Sam", nil
	case topicSystemPrompt:
		return "work, Work, sleep", nil
	case weeklySystemPrompt:
		return "A busy week.", nil
	case answerSystemPrompt:
		return "You enjoy running.", nil
	}
	return "", fmt.Errorf("unexpected prompt %q", msgs[0].Text)
}

type memStore struct {
	mu       sync.Mutex
	nextID   int
	entries  []domain.Entry
	weekly   map[string]domain.WeeklySummary
	sessions map[string]domain.Session
	claims   map[string]time.Time

	appendErr       error
	listErr         error
	upsertErr       error
	appendTurnsErr  error
	deleteSessErr   error
	claimErr        error
	releaseCalls    int
	upsertCalls     int
	deleteWeekCalls int
}

func newMemStore() *memStore {
	return &memStore{
		weekly:   map[string]domain.WeeklySummary{},
		sessions: map[string]domain.Session{},
		claims:   map[string]time.Time{},
	}
}

func weeklyKey(owner, weekStart string) string { return owner + "|" + weekStart }

func (m *memStore) AppendEntry(_ context.Context, e domain.Entry) (domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return domain.Entry{}, m.appendErr
	}
	m.nextID++
	e.ID = fmt.Sprintf("e%d", m.nextID)
	e.People = domain.NormalizeTags(e.People)
	e.Topics = domain.NormalizeTags(e.Topics)
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memStore) ListEntries(_ context.Context, owner string) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []domain.Entry{}
	for _, e := range m.entries {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortKey() > out[j].SortKey() })
	return out, nil
}

func (m *memStore) CountEntries(ctx context.Context, owner string) (int, error) {
	list, err := m.ListEntries(ctx, owner)
	return len(list), err
}

func (m *memStore) DeleteEntry(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.entries[:0]
	for _, e := range m.entries {
		if e.Owner == owner && e.ID == id {
			continue
		}
		out = append(out, e)
	}
	m.entries = out
	return nil
}

func (m *memStore) UpsertWeeklySummary(_ context.Context, w domain.WeeklySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.weekly[weeklyKey(w.Owner, w.WeekStart)] = w
	return nil
}

func (m *memStore) ListWeeklySummaries(_ context.Context, owner string) ([]domain.WeeklySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.WeeklySummary{}
	for _, w := range m.weekly {
		if w.Owner == owner {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart > out[j].WeekStart })
	return out, nil
}

func (m *memStore) DeleteWeeklySummary(_ context.Context, owner, weekStart string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteWeekCalls++
	delete(m.weekly, weeklyKey(owner, weekStart))
	return nil
}

func (m *memStore) CreateSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	s.Turns = append([]domain.Turn(nil), s.Turns...)
	return s, nil
}

func (m *memStore) AppendTurns(_ context.Context, id string, expected int, turns ...domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendTurnsErr != nil {
		return m.appendTurnsErr
	}
	s, ok := m.sessions[id]
	if _, claimed := m.claims[id]; !ok || claimed || len(s.Turns) != expected {
		return domain.ErrConflict
	}
	s.Turns = append(s.Turns, turns...)
	m.sessions[id] = s
	return nil
}

// ClaimSession ignores the expiry; tests release claims explicitly.
func (m *memStore) ClaimSession(_ context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return m.claimErr
	}
	if _, ok := m.sessions[id]; !ok {
		return domain.ErrConflict
	}
	if _, held := m.claims[id]; held {
		return domain.ErrConflict
	}
	m.claims[id] = until
	return nil
}

func (m *memStore) ReleaseSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++
	delete(m.claims, id)
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteSessErr != nil {
		return m.deleteSessErr
	}
	delete(m.sessions, id)
	return nil
}

func (m *memStore) addEntry(owner, date, tm, summary string) domain.Entry {
	e, _ := m.AppendEntry(context.Background(), domain.Entry{
		Owner: owner, Date: date, Time: tm, Summary: summary,
		Emotions: []domain.Emotion{domain.EmotionJoy},
	})
	return e
}

func rateLimited() error {
	return fmt.Errorf("openai: request failed: %w", &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests, Body: "slow down"})
}

var testNow = time.Date(2024, 1, 4, 21, 15, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, gen Generator, store *memStore, settings Settings) *JournalService {
	t.Helper()
	svc, err := NewJournalService(gen, store, store, store, settings, discardLogger())
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc
}

func requireCode(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, code, uerr.Code)
	if reason != "" {
		require.Equal(t, reason, uerr.Reason)
	}
}
