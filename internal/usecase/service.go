package usecase

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reflection-journal/internal/domain"
)

const (
	defaultTemperature     = 0.1
	defaultExtractAttempts = 3
	defaultMaxQuestion     = 500
	defaultMaxMessage      = 4000
	defaultMaxSessionTurns = 100

	// finishClaimTTL outlives the longest Lambda invocation.
	finishClaimTTL = 15 * time.Minute
)

// Generator produces chat completions. GenerateStream yields fragments whose
// concatenation equals the full response; an error is yielded at most once,
// as the last element.
type Generator interface {
	Generate(ctx context.Context, turns []domain.Turn, temperature float64) (string, error)
	GenerateStream(ctx context.Context, turns []domain.Turn, temperature float64) iter.Seq2[string, error]
}

type EntryStore interface {
	AppendEntry(ctx context.Context, e domain.Entry) (domain.Entry, error)
	ListEntries(ctx context.Context, owner string) ([]domain.Entry, error)
	CountEntries(ctx context.Context, owner string) (int, error)
	DeleteEntry(ctx context.Context, owner, id string) error
}

type WeeklyStore interface {
	UpsertWeeklySummary(ctx context.Context, w domain.WeeklySummary) error
	ListWeeklySummaries(ctx context.Context, owner string) ([]domain.WeeklySummary, error)
	DeleteWeeklySummary(ctx context.Context, owner, weekStart string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	AppendTurns(ctx context.Context, id string, expected int, turns ...domain.Turn) error
	// ClaimSession reserves the session for one Finish until the given
	// time; domain.ErrConflict while another claim is live.
	ClaimSession(ctx context.Context, id string, until time.Time) error
	ReleaseSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
}

// Settings tunes the journal service. Zero values select defaults.
type Settings struct {
	// Temperature is sent with every generation call; nil selects 0.1.
	Temperature       *float64
	ExtractAttempts   int
	MaxQuestionLength int
	MaxMessageLength  int
	// MaxContextChars bounds the Ask context; 0 means unbounded.
	MaxContextChars int
	MaxSessionTurns int
	// Location decides the calendar day and clock time stamped on entries.
	Location *time.Location
}

func (s Settings) withDefaults() Settings {
	if s.Temperature == nil {
		t := defaultTemperature
		s.Temperature = &t
	}
	if s.ExtractAttempts <= 0 {
		s.ExtractAttempts = defaultExtractAttempts
	}
	if s.MaxQuestionLength <= 0 {
		s.MaxQuestionLength = defaultMaxQuestion
	}
	if s.MaxMessageLength <= 0 {
		s.MaxMessageLength = defaultMaxMessage
	}
	if s.MaxContextChars < 0 {
		s.MaxContextChars = 0
	}
	if s.MaxSessionTurns <= 0 {
		s.MaxSessionTurns = defaultMaxSessionTurns
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	return s
}

// JournalService is the entry point for every journal operation.
type JournalService struct {
	gen      Generator
	entries  EntryStore
	weekly   WeeklyStore
	sessions SessionStore
	settings Settings
	logger   *slog.Logger

	// temperature is the resolved settings.Temperature.
	temperature float64

	extractor  *Extractor
	aggregator *WeeklyAggregator
	answerer   *QueryAnswerer

	now func() time.Time
}

func NewJournalService(gen Generator, entries EntryStore, weekly WeeklyStore, sessions SessionStore, settings Settings, logger *slog.Logger) (*JournalService, error) {
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if entries == nil {
		return nil, errors.New("usecase: entry store must not be nil")
	}
	if weekly == nil {
		return nil, errors.New("usecase: weekly store must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings = settings.withDefaults()
	temperature := *settings.Temperature

	extractor, err := NewExtractor(gen, temperature, settings.ExtractAttempts)
	if err != nil {
		return nil, err
	}
	aggregator, err := NewWeeklyAggregator(gen, entries, weekly, temperature, settings.ExtractAttempts, logger)
	if err != nil {
		return nil, err
	}
	answerer, err := NewQueryAnswerer(gen, entries, temperature, settings.ExtractAttempts, settings.MaxQuestionLength, settings.MaxContextChars)
	if err != nil {
		return nil, err
	}
	return &JournalService{
		gen:         gen,
		entries:     entries,
		weekly:      weekly,
		sessions:    sessions,
		settings:    settings,
		logger:      logger,
		temperature: temperature,
		extractor:   extractor,
		aggregator:  aggregator,
		answerer:    answerer,
		now:         time.Now,
	}, nil
}

// Ask answers a free-text question from all of the owner's entries.
func (s *JournalService) Ask(ctx context.Context, owner, question string) (string, error) {
	if owner == "" {
		return "", newError(ErrorInvalidInput, "missing_owner", nil)
	}
	return s.answerer.Ask(ctx, owner, question)
}

// SuggestedQuestions returns canned prompts for Ask.
func (s *JournalService) SuggestedQuestions() []string {
	return SuggestedQuestions()
}

var newUUID = func() string {
	return uuid.NewString()
}
