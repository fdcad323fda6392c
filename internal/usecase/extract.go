package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"reflection-journal/internal/domain"
)

// ErrEmptyConversation is returned when there is nothing to extract from.
var ErrEmptyConversation = errors.New("usecase: empty conversation")

// Extraction is the structured result of one finished conversation.
type Extraction struct {
	Summary  string
	Emotions []domain.Emotion
	People   []string
	Topics   []string
}

// Extractor turns a conversation into a summary and tag sets with four
// independent generation calls.
type Extractor struct {
	gen         Generator
	temperature float64
	attempts    int
}

func NewExtractor(gen Generator, temperature float64, attempts int) (*Extractor, error) {
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if attempts <= 0 {
		attempts = defaultExtractAttempts
	}
	return &Extractor{gen: gen, temperature: temperature, attempts: attempts}, nil
}

// Extract runs the summary, emotion, people and topic calls concurrently.
// day is the calendar day named in the summary instruction. Any call that
// keeps failing fails the whole extraction.
func (x *Extractor) Extract(ctx context.Context, turns []domain.Turn, day time.Time) (Extraction, error) {
	if len(turns) == 0 {
		return Extraction{}, ErrEmptyConversation
	}

	var out Extraction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msgs := instructed(turns, system(summarySystemPrompt), user(summaryUserPrompt(day.Format(domain.DateLayout))))
		var err error
		out.Summary, err = extractField(gctx, x, "summary", msgs, parseSummary)
		return err
	})
	g.Go(func() error {
		var err error
		out.Emotions, err = extractField(gctx, x, "emotions", instructed(turns, system(emotionSystemPrompt)), parseEmotions)
		return err
	})
	g.Go(func() error {
		var err error
		out.People, err = extractField(gctx, x, "people", instructed(turns, system(peopleSystemPrompt)), parseTagList)
		return err
	})
	g.Go(func() error {
		var err error
		out.Topics, err = extractField(gctx, x, "topics", instructed(turns, system(topicSystemPrompt)), parseTagList)
		return err
	})
	if err := g.Wait(); err != nil {
		return Extraction{}, err
	}
	return out, nil
}

func extractField[T any](ctx context.Context, x *Extractor, name string, msgs []domain.Turn, parse func(string) (T, error)) (T, error) {
	v, err := generateParsed(ctx, x.gen, msgs, x.temperature, x.attempts, parse)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("usecase: extract %s: %w", name, err)
	}
	return v, nil
}
