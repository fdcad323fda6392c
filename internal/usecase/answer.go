package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// QueryAnswerer answers questions with every entry of the owner as context.
type QueryAnswerer struct {
	gen             Generator
	entries         entryLister
	temperature     float64
	attempts        int
	maxQuestionLen  int
	maxContextChars int
}

func NewQueryAnswerer(gen Generator, entries entryLister, temperature float64, attempts, maxQuestionLen, maxContextChars int) (*QueryAnswerer, error) {
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if entries == nil {
		return nil, errors.New("usecase: entry store must not be nil")
	}
	if attempts <= 0 {
		attempts = defaultExtractAttempts
	}
	if maxQuestionLen <= 0 {
		maxQuestionLen = defaultMaxQuestion
	}
	return &QueryAnswerer{
		gen:             gen,
		entries:         entries,
		temperature:     temperature,
		attempts:        attempts,
		maxQuestionLen:  maxQuestionLen,
		maxContextChars: maxContextChars,
	}, nil
}

// Ask makes one generation call, also when the owner has no entries. A blank
// answer is retried up to the configured attempts.
func (q *QueryAnswerer) Ask(ctx context.Context, owner, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", newError(ErrorInvalidInput, "empty_question", nil)
	}
	if utf8.RuneCountInString(question) > q.maxQuestionLen {
		return "", newError(ErrorInvalidInput, "question_too_long", nil)
	}

	entries, err := q.entries.ListEntries(ctx, owner)
	if err != nil {
		return "", newError(ErrorInternal, "entry_read_error", err)
	}

	blocks := make([]string, 0, len(entries))
	size := 0
	for _, e := range entries {
		block := renderEntry(e)
		if q.maxContextChars > 0 {
			grow := len(block)
			if len(blocks) > 0 {
				grow += 2
			}
			if size+grow > q.maxContextChars {
				break
			}
			size += grow
		}
		blocks = append(blocks, block)
	}

	msgs := answerPrompt(strings.Join(blocks, "\n\n"), question)
	answer, err := generateParsed(ctx, q.gen, msgs, q.temperature, q.attempts, parseAnswer)
	if err != nil {
		return "", generationError(err)
	}
	return answer, nil
}
