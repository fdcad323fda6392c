package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reflection-journal/internal/domain"
)

var sampleTurns = []domain.Turn{
	{Role: domain.RoleUser, Text: "Work was stressful, Sam helped me out."},
	{Role: domain.RoleAssistant, Text: "That sounds hard. How did Sam help?"},
}

func newTestExtractor(t *testing.T, gen Generator, attempts int) *Extractor {
	t.Helper()
	x, err := NewExtractor(gen, 0.1, attempts)
	require.NoError(t, err)
	return x
}

func TestNewExtractor_NilGenerator(t *testing.T) {
	_, err := NewExtractor(nil, 0.1, 1)
	require.Error(t, err)
}

func TestExtract_EmptyConversationMakesNoCalls(t *testing.T) {
	gen := &fakeGenerator{respond: journalResponder}
	x := newTestExtractor(t, gen, 3)
	_, err := x.Extract(context.Background(), nil, testNow)
	require.ErrorIs(t, err, ErrEmptyConversation)
	require.Zero(t, gen.callCount())
}

func TestExtract_HappyPath(t *testing.T) {
	gen := &fakeGenerator{respond: journalResponder}
	x := newTestExtractor(t, gen, 3)

	got, err := x.Extract(context.Background(), sampleTurns, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "I talked about a stressful day at work.", got.Summary)
	require.Equal(t, []domain.Emotion{domain.EmotionFrustration, domain.EmotionJoy}, got.Emotions)
	require.Equal(t, []string{"Sam"}, got.People)
	require.Equal(t, []string{"work", "sleep"}, got.Topics)
	require.Equal(t, 4, gen.callCount())

	summary := gen.callsWith(summarySystemPrompt)
	require.Len(t, summary, 1)
	require.Contains(t, summary[0][1].Text, "Today's date is 2024-01-04.")
	require.Equal(t, sampleTurns, summary[0][2:])

	emotions := gen.callsWith(emotionSystemPrompt)
	require.Len(t, emotions, 1)
	require.Equal(t, sampleTurns, emotions[0][1:])
}

func TestExtract_NoneSentinelYieldsEmptySets(t *testing.T) {
	gen := &fakeGenerator{respond: func(msgs []domain.Turn) (string, error) {
		switch msgs[0].Text {
		case peopleSystemPrompt:
			return "None.", nil
		case topicSystemPrompt:
			return "none", nil
		}
		return journalResponder(msgs)
	}}
	got, err := newTestExtractor(t, gen, 1).Extract(context.Background(), sampleTurns, testNow)
	require.NoError(t, err)
	require.NotNil(t, got.People)
	require.Empty(t, got.People)
	require.Empty(t, got.Topics)
}

func TestExtract_RetriesMalformedCallOnly(t *testing.T) {
	var emotionCalls atomic.Int32
	gen := &fakeGenerator{respond: func(msgs []domain.Turn) (string, error) {
		if msgs[0].Text == emotionSystemPrompt {
			if emotionCalls.Add(1) == 1 {
				return "content", nil
			}
			return "Sadness", nil
		}
		return journalResponder(msgs)
	}}
	got, err := newTestExtractor(t, gen, 3).Extract(context.Background(), sampleTurns, testNow)
	require.NoError(t, err)
	require.Equal(t, []domain.Emotion{domain.EmotionSadness}, got.Emotions)
	require.Len(t, gen.callsWith(emotionSystemPrompt), 2)
	require.Len(t, gen.callsWith(summarySystemPrompt), 1)
}

func TestExtract_AttemptsExhausted(t *testing.T) {
	gen := &fakeGenerator{respond: func(msgs []domain.Turn) (string, error) {
		if msgs[0].Text == summarySystemPrompt {
			return "   ", nil
		}
		return journalResponder(msgs)
	}}
	_, err := newTestExtractor(t, gen, 2).Extract(context.Background(), sampleTurns, testNow)
	require.ErrorIs(t, err, ErrMalformedOutput)
	require.Contains(t, err.Error(), "summary")
	require.Len(t, gen.callsWith(summarySystemPrompt), 2)
}

func TestExtract_GeneratorErrorNotRetried(t *testing.T) {
	boom := errors.New("boom")
	gen := &fakeGenerator{respond: func(msgs []domain.Turn) (string, error) {
		if msgs[0].Text == topicSystemPrompt {
			return "", boom
		}
		return journalResponder(msgs)
	}}
	_, err := newTestExtractor(t, gen, 3).Extract(context.Background(), sampleTurns, testNow)
	require.ErrorIs(t, err, boom)
	require.Len(t, gen.callsWith(topicSystemPrompt), 1)
}

func TestExtract_EmotionsAlwaysWithinVocabulary(t *testing.T) {
	for _, raw := range []string{"Joy", "joy, hope, FEAR", "- Anger\n- Envy", "1. frustration\n2. sadness."} {
		gen := &fakeGenerator{respond: func(msgs []domain.Turn) (string, error) {
			if msgs[0].Text == emotionSystemPrompt {
				return raw, nil
			}
			return journalResponder(msgs)
		}}
		got, err := newTestExtractor(t, gen, 1).Extract(context.Background(), sampleTurns, testNow)
		require.NoError(t, err, raw)
		require.NotEmpty(t, got.Emotions, raw)
		for _, e := range got.Emotions {
			require.Contains(t, domain.Emotions, e, raw)
		}
		require.False(t, strings.Contains(strings.Join(domain.EmotionStrings(got.Emotions), ","), "Envy"))
	}
}
