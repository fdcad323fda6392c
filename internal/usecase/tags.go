package usecase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"reflection-journal/internal/domain"
)

// ErrMalformedOutput marks a generation response that could not be parsed
// into the expected shape.
var ErrMalformedOutput = errors.New("usecase: malformed model output")

// parseEmotions reads a comma or newline separated label list. Unknown
// labels are dropped; at least one known label is required.
func parseEmotions(raw string) ([]domain.Emotion, error) {
	emotions := domain.EmotionsFromStrings(splitList(raw))
	if len(emotions) == 0 {
		return nil, fmt.Errorf("%w: no recognised emotion in %q", ErrMalformedOutput, truncate(raw, 80))
	}
	return emotions, nil
}

// parseTagList reads a comma or newline separated list where the None
// sentinel means nothing was detected. A blank response is malformed.
func parseTagList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty list", ErrMalformedOutput)
	}
	if domain.IsNoneSentinel(raw) {
		return []string{}, nil
	}
	return domain.NormalizeTags(splitList(raw)), nil
}

func parseSummary(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty summary", ErrMalformedOutput)
	}
	return s, nil
}

func parseAnswer(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty answer", ErrMalformedOutput)
	}
	return s, nil
}

// listMarker matches bullet or numbering prefixes such as "- ", "* " or "2) ".
var listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = listMarker.ReplaceAllString(strings.TrimSpace(f), "")
		f = strings.TrimSpace(strings.TrimRight(f, "."))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
