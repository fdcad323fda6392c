package domain

import "strings"

// Emotion is a label from the fixed classification vocabulary.
type Emotion string

const (
	EmotionJoy         Emotion = "Joy"
	EmotionSadness     Emotion = "Sadness"
	EmotionFear        Emotion = "Fear"
	EmotionAnger       Emotion = "Anger"
	EmotionFrustration Emotion = "Frustration"
)

// Emotions lists the vocabulary in its canonical order.
var Emotions = []Emotion{EmotionJoy, EmotionSadness, EmotionFear, EmotionAnger, EmotionFrustration}

// ParseEmotion matches s against the vocabulary ignoring case and surrounding
// punctuation.
func ParseEmotion(s string) (Emotion, bool) {
	s = strings.Trim(strings.TrimSpace(s), ".;:!\"'`*")
	for _, e := range Emotions {
		if strings.EqualFold(s, string(e)) {
			return e, true
		}
	}
	return "", false
}

// EmotionStrings converts emotions to plain strings.
func EmotionStrings(in []Emotion) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		out = append(out, string(e))
	}
	return out
}

// EmotionsFromStrings keeps the recognised labels of in, deduplicated.
func EmotionsFromStrings(in []string) []Emotion {
	out := make([]Emotion, 0, len(in))
	seen := make(map[Emotion]bool, len(in))
	for _, s := range in {
		e, ok := ParseEmotion(s)
		if !ok || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
