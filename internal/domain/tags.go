package domain

import "strings"

// NoneSentinel is the literal the model returns when it detected nothing.
const NoneSentinel = "None"

// IsNoneSentinel reports whether s is the "nothing detected" literal.
func IsNoneSentinel(s string) bool {
	return strings.EqualFold(strings.Trim(strings.TrimSpace(s), ".\"'`*"), NoneSentinel)
}

// NormalizeTags trims values and drops blanks, sentinels and case-insensitive
// duplicates. The result is never nil.
func NormalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || IsNoneSentinel(v) {
			continue
		}
		k := strings.ToLower(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// SplitTags splits a comma-separated value into normalized tags.
func SplitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return NormalizeTags(strings.Split(s, ","))
}
