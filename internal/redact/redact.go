// Package redact masks PII spans in text and builds sanitized context
// windows around candidates. Nothing produced here may contain the literal
// text of a detected span.
package redact

import (
	"sort"
	"strings"
	"unicode"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// UnlabeledToken replaces spans whose type is unknown.
const UnlabeledToken = "[PII]"

// MaskToken returns a shape-preserving mask of s: digits become '0',
// lowercase letters 'x', uppercase letters 'X'; everything else is kept.
// The result has the same number of runes as s.
func MaskToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteByte('0')
		case unicode.IsUpper(r):
			b.WriteByte('X')
		case unicode.IsLetter(r):
			b.WriteByte('x')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TokenFor returns the bracket token for t, e.g. "[EMAIL]". An empty type
// yields UnlabeledToken.
func TokenFor(t classifier.PIIType) string {
	if t == "" {
		return UnlabeledToken
	}
	return "[" + string(t) + "]"
}

// RedactText replaces every span with its shape-preserving mask.
func RedactText(text string, spans []classifier.Span) string {
	labeled := make([]classifier.LabeledSpan, len(spans))
	for i, s := range spans {
		labeled[i] = classifier.LabeledSpan{Span: s}
	}
	return apply(text, labeled, func(raw string, _ classifier.PIIType) string {
		return MaskToken(raw)
	})
}

// TypedRedactText replaces every span with its bracket token. Output
// length is not preserved.
func TypedRedactText(text string, spans []classifier.LabeledSpan) string {
	return apply(text, spans, func(_ string, t classifier.PIIType) string {
		return TokenFor(t)
	})
}

// apply walks spans in ascending start order (stable on ties). A span that
// starts before the cursor overlaps one already replaced and is skipped.
// Empty and out-of-range spans are ignored.
func apply(text string, spans []classifier.LabeledSpan, sub func(raw string, t classifier.PIIType) string) string {
	sorted := make([]classifier.LabeledSpan, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Span.Start < sorted[j].Span.Start })

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, ls := range sorted {
		s := ls.Span
		if s.Start < cursor || s.Start >= s.End || s.End > len(text) {
			continue
		}
		b.WriteString(text[cursor:s.Start])
		b.WriteString(sub(text[s.Start:s.End], ls.Type))
		cursor = s.End
	}
	b.WriteString(text[cursor:])
	return b.String()
}

// ScrubValues replaces every occurrence of each non-empty value in s with
// its shape-preserving mask. Longer values are replaced first so a value
// that contains another is masked whole. A value the mask would leave
// unchanged ("0.0.0.0", "xx-00") becomes [PII]. The result never contains
// any of values: occurrences a replacement happens to create are removed.
func ScrubValues(s string, values []string) string {
	if s == "" || len(values) == 0 {
		return s
	}
	ordered := uniqueByLength(values)
	for _, v := range ordered {
		if strings.Contains(s, v) {
			s = strings.ReplaceAll(s, v, scrubToken(v))
		}
	}
	// Each pass that finds a value shortens s, so this terminates.
	for leaks(s, ordered) {
		for _, v := range ordered {
			s = strings.ReplaceAll(s, v, "")
		}
	}
	return s
}

// SanitizeText masks spans in text like RedactText, then scrubs any
// remaining occurrence of a span's value, including values whose mask
// equals the value itself.
func SanitizeText(text string, spans []classifier.Span) string {
	values := make([]string, 0, len(spans))
	for _, sp := range spans {
		if sp.Text != "" {
			values = append(values, sp.Text)
		}
	}
	return ScrubValues(RedactText(text, spans), values)
}

// FirstLeak returns the index of the first value that occurs in any of
// strs, or -1 when none does. Empty values are ignored.
func FirstLeak(strs, values []string) int {
	for i, v := range values {
		if v == "" {
			continue
		}
		for _, s := range strs {
			if strings.Contains(s, v) {
				return i
			}
		}
	}
	return -1
}

// scrubToken is the replacement for v: its mask when that differs from v,
// else [PII], else nothing.
func scrubToken(v string) string {
	if m := MaskToken(v); !strings.Contains(m, v) {
		return m
	}
	if !strings.Contains(UnlabeledToken, v) {
		return UnlabeledToken
	}
	return ""
}

func leaks(s string, values []string) bool {
	for _, v := range values {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

// uniqueByLength returns the distinct non-empty values, longest first.
func uniqueByLength(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}
