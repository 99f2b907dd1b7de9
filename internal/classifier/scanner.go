package classifier

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	piiotel "github.com/dativo-io/piiscan/internal/otel"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiscan/internal/classifier")

const (
	// ContextWindowChars is the number of bytes to search before and after
	// a match when looking for context words.
	ContextWindowChars = 48

	// FlaggedConfidenceFactor scales the prior of a match that failed its
	// validator under the "flag" policy.
	FlaggedConfidenceFactor = 0.5
)

// Scanner proposes PII candidates from raw text using compiled recognizers.
// It holds no mutable state and is safe for concurrent use.
type Scanner struct {
	patterns []PIIPattern
	keywords *KeywordSet
}

// ScannerOption configures a Scanner via the functional options pattern.
type ScannerOption func(*scannerConfig)

type scannerConfig struct {
	patternFile       string
	enabledTypes      []PIIType
	customRecognizers []RecognizerConfig
	keywords          *KeywordSet
}

// WithPatternFile loads additional recognizers from an operator YAML file.
// If the file does not exist, it is silently skipped.
func WithPatternFile(path string) ScannerOption {
	return func(c *scannerConfig) { c.patternFile = path }
}

// WithEnabledTypes restricts the scanner to recognizers for the given types.
// Disabled types never appear as a candidate's RuleLabel.
func WithEnabledTypes(types []PIIType) ScannerOption {
	return func(c *scannerConfig) { c.enabledTypes = types }
}

// WithCustomRecognizers adds caller-supplied recognizer definitions on top of
// the defaults and the operator file.
func WithCustomRecognizers(recognizers []RecognizerConfig) ScannerOption {
	return func(c *scannerConfig) { c.customRecognizers = recognizers }
}

// WithKeywords replaces the embedded metadata keyword set.
func WithKeywords(ks *KeywordSet) ScannerOption {
	return func(c *scannerConfig) { c.keywords = ks }
}

// NewScanner creates a candidate scanner. Without options it uses the
// embedded defaults. Options layer operator and caller recognizers on top.
func NewScanner(opts ...ScannerOption) (*Scanner, error) {
	var cfg scannerConfig
	for _, o := range opts {
		o(&cfg)
	}

	// Layer 1: embedded defaults
	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	// Layer 2: operator pattern file (optional)
	var fileRecs []*RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = toPtrSlice(rf.Recognizers)
		}
	}

	// Layer 3: caller recognizers
	var customRecs []*RecognizerConfig
	if len(cfg.customRecognizers) > 0 {
		customRecs = toPtrSlice(cfg.customRecognizers)
	}

	merged := MergeRecognizers(toPtrSlice(defaults), fileRecs, customRecs)
	merged = FilterByEntities(merged, cfg.enabledTypes)

	compiled, err := CompilePIIPatterns(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	ks := cfg.keywords
	if ks == nil {
		ks, err = DefaultKeywords()
		if err != nil {
			return nil, fmt.Errorf("loading metadata keywords: %w", err)
		}
	}
	ks = ks.Only(cfg.enabledTypes)

	return &Scanner{patterns: compiled, keywords: ks}, nil
}

// MustNewScanner is like NewScanner but panics on error. Useful for zero-config
// startup where the embedded defaults are expected to always compile.
func MustNewScanner(opts ...ScannerOption) *Scanner {
	s, err := NewScanner(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.NewScanner: %v", err))
	}
	return s
}

// Types returns the PII types with at least one active recognizer.
func (s *Scanner) Types() []PIIType {
	seen := make(map[PIIType]bool)
	var out []PIIType
	for _, p := range s.patterns {
		if !seen[p.Type] {
			seen[p.Type] = true
			out = append(out, p.Type)
		}
	}
	return out
}

// Propose scans text once and returns every plausible PII occurrence, grouped
// by recognizer in configuration order. Spans from different recognizers may
// overlap; resolving that is left to the ensemble.
func (s *Scanner) Propose(ctx context.Context, text string) []Candidate {
	_, span := tracer.Start(ctx, "classifier.propose")
	defer span.End()

	candidates := []Candidate{}
	for _, pattern := range s.patterns {
		for _, match := range findMatches(pattern, text) {
			if c, ok := pattern.candidate(text, match[0], match[1]); ok {
				candidates = append(candidates, c)
			}
		}
	}

	labeled := 0
	for _, c := range candidates {
		if c.HasRuleLabel() {
			labeled++
		}
	}
	span.SetAttributes(
		attribute.Int("pii.candidate_count", len(candidates)),
		attribute.Int("pii.labeled_count", labeled),
	)
	return candidates
}

// candidate turns a raw match into a Candidate, applying the validator gate
// and the context boost. ok is false when the match is dropped.
func (p PIIPattern) candidate(text string, start, end int) (Candidate, bool) {
	value := text[start:end]
	c := Candidate{
		Span:           Span{Start: start, End: end, Text: value},
		RuleLabel:      p.Type,
		RuleConfidence: enhanceScoreWithContext(text, start, end, p.Score, p.ContextWords, p.ContextBoost),
	}

	if p.Validator != "" {
		ok := validate(p.Validator, value)
		c.Validations = map[PIIType]bool{p.Type: ok}
		if !ok {
			if p.OnInvalid != OnInvalidFlag {
				return Candidate{}, false
			}
			c.RuleLabel = ""
			c.RuleConfidence = p.Score * FlaggedConfidenceFactor
		}
	}
	return c, true
}

// FindAll returns the [start,end) byte ranges matched by p in text, with the
// recognizer's stopword handling applied. No validator runs.
func (p PIIPattern) FindAll(text string) [][2]int {
	return findMatches(p, text)
}

// findMatches returns non-overlapping [start,end) matches of the pattern.
// Matches whose first word is a stopword are retried from the next word so
// "Contact John Doe" yields "John Doe".
func findMatches(p PIIPattern, text string) [][2]int {
	if len(p.Stopwords) == 0 {
		all := p.Pattern.FindAllStringIndex(text, -1)
		out := make([][2]int, len(all))
		for i, m := range all {
			out[i] = [2]int{m[0], m[1]}
		}
		return out
	}

	var out [][2]int
	pos := 0
	for pos < len(text) {
		loc := p.Pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		first := firstWord(text[start:end])
		if p.Stopwords[first] {
			next := start + len(first)
			for next < end && unicode.IsSpace(rune(text[next])) {
				next++
			}
			pos = next
			continue
		}
		out = append(out, [2]int{start, end})
		if end == start {
			end++
		}
		pos = end
	}
	return out
}

func firstWord(s string) string {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i]
	}
	return s
}

// enhanceScoreWithContext boosts a match's base score if context words are
// found within +/- ContextWindowChars of the match. The result is capped at 1.
func enhanceScoreWithContext(text string, start, end int, baseScore float64, contextWords []string, boost float64) float64 {
	if len(contextWords) == 0 || boost <= 0 {
		return baseScore
	}
	lo := start - ContextWindowChars
	if lo < 0 {
		lo = 0
	}
	hi := end + ContextWindowChars
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:start] + " " + text[end:hi])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			return clamp01(baseScore + boost)
		}
	}
	return baseScore
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
