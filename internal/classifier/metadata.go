package classifier

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/piiscan/patterns"
)

// KeywordConfidence is the rule confidence of a metadata keyword hint.
const KeywordConfidence = 0.3

// KeywordSet maps PII types to metadata keywords. Types are kept in AllTypes
// order so hints come out deterministically.
type KeywordSet struct {
	entries []keywordEntry
}

type keywordEntry struct {
	typ      PIIType
	keywords []string
}

type keywordFile struct {
	Keywords map[string][]string `yaml:"keywords"`
}

// ParseKeywords parses a metadata keyword YAML document.
func ParseKeywords(data []byte) (*KeywordSet, error) {
	var kf keywordFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parsing keyword YAML: %w", err)
	}
	byType := make(map[PIIType][]string, len(kf.Keywords))
	for name, words := range kf.Keywords {
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("keyword file: %w", err)
		}
		lowered := make([]string, 0, len(words))
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				lowered = append(lowered, w)
			}
		}
		byType[t] = lowered
	}
	ks := &KeywordSet{}
	for _, t := range AllTypes {
		if words := byType[t]; len(words) > 0 {
			ks.entries = append(ks.entries, keywordEntry{typ: t, keywords: words})
		}
	}
	return ks, nil
}

// DefaultKeywords returns the embedded metadata keyword set.
func DefaultKeywords() (*KeywordSet, error) {
	return ParseKeywords(patterns.MetadataKeywordsYAML())
}

// Only returns a copy restricted to types. An empty list keeps every type.
func (ks *KeywordSet) Only(types []PIIType) *KeywordSet {
	if len(types) == 0 {
		return ks
	}
	allowed := make(map[PIIType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	out := &KeywordSet{}
	for _, e := range ks.entries {
		if allowed[e.typ] {
			out.entries = append(out.entries, e)
		}
	}
	return out
}

// MetadataHint is a low-confidence candidate found in a metadata field.
// Its Span indexes into the field's value.
type MetadataHint struct {
	Field     string
	Candidate Candidate
}

// KeywordCandidates scans metadata values (fields in sorted order) for
// configured keywords, case-insensitively, and emits one hint per keyword
// occurrence. Used when no sample values are available.
func (s *Scanner) KeywordCandidates(meta map[string]string) []MetadataHint {
	fields := make([]string, 0, len(meta))
	for f := range meta {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var hints []MetadataHint
	for _, field := range fields {
		value := meta[field]
		for _, c := range s.keywords.candidates(value) {
			hints = append(hints, MetadataHint{Field: field, Candidate: c})
		}
	}
	return hints
}

func (ks *KeywordSet) candidates(value string) []Candidate {
	if ks == nil || value == "" {
		return nil
	}
	// ToLower can change byte lengths for some runes; only trust offsets
	// when it does not.
	lower := strings.ToLower(value)
	if len(lower) != len(value) {
		lower = asciiLower(value)
	}

	var out []Candidate
	for _, e := range ks.entries {
		for _, kw := range e.keywords {
			from := 0
			for {
				i := strings.Index(lower[from:], kw)
				if i < 0 {
					break
				}
				start := from + i
				end := start + len(kw)
				out = append(out, Candidate{
					Span:           Span{Start: start, End: end, Text: value[start:end]},
					RuleLabel:      e.typ,
					RuleConfidence: KeywordConfidence,
				})
				from = end
			}
		}
	}
	return out
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
