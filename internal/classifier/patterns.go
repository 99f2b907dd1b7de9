package classifier

import (
	"fmt"
	"regexp"

	"github.com/dativo-io/piiscan/patterns"
)

// PIIPattern represents a compiled, ready-to-use PII detection pattern.
type PIIPattern struct {
	Name         string
	Type         PIIType
	Pattern      *regexp.Regexp
	Score        float64
	ContextWords []string
	ContextBoost float64
	Validator    string
	OnInvalid    string
	Stopwords    map[string]bool
}

// DefaultRecognizers returns the built-in PII recognizers parsed from the
// embedded pii_rules.yaml file. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIRulesYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// DefaultPatterns is the compiled default pattern set, built at init time
// from the embedded YAML.
var DefaultPatterns []PIIPattern

func init() {
	recs, err := DefaultRecognizers()
	if err != nil {
		panic(fmt.Sprintf("loading embedded PII patterns: %v", err))
	}
	compiled, err := CompilePIIPatterns(recs)
	if err != nil {
		panic(fmt.Sprintf("compiling embedded PII patterns: %v", err))
	}
	DefaultPatterns = compiled
}

// PatternsFor returns the default compiled patterns for the given types, in
// recognizer order.
func PatternsFor(types ...PIIType) []PIIPattern {
	want := make(map[PIIType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []PIIPattern
	for _, p := range DefaultPatterns {
		if want[p.Type] {
			out = append(out, p)
		}
	}
	return out
}
