package classifier

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Invalid-match policies for recognizers that declare a validator.
const (
	// OnInvalidDrop discards a match that fails its validator.
	OnInvalidDrop = "drop"
	// OnInvalidFlag keeps the match unlabeled with halved confidence.
	OnInvalidFlag = "flag"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig describes one PII recognizer: a set of regexes for a
// single entity plus the validation and context rules applied to matches.
type RecognizerConfig struct {
	Name            string          `yaml:"name" json:"name"`
	SupportedEntity string          `yaml:"supported_entity" json:"supported_entity"`
	Enabled         *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns        []PatternConfig `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Context         []string        `yaml:"context,omitempty" json:"context,omitempty"`
	ContextBoost    float64         `yaml:"context_boost,omitempty" json:"context_boost,omitempty"`
	Validator       string          `yaml:"validator,omitempty" json:"validator,omitempty"`
	OnInvalid       string          `yaml:"on_invalid,omitempty" json:"on_invalid,omitempty"`
	// Stopwords are leading words that cannot start a match (person names).
	Stopwords []string `yaml:"stopwords,omitempty" json:"stopwords,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing operator file as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers performs a layered merge: defaults, then operator
// overrides, then caller overrides. Later layers replace earlier ones by
// recognizer Name; new recognizers are appended, so order is stable.
func MergeRecognizers(layers ...[]*RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if rc == nil {
				continue
			}
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = *rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, *rc)
			}
		}
	}

	return merged
}

// toPtrSlice converts []RecognizerConfig to []*RecognizerConfig for MergeRecognizers.
func toPtrSlice(configs []RecognizerConfig) []*RecognizerConfig {
	ptrs := make([]*RecognizerConfig, len(configs))
	for i := range configs {
		ptrs[i] = &configs[i]
	}
	return ptrs
}

// CompilePIIPatterns converts recognizer configs into the compiled
// []PIIPattern slice used by the Scanner. Disabled recognizers are skipped.
// Each regex produces one PIIPattern, in file order.
func CompilePIIPatterns(recognizers []RecognizerConfig) ([]PIIPattern, error) {
	var patterns []PIIPattern

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		t, err := ParseType(rec.SupportedEntity)
		if err != nil {
			return nil, fmt.Errorf("recognizer %q: %w", rec.Name, err)
		}
		switch rec.Validator {
		case "", ValidatorLuhn, ValidatorVerhoeff:
		default:
			return nil, fmt.Errorf("recognizer %q: unknown validator %q", rec.Name, rec.Validator)
		}
		onInvalid := rec.OnInvalid
		switch onInvalid {
		case "":
			onInvalid = OnInvalidDrop
		case OnInvalidDrop, OnInvalidFlag:
		default:
			return nil, fmt.Errorf("recognizer %q: unknown on_invalid policy %q", rec.Name, rec.OnInvalid)
		}

		stop := make(map[string]bool, len(rec.Stopwords))
		for _, w := range rec.Stopwords {
			stop[w] = true
		}

		for _, p := range rec.Patterns {
			if p.Score < 0 || p.Score > 1 {
				return nil, fmt.Errorf("pattern %q in recognizer %q: score %v outside [0,1]", p.Name, rec.Name, p.Score)
			}
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			patterns = append(patterns, PIIPattern{
				Name:         rec.Name,
				Type:         t,
				Pattern:      compiled,
				Score:        p.Score,
				ContextWords: rec.Context,
				ContextBoost: rec.ContextBoost,
				Validator:    rec.Validator,
				OnInvalid:    onInvalid,
				Stopwords:    stop,
			})
		}
	}

	return patterns, nil
}

// FilterByEntities keeps only recognizers whose supported_entity is in
// enabled. An empty enabled list keeps everything.
func FilterByEntities(recognizers []RecognizerConfig, enabled []PIIType) []RecognizerConfig {
	if len(enabled) == 0 {
		return recognizers
	}
	allowed := make(map[PIIType]bool, len(enabled))
	for _, e := range enabled {
		allowed[e] = true
	}
	var filtered []RecognizerConfig
	for _, r := range recognizers {
		t, err := ParseType(r.SupportedEntity)
		if err != nil {
			continue
		}
		if allowed[t] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
