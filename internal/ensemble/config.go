package ensemble

import (
	"errors"
	"fmt"

	"github.com/dativo-io/piiscan/internal/redact"
)

// ErrInvalidConfig is returned by New and Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid ensemble config")

// ValidationBonus is added to a type's score when a structural validator
// accepted the candidate for that type.
const ValidationBonus = 0.2

// DefaultDecisionThreshold is the calibrated probability a label must reach
// to be reported as a finding.
const DefaultDecisionThreshold = 0.55

// Weights scale each signal before calibration. Each must lie in [0,1].
type Weights struct {
	Rule  float64 `json:"rule" yaml:"rule" mapstructure:"rule"`
	NER   float64 `json:"ner" yaml:"ner" mapstructure:"ner"`
	Embed float64 `json:"embed" yaml:"embed" mapstructure:"embed"`
}

// DefaultWeights returns the stock signal weights.
func DefaultWeights() Weights {
	return Weights{Rule: 0.4, NER: 0.3, Embed: 0.3}
}

// Validate checks every weight is within [0,1].
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"rule", w.Rule}, {"ner", w.NER}, {"embed", w.Embed}} {
		if !unit(f.v) {
			return fmt.Errorf("%w: weight %s=%v outside [0,1]", ErrInvalidConfig, f.name, f.v)
		}
	}
	return nil
}

// Config holds the ensemble settings.
type Config struct {
	Weights Weights
	// Window is the context radius in bytes on each side of a candidate.
	Window int
	// Language is passed to the NER provider.
	Language string
	// NERConfidenceMin gates NER spans in context windows.
	NERConfidenceMin float64
	// DecisionThreshold is the calibrated probability at which a
	// prediction counts as a finding.
	DecisionThreshold float64
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		Window:            redact.DefaultWindow,
		Language:          "en",
		NERConfidenceMin:  0.5,
		DecisionThreshold: DefaultDecisionThreshold,
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.Window < 0 {
		return fmt.Errorf("%w: window %d is negative", ErrInvalidConfig, c.Window)
	}
	if !unit(c.NERConfidenceMin) {
		return fmt.Errorf("%w: ner confidence_min=%v outside [0,1]", ErrInvalidConfig, c.NERConfidenceMin)
	}
	if !unit(c.DecisionThreshold) {
		return fmt.Errorf("%w: decision_threshold=%v outside [0,1]", ErrInvalidConfig, c.DecisionThreshold)
	}
	return nil
}

// unit reports v ∈ [0,1]; NaN fails.
func unit(v float64) bool { return v >= 0 && v <= 1 }
