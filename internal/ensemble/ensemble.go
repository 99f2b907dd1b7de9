// Package ensemble combines rule, NER and embedding evidence for each
// candidate into a calibrated probability distribution over PII types.
package ensemble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/piiscan/internal/classifier"
	piiotel "github.com/dativo-io/piiscan/internal/otel"
	"github.com/dativo-io/piiscan/internal/provider"
	"github.com/dativo-io/piiscan/internal/redact"
	"github.com/dativo-io/piiscan/internal/scanlog"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiscan/internal/ensemble")

// contextExamples is how many sanitized windows are logged per scan.
const contextExamples = 3

// Signals records the evidence behind one prediction.
type Signals struct {
	RuleLabel      classifier.PIIType
	RuleConfidence float64
	Validations    map[classifier.PIIType]bool
	NER            map[classifier.PIIType]float64
	Embed          map[classifier.PIIType]float64
	// Raw is the weighted score per type before calibration.
	Raw map[classifier.PIIType]float64
	// Calibrated is σ(A·raw + B) per type before normalization.
	Calibrated map[classifier.PIIType]float64
}

// Prediction is the ensemble's verdict for one candidate. Probs sums to 1
// and Score is Probs[Label].
type Prediction struct {
	Span    classifier.Span
	Probs   map[classifier.PIIType]float64
	Label   classifier.PIIType
	Score   float64
	Signals Signals
}

// Confidence returns the calibrated, unnormalized probability of Label.
func (p Prediction) Confidence() float64 {
	return p.Signals.Calibrated[p.Label]
}

// Decided reports whether the prediction clears threshold.
func (p Prediction) Decided(threshold float64) bool {
	return p.Label != "" && p.Confidence() >= threshold
}

type predictionJSON struct {
	Span  classifier.Span                `json:"span"`
	Label *classifier.PIIType            `json:"label"`
	Score float64                        `json:"score"`
	Probs map[classifier.PIIType]float64 `json:"probs"`
}

// MarshalJSON encodes the outbound form; an empty label is null.
func (p Prediction) MarshalJSON() ([]byte, error) {
	out := predictionJSON{Span: p.Span, Score: p.Score, Probs: p.Probs}
	if p.Label != "" {
		label := p.Label
		out.Label = &label
	}
	return json.Marshal(out)
}

// Ensemble scores candidates. It holds no mutable state.
type Ensemble struct {
	cfg     Config
	cal     *Calibrator
	ner     provider.NERProvider
	embed   provider.EmbeddingProvider
	builder *redact.Builder
}

// New validates cfg and returns an Ensemble. A nil calibrator means
// identity; nil providers mean the signal is absent.
func New(cfg Config, cal *Calibrator, ner provider.NERProvider, embed provider.EmbeddingProvider) (*Ensemble, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cal == nil {
		cal = IdentityCalibrator()
	}
	return &Ensemble{
		cfg:     cfg,
		cal:     cal,
		ner:     ner,
		embed:   embed,
		builder: redact.NewBuilder(cfg.Window),
	}, nil
}

// Config returns the ensemble's settings.
func (e *Ensemble) Config() Config { return e.cfg }

// Calibrator returns the calibrator in use.
func (e *Ensemble) Calibrator() *Calibrator { return e.cal }

// evidence holds the per-candidate provider signals for one text.
type evidence struct {
	ner   []map[classifier.PIIType]float64
	embed []map[classifier.PIIType]float64
	raw   []map[classifier.PIIType]float64
}

// gather builds sanitized contexts and queries both providers with them.
// nerSpans are spans a local detector found in the full text; they are
// masked in the windows alongside the candidates.
func (e *Ensemble) gather(ctx context.Context, text string, candidates []classifier.Candidate, nerSpans []classifier.LabeledSpan) (evidence, error) {
	logger := scanlog.New(ctx, text, scanSpans(candidates, nerSpans))

	contexts, err := e.builder.Contexts(text, candidates, nerSpans)
	if err != nil {
		var v *redact.ViolationError
		if errors.As(err, &v) {
			piiotel.RecordViolation(ctx)
			logger.Warn("redaction_violation", map[string]any{
				"type":         string(v.Type),
				"span_start":   v.SpanStart,
				"span_end":     v.SpanEnd,
				"window_start": v.WindowStart,
				"window_end":   v.WindowEnd,
			})
		}
		return evidence{}, fmt.Errorf("building contexts: %w", err)
	}

	windows := make([]string, len(contexts))
	for i, c := range contexts {
		windows[i] = c.Text
	}
	logger.Debug("scan_contexts", map[string]any{
		"n_candidates": len(candidates),
		"examples":     windows[:min(contextExamples, len(windows))],
	})

	ev := evidence{
		ner:   provider.ContextSignals(ctx, e.ner, windows, e.cfg.Language, e.cfg.NERConfidenceMin),
		embed: provider.Probabilities(ctx, e.embed, windows),
		raw:   make([]map[classifier.PIIType]float64, len(candidates)),
	}
	for i, c := range candidates {
		ev.raw[i] = e.score(c, ev.ner[i], ev.embed[i])
	}
	return ev, nil
}

// score computes the weighted, uncalibrated per-type score.
func (e *Ensemble) score(c classifier.Candidate, ner, embed map[classifier.PIIType]float64) map[classifier.PIIType]float64 {
	w := e.cfg.Weights
	out := make(map[classifier.PIIType]float64, len(classifier.AllTypes))
	for _, t := range classifier.AllTypes {
		out[t] = 0
	}
	if c.HasRuleLabel() && c.RuleLabel.Valid() {
		out[c.RuleLabel] += w.Rule * c.RuleConfidence
	}
	for t, ok := range c.Validations {
		if ok && t.Valid() {
			out[t] += ValidationBonus
		}
	}
	for _, t := range classifier.AllTypes {
		out[t] += w.NER*ner[t] + w.Embed*embed[t]
	}
	return out
}

// RawScores returns the uncalibrated per-type scores of each candidate.
// Used to fit a calibrator.
func (e *Ensemble) RawScores(ctx context.Context, text string, candidates []classifier.Candidate, nerSpans []classifier.LabeledSpan) ([]map[classifier.PIIType]float64, error) {
	if len(candidates) == 0 {
		return []map[classifier.PIIType]float64{}, nil
	}
	ctx, span := tracer.Start(ctx, "ensemble.raw_scores")
	defer span.End()

	ev, err := e.gather(ctx, text, candidates, nerSpans)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return ev.raw, nil
}

// Predict returns one Prediction per candidate, in candidate order. It
// fails only when a sanitized context would leak a detected value.
func (e *Ensemble) Predict(ctx context.Context, text string, candidates []classifier.Candidate, nerSpans []classifier.LabeledSpan) ([]Prediction, error) {
	if len(candidates) == 0 {
		return []Prediction{}, nil
	}
	ctx, span := tracer.Start(ctx, "ensemble.predict")
	defer span.End()
	span.SetAttributes(attribute.Int("pii.candidate_count", len(candidates)))

	ev, err := e.gather(ctx, text, candidates, nerSpans)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	preds := make([]Prediction, len(candidates))
	for i, c := range candidates {
		preds[i] = e.predictOne(c, ev.ner[i], ev.embed[i], ev.raw[i])
		piiotel.RecordPrediction(ctx, string(preds[i].Label))
	}
	return preds, nil
}

// PredictRules scores candidates on rule evidence alone, with no context
// windows and no provider calls. Used for metadata keyword hints, whose
// text names a column rather than holding a value.
func (e *Ensemble) PredictRules(ctx context.Context, candidates []classifier.Candidate) []Prediction {
	preds := make([]Prediction, len(candidates))
	for i, c := range candidates {
		ner := map[classifier.PIIType]float64{}
		embed := provider.NeutralDistribution()
		preds[i] = e.predictOne(c, ner, embed, e.score(c, ner, embed))
		piiotel.RecordPrediction(ctx, string(preds[i].Label))
	}
	return preds
}

func (e *Ensemble) predictOne(c classifier.Candidate, ner, embed, raw map[classifier.PIIType]float64) Prediction {
	calibrated := e.cal.Apply(raw)
	probs, label := normalize(calibrated)
	return Prediction{
		Span:  c.Span,
		Probs: probs,
		Label: label,
		Score: probs[label],
		Signals: Signals{
			RuleLabel:      c.RuleLabel,
			RuleConfidence: c.RuleConfidence,
			Validations:    c.Validations,
			NER:            ner,
			Embed:          embed,
			Raw:            raw,
			Calibrated:     calibrated,
		},
	}
}

// normalize divides by the total and returns the argmax, ties going to the
// earliest type in AllTypes. When the total is not positive (every
// calibrated score underflowed to zero) the result is the uniform
// distribution, so probabilities always sum to 1.
func normalize(p map[classifier.PIIType]float64) (map[classifier.PIIType]float64, classifier.PIIType) {
	sum := 0.0
	for _, t := range classifier.AllTypes {
		sum += p[t]
	}
	uniform := 1 / float64(len(classifier.AllTypes))
	out := make(map[classifier.PIIType]float64, len(classifier.AllTypes))
	var label classifier.PIIType
	best := -1.0
	for _, t := range classifier.AllTypes {
		v := uniform
		if sum > 0 {
			v = p[t] / sum
		}
		out[t] = v
		if v > best {
			best, label = v, t
		}
	}
	return out, label
}

func scanSpans(candidates []classifier.Candidate, nerSpans []classifier.LabeledSpan) []classifier.Span {
	out := make([]classifier.Span, 0, len(candidates)+len(nerSpans))
	for _, c := range candidates {
		out = append(out, c.Span)
	}
	for _, s := range nerSpans {
		out = append(out, s.Span)
	}
	return out
}
