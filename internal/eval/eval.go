// Package eval measures predictions against gold spans and fits the
// calibrator on labeled data.
package eval

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/dataset"
	"github.com/dativo-io/piiscan/internal/ensemble"
	piiotel "github.com/dativo-io/piiscan/internal/otel"
	"github.com/dativo-io/piiscan/internal/worker"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiscan/internal/eval")

// Counts are raw match outcomes.
type Counts struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

func (c *Counts) add(o Counts) {
	c.TP += o.TP
	c.FP += o.FP
	c.FN += o.FN
}

// Scores are precision, recall and F1, each zero when undefined.
type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Score computes P/R/F1 from counts.
func Score(c Counts) Scores {
	var s Scores
	if c.TP+c.FP > 0 {
		s.Precision = float64(c.TP) / float64(c.TP+c.FP)
	}
	if c.TP+c.FN > 0 {
		s.Recall = float64(c.TP) / float64(c.TP+c.FN)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// Tally accumulates counts overall and per type.
type Tally struct {
	Total   Counts
	PerType map[classifier.PIIType]Counts
}

func newTally() Tally {
	t := Tally{PerType: make(map[classifier.PIIType]Counts, len(classifier.AllTypes))}
	for _, typ := range classifier.AllTypes {
		t.PerType[typ] = Counts{}
	}
	return t
}

func (t *Tally) bump(typ classifier.PIIType, delta Counts) {
	t.Total.add(delta)
	c := t.PerType[typ]
	c.add(delta)
	t.PerType[typ] = c
}

func (t *Tally) merge(o Tally) {
	for typ, c := range o.PerType {
		t.bump(typ, c)
	}
}

// Match pairs the predictions of one example with its gold spans. In
// prediction order, each prediction takes the first unused gold span that
// overlaps it with the same type (a TP); otherwise it is a FP of its own
// label. Gold spans left unused are FNs of their type.
func Match(preds []ensemble.Prediction, gold []classifier.LabeledSpan) Tally {
	t := newTally()
	used := make([]bool, len(gold))
	for _, p := range preds {
		matched := false
		for j, g := range gold {
			if used[j] || !p.Span.Overlaps(g.Span) || p.Label != g.Type {
				continue
			}
			used[j] = true
			matched = true
			t.bump(g.Type, Counts{TP: 1})
			break
		}
		if !matched {
			label := p.Label
			if label == "" {
				label = classifier.AllTypes[0]
			}
			t.bump(label, Counts{FP: 1})
		}
	}
	for j, g := range gold {
		if !used[j] {
			t.bump(g.Type, Counts{FN: 1})
		}
	}
	return t
}

// Report is an immutable evaluation summary.
type Report struct {
	Examples      int                           `json:"examples"`
	Failed        int                           `json:"failed"`
	Counts        Counts                        `json:"counts"`
	PerTypeCounts map[classifier.PIIType]Counts `json:"per_type_counts"`
	PerType       map[classifier.PIIType]Scores `json:"per_type"`
	Micro         Scores                        `json:"micro"`
	Macro         Scores                        `json:"macro"`
}

// NewReport derives scores from a tally. Macro averages per-type scores
// over every type in AllTypes.
func NewReport(t Tally) *Report {
	r := &Report{
		Counts:        t.Total,
		PerTypeCounts: make(map[classifier.PIIType]Counts, len(classifier.AllTypes)),
		PerType:       make(map[classifier.PIIType]Scores, len(classifier.AllTypes)),
		Micro:         Score(t.Total),
	}
	n := float64(len(classifier.AllTypes))
	for _, typ := range classifier.AllTypes {
		c := t.PerType[typ]
		s := Score(c)
		r.PerTypeCounts[typ] = c
		r.PerType[typ] = s
		r.Macro.Precision += s.Precision / n
		r.Macro.Recall += s.Recall / n
		r.Macro.F1 += s.F1 / n
	}
	return r
}

// Predictor produces predictions for a text.
type Predictor interface {
	Predict(ctx context.Context, text string) ([]ensemble.Prediction, error)
}

// Options tune Run.
type Options struct {
	// Workers bounds concurrency; zero means GOMAXPROCS.
	Workers int
	// MinConfidence drops predictions whose calibrated label probability
	// is below it before matching. Zero keeps every prediction.
	MinConfidence float64
}

type exampleOutcome struct {
	tally Tally
	err   error
}

// Run predicts every example and scores the results. Examples whose scan
// fails count their gold spans as FNs and are reported in Failed.
func Run(ctx context.Context, examples []dataset.LabeledExample, p Predictor, opts Options) (*Report, error) {
	ctx, span := tracer.Start(ctx, "eval.run")
	defer span.End()
	span.SetAttributes(attribute.Int("pii.eval.examples", len(examples)))

	outcomes, skipped := worker.Map(ctx, opts.Workers, examples, func(ctx context.Context, _ int, ex dataset.LabeledExample) exampleOutcome {
		preds, err := p.Predict(ctx, ex.Text)
		if err != nil {
			return exampleOutcome{tally: Match(nil, ex.Labels), err: err}
		}
		kept := make([]ensemble.Prediction, 0, len(preds))
		for _, pr := range preds {
			if pr.Confidence() >= opts.MinConfidence {
				kept = append(kept, pr)
			}
		}
		return exampleOutcome{tally: Match(kept, ex.Labels)}
	})
	if skipped > 0 {
		return nil, fmt.Errorf("evaluation interrupted after %d of %d examples: %w", len(examples)-skipped, len(examples), context.Cause(ctx))
	}

	total := newTally()
	failed := 0
	for _, o := range outcomes {
		total.merge(o.tally)
		if o.err != nil {
			failed++
		}
	}
	r := NewReport(total)
	r.Examples = len(examples)
	r.Failed = failed
	span.SetAttributes(attribute.Float64("pii.eval.micro_f1", r.Micro.F1))
	return r, nil
}

// RawScorer returns the candidates of a text with their uncalibrated
// ensemble scores.
type RawScorer interface {
	RawScores(ctx context.Context, text string) ([]classifier.Candidate, []map[classifier.PIIType]float64, error)
}

// CalibrateOnDataset collects raw scores for every candidate, labels each
// with the type of the first gold span it overlaps (none when it overlaps
// nothing), and fits a calibrator. Examples that fail to score are skipped.
func CalibrateOnDataset(ctx context.Context, examples []dataset.LabeledExample, s RawScorer) (*ensemble.Calibrator, error) {
	ctx, span := tracer.Start(ctx, "eval.calibrate")
	defer span.End()

	var (
		raw  []map[classifier.PIIType]float64
		gold []classifier.PIIType
	)
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cands, scores, err := s.RawScores(ctx, ex.Text)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			continue
		}
		for i, c := range cands {
			raw = append(raw, scores[i])
			gold = append(gold, goldLabel(c.Span, ex.Labels))
		}
	}
	span.SetAttributes(attribute.Int("pii.calibration.rows", len(raw)))
	return ensemble.FitCalibrator(raw, gold)
}

func goldLabel(s classifier.Span, gold []classifier.LabeledSpan) classifier.PIIType {
	for _, g := range gold {
		if s.Overlaps(g.Span) {
			return g.Type
		}
	}
	return ""
}
