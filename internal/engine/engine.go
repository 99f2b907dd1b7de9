// Package engine runs the full scan pipeline: rule candidates, local entity
// detection, sanitized provider signals and the calibrated ensemble.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/dataset"
	"github.com/dativo-io/piiscan/internal/ensemble"
	piiotel "github.com/dativo-io/piiscan/internal/otel"
	"github.com/dativo-io/piiscan/internal/provider"
	"github.com/dativo-io/piiscan/internal/redact"
	"github.com/dativo-io/piiscan/internal/requestctx"
	"github.com/dativo-io/piiscan/internal/scanlog"
	"github.com/dativo-io/piiscan/internal/worker"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiscan/internal/engine")

// ErrMissingComponent is returned by New when a required part is nil.
var ErrMissingComponent = errors.New("engine: missing component")

// Config wires an Engine.
type Config struct {
	Scanner  *classifier.Scanner
	Ensemble *ensemble.Ensemble
	// Detector finds entities in the full text in-process so they can be
	// masked before any window reaches a provider. Nil disables it.
	Detector provider.NERProvider
	// Workers bounds ScanBatch concurrency; zero means GOMAXPROCS.
	Workers int
}

// Engine scans texts. It is safe for concurrent use.
type Engine struct {
	scanner  *classifier.Scanner
	ensemble *ensemble.Ensemble
	detector provider.NERProvider
	workers  int
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("%w: scanner", ErrMissingComponent)
	}
	if cfg.Ensemble == nil {
		return nil, fmt.Errorf("%w: ensemble", ErrMissingComponent)
	}
	return &Engine{
		scanner:  cfg.Scanner,
		ensemble: cfg.Ensemble,
		detector: cfg.Detector,
		workers:  cfg.Workers,
	}, nil
}

// Result is the outcome of scanning one text.
type Result struct {
	ID            string                         `json:"id,omitempty"`
	CorrelationID string                         `json:"correlation_id"`
	Predictions   []ensemble.Prediction          `json:"predictions"`
	Findings      []ensemble.Prediction          `json:"findings"`
	Summary       map[classifier.PIIType]float64 `json:"summary"`
	RedactedText  string                         `json:"redacted_text"`
	Error         string                         `json:"error,omitempty"`
}

// Types returns the distinct finding labels in AllTypes order.
func (r *Result) Types() []classifier.PIIType {
	seen := make(map[classifier.PIIType]bool)
	for _, f := range r.Findings {
		seen[f.Label] = true
	}
	var out []classifier.PIIType
	for _, t := range classifier.AllTypes {
		if seen[t] {
			out = append(out, t)
		}
	}
	return out
}

// detection is the rule and local-NER evidence for one text.
type detection struct {
	candidates []classifier.Candidate
	ner        []provider.NERSpan
	labeled    []classifier.LabeledSpan
}

func (e *Engine) detect(ctx context.Context, text string) detection {
	cfg := e.ensemble.Config()
	d := detection{candidates: e.scanner.Propose(ctx, text)}
	if e.detector != nil {
		d.ner = provider.Detect(ctx, e.detector, []string{text}, cfg.Language, cfg.NERConfidenceMin)[0]
	}
	d.labeled = make([]classifier.LabeledSpan, len(d.ner))
	for i, s := range d.ner {
		d.labeled[i] = s.Labeled()
	}

	labeled := 0
	for _, c := range d.candidates {
		if c.HasRuleLabel() {
			labeled++
		}
	}
	piiotel.RecordCandidates(ctx, len(d.candidates), labeled)
	return d
}

// Scan runs the pipeline on text. It fails only when a sanitized context
// would leak a detected value, or ctx is done.
func (e *Engine) Scan(ctx context.Context, text string) (*Result, error) {
	ctx, id := requestctx.EnsureCorrelationID(ctx)
	ctx, span := tracer.Start(ctx, "engine.scan")
	defer span.End()
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := e.detect(ctx, text)
	preds, err := e.ensemble.Predict(ctx, text, d.candidates, d.labeled)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := "error"
		if errors.Is(err, redact.ErrRedactionViolation) {
			outcome = "violation"
		}
		piiotel.RecordScanDuration(ctx, msSince(start), outcome)
		return nil, fmt.Errorf("scan %s: %w", id, err)
	}

	cfg := e.ensemble.Config()
	res := &Result{
		CorrelationID: id,
		Predictions:   preds,
		Findings:      decided(preds, cfg.DecisionThreshold),
		Summary:       provider.MergeWithRules(d.candidates, d.ner, cfg.NERConfidenceMin),
		RedactedText:  redact.SanitizeText(text, allSpans(d)),
	}

	elapsed := msSince(start)
	piiotel.RecordScanDuration(ctx, elapsed, "ok")
	span.SetAttributes(
		attribute.Int("pii.candidate_count", len(d.candidates)),
		attribute.Int("pii.finding_count", len(res.Findings)),
	)

	labels := make([]string, 0, len(res.Findings))
	for _, t := range res.Types() {
		labels = append(labels, string(t))
	}
	scanlog.New(ctx, text, allSpans(d)).Info("scan_complete", map[string]any{
		"n_candidates": len(d.candidates),
		"n_ner_spans":  len(d.ner),
		"n_findings":   len(res.Findings),
		"types":        labels,
		"duration_ms":  elapsed,
	})
	return res, nil
}

// Predict returns the ensemble predictions for text.
func (e *Engine) Predict(ctx context.Context, text string) ([]ensemble.Prediction, error) {
	res, err := e.Scan(ctx, text)
	if err != nil {
		return nil, err
	}
	return res.Predictions, nil
}

// RawScores returns the rule candidates of text with their uncalibrated
// ensemble scores, aligned by index.
func (e *Engine) RawScores(ctx context.Context, text string) ([]classifier.Candidate, []map[classifier.PIIType]float64, error) {
	ctx, _ = requestctx.EnsureCorrelationID(ctx)
	d := e.detect(ctx, text)
	raw, err := e.ensemble.RawScores(ctx, text, d.candidates, d.labeled)
	if err != nil {
		return nil, nil, err
	}
	return d.candidates, raw, nil
}

// ScanBatch scans records concurrently. A failed record carries its error
// in Result.Error; the batch always returns one Result per record, in order.
func (e *Engine) ScanBatch(ctx context.Context, records []dataset.TextRecord) []*Result {
	ctx, span := tracer.Start(ctx, "engine.scan_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("pii.batch_size", len(records)))

	results, skipped := worker.Map(ctx, e.workers, records, func(ctx context.Context, _ int, rec dataset.TextRecord) *Result {
		res, err := e.Scan(ctx, rec.Text)
		if err != nil {
			return &Result{ID: rec.ID, Error: err.Error()}
		}
		res.ID = rec.ID
		return res
	})
	for i, r := range results {
		if r == nil {
			results[i] = &Result{ID: records[i].ID, Error: context.Cause(ctx).Error()}
		}
	}
	if skipped > 0 {
		span.SetAttributes(attribute.Int("pii.batch_skipped", skipped))
	}
	return results
}

// FieldResult holds the predictions for one metadata field.
type FieldResult struct {
	Field       string                `json:"field"`
	Predictions []ensemble.Prediction `json:"predictions"`
	Findings    []ensemble.Prediction `json:"findings"`
	Error       string                `json:"error,omitempty"`
}

// ScanMetadata scans catalog metadata (column name, comment, tags).
// Keyword hints are scored on rule evidence only; values that contain PII
// themselves go through the full pipeline. Fields come back sorted.
func (e *Engine) ScanMetadata(ctx context.Context, meta map[string]string) []FieldResult {
	ctx, _ = requestctx.EnsureCorrelationID(ctx)
	ctx, span := tracer.Start(ctx, "engine.scan_metadata")
	defer span.End()

	hints := make(map[string][]classifier.Candidate)
	for _, h := range e.scanner.KeywordCandidates(meta) {
		hints[h.Field] = append(hints[h.Field], h.Candidate)
	}

	fields := make([]string, 0, len(meta))
	for f := range meta {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	threshold := e.ensemble.Config().DecisionThreshold
	out := make([]FieldResult, 0, len(fields))
	for _, field := range fields {
		fr := FieldResult{Field: field}
		fr.Predictions = e.ensemble.PredictRules(ctx, hints[field])

		res, err := e.Scan(ctx, meta[field])
		if err != nil {
			fr.Error = err.Error()
		} else {
			fr.Predictions = append(fr.Predictions, res.Predictions...)
		}
		fr.Findings = decided(fr.Predictions, threshold)
		out = append(out, fr)
	}
	span.SetAttributes(attribute.Int("pii.field_count", len(out)))
	return out
}

func decided(preds []ensemble.Prediction, threshold float64) []ensemble.Prediction {
	out := []ensemble.Prediction{}
	for _, p := range preds {
		if p.Decided(threshold) {
			out = append(out, p)
		}
	}
	return out
}

func allSpans(d detection) []classifier.Span {
	out := make([]classifier.Span, 0, len(d.candidates)+len(d.ner))
	for _, c := range d.candidates {
		out = append(out, c.Span)
	}
	for _, s := range d.ner {
		out = append(out, s.Span)
	}
	return out
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
