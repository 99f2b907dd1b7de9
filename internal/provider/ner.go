package provider

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// Detect runs p over texts and keeps spans scoring at least confidenceMin.
// A nil provider means NER is absent. Errors, misaligned results and spans
// that do not index into their text are dropped; the call never fails.
func Detect(ctx context.Context, p NERProvider, texts []string, language string, confidenceMin float64) [][]NERSpan {
	out := make([][]NERSpan, len(texts))
	if p == nil || len(texts) == 0 {
		return out
	}

	ctx, span := tracer.Start(ctx, "provider.ner.detect")
	defer span.End()
	span.SetAttributes(
		attribute.String("pii.ner.provider", p.Name()),
		attribute.Int("pii.ner.inputs", len(texts)),
	)

	results, err := p.AnalyzeBatch(ctx, texts, language)
	if err == nil && len(results) != len(texts) {
		err = fmt.Errorf("%w: %d results for %d texts", ErrProviderNotAvailable, len(results), len(texts))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		degraded(ctx, p.Name(), err)
		return out
	}

	kept := 0
	for i, spans := range results {
		for _, s := range spans {
			if s.Score < confidenceMin || !s.Type.Valid() || !s.Span.ValidIn(texts[i]) {
				continue
			}
			out[i] = append(out[i], s)
			kept++
		}
	}
	span.SetAttributes(attribute.Int("pii.ner.spans", kept))
	return out
}

// ContextSignals runs NER over sanitized context windows and returns, per
// window, the fraction of gated spans of each type. A window with no spans
// yields an empty map.
func ContextSignals(ctx context.Context, p NERProvider, contexts []string, language string, confidenceMin float64) []map[classifier.PIIType]float64 {
	detected := Detect(ctx, p, contexts, language, confidenceMin)
	out := make([]map[classifier.PIIType]float64, len(contexts))
	for i, spans := range detected {
		sig := make(map[classifier.PIIType]float64)
		if len(spans) > 0 {
			total := float64(len(spans))
			for _, s := range spans {
				sig[s.Type] += 1 / total
			}
		}
		out[i] = sig
	}
	return out
}

// MergeWithRules combines NER and rule evidence for one text: per type, the
// maximum of gated NER scores and rule priors of labeled candidates.
func MergeWithRules(candidates []classifier.Candidate, spans []NERSpan, confidenceMin float64) map[classifier.PIIType]float64 {
	out := make(map[classifier.PIIType]float64)
	gate := max(0, confidenceMin)
	for _, s := range spans {
		if s.Score < gate {
			continue
		}
		out[s.Type] = max(out[s.Type], s.Score)
	}
	for _, c := range candidates {
		if !c.HasRuleLabel() {
			continue
		}
		out[c.RuleLabel] = max(out[c.RuleLabel], c.RuleConfidence)
	}
	return out
}
