package provider

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// NeutralDistribution returns a zero probability for every PII type.
func NeutralDistribution() map[classifier.PIIType]float64 {
	out := make(map[classifier.PIIType]float64, len(classifier.AllTypes))
	for _, t := range classifier.AllTypes {
		out[t] = 0
	}
	return out
}

// Neutral is the untrained embedding provider: every type gets zero.
type Neutral struct{}

// Name returns the provider identifier.
func (Neutral) Name() string { return "neutral" }

// PredictProba returns the neutral distribution for every text.
func (Neutral) PredictProba(_ context.Context, texts []string) ([]map[classifier.PIIType]float64, error) {
	out := make([]map[classifier.PIIType]float64, len(texts))
	for i := range out {
		out[i] = NeutralDistribution()
	}
	return out, nil
}

// Probabilities asks p for per-type probabilities of texts. A nil provider,
// an error, or a misaligned result yields the neutral distribution for
// every text. Missing types are filled with zero and values are clamped to
// [0,1].
func Probabilities(ctx context.Context, p EmbeddingProvider, texts []string) []map[classifier.PIIType]float64 {
	if p == nil || len(texts) == 0 {
		out, _ := Neutral{}.PredictProba(ctx, texts)
		return out
	}

	ctx, span := tracer.Start(ctx, "provider.embedding.predict")
	defer span.End()

	probs, err := p.PredictProba(ctx, texts)
	if err == nil && len(probs) != len(texts) {
		err = fmt.Errorf("%w: %d results for %d texts", ErrProviderNotAvailable, len(probs), len(texts))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		degraded(ctx, p.Name(), err)
		out, _ := Neutral{}.PredictProba(ctx, texts)
		return out
	}

	out := make([]map[classifier.PIIType]float64, len(texts))
	for i, dist := range probs {
		clean := NeutralDistribution()
		for t, v := range dist {
			if !t.Valid() || math.IsNaN(v) {
				continue
			}
			clean[t] = min(max(v, 0), 1)
		}
		out[i] = clean
	}
	return out
}
