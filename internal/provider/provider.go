// Package provider defines the NER and embedding signal sources the
// ensemble consumes. Providers only ever see redacted context windows.
// Every provider failure degrades to an empty or neutral signal.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/piiscan/internal/classifier"
	piiotel "github.com/dativo-io/piiscan/internal/otel"
	"github.com/dativo-io/piiscan/internal/requestctx"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiscan/internal/provider")

// Timeouts for provider calls. Providers fail fast and degrade.
const (
	TimeoutNERCall       = 5 * time.Second
	TimeoutEmbeddingCall = 15 * time.Second
)

// Domain errors for the provider package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrEncoderMismatch      = errors.New("encoder does not match trained classifier")
)

// NERSpan is one entity found by a NER provider. The span indexes into the
// string the provider was given.
type NERSpan struct {
	Span  classifier.Span
	Type  classifier.PIIType
	Score float64
}

// Labeled drops the score.
func (s NERSpan) Labeled() classifier.LabeledSpan {
	return classifier.LabeledSpan{Span: s.Span, Type: s.Type}
}

// NERProvider finds named entities in a batch of texts. The result is
// aligned with texts.
type NERProvider interface {
	Name() string
	AnalyzeBatch(ctx context.Context, texts []string, language string) ([][]NERSpan, error)
}

// EmbeddingProvider returns, per text, a probability for every PII type.
type EmbeddingProvider interface {
	Name() string
	PredictProba(ctx context.Context, texts []string) ([]map[classifier.PIIType]float64, error)
}

// degraded logs a provider failure and counts it. Only the provider name
// and the error are logged; inputs never are.
func degraded(ctx context.Context, provider string, err error) {
	log.Warn().
		Err(err).
		Str("provider", provider).
		Str("correlation_id", requestctx.CorrelationID(ctx)).
		Func(piiotel.LogTraceFields(ctx)).
		Msg("provider_degraded")
	piiotel.RecordDegradation(ctx, provider)
}
