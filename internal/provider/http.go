package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// HTTPNER calls a model-backed NER sidecar. Any failure (unreachable,
// non-200, undecodable body, rate-limit wait cancelled) is logged and
// degrades to empty results.
type HTTPNER struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewHTTPNER creates a sidecar client. A zero timeout uses TimeoutNERCall;
// rps <= 0 disables rate limiting.
func NewHTTPNER(baseURL string, timeout time.Duration, rps float64) *HTTPNER {
	if timeout <= 0 {
		timeout = TimeoutNERCall
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPNER{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    timeout,
	}
}

// Name returns the provider identifier.
func (h *HTTPNER) Name() string { return "http" }

type analyzeRequest struct {
	Texts    []string `json:"texts"`
	Language string   `json:"language"`
}

type analyzeEntity struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	EntityType string  `json:"entity_type"`
	Score      float64 `json:"score"`
}

type analyzeResponse struct {
	Results [][]analyzeEntity `json:"results"`
}

// AnalyzeBatch posts texts to {baseURL}/analyze.
func (h *HTTPNER) AnalyzeBatch(ctx context.Context, texts []string, language string) ([][]NERSpan, error) {
	out, err := h.analyze(ctx, texts, language)
	if err != nil {
		degraded(ctx, h.Name(), err)
		return make([][]NERSpan, len(texts)), nil
	}
	return out, nil
}

func (h *HTTPNER) analyze(ctx context.Context, texts []string, language string) ([][]NERSpan, error) {
	ctx, span := tracer.Start(ctx, "provider.ner.http")
	defer span.End()
	span.SetAttributes(attribute.Int("pii.ner.inputs", len(texts)))

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrProviderNotAvailable, err)
	}

	body, err := json.Marshal(analyzeRequest{Texts: texts, Language: language})
	if err != nil {
		return nil, fmt.Errorf("marshalling analyze request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: ner sidecar call: %v", ErrProviderNotAvailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: ner sidecar returned status %d", ErrProviderNotAvailable, resp.StatusCode)
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding ner response: %v", ErrProviderNotAvailable, err)
	}
	if len(decoded.Results) != len(texts) {
		return nil, fmt.Errorf("%w: %d results for %d texts", ErrProviderNotAvailable, len(decoded.Results), len(texts))
	}

	out := make([][]NERSpan, len(texts))
	for i, entities := range decoded.Results {
		text := texts[i]
		for _, e := range entities {
			t, ok := mapEntityType(e.EntityType)
			if !ok || e.Start < 0 || e.Start > e.End || e.End > len(text) {
				continue
			}
			out[i] = append(out[i], NERSpan{
				Span:  classifier.Span{Start: e.Start, End: e.End, Text: text[e.Start:e.End]},
				Type:  t,
				Score: e.Score,
			})
		}
	}
	return out, nil
}

// mapEntityType maps sidecar labels (Presidio and spaCy style) to PII types.
// Unknown labels are ignored.
func mapEntityType(label string) (classifier.PIIType, bool) {
	switch strings.ToUpper(label) {
	case "PERSON", "PER":
		return classifier.Person, true
	case "EMAIL", "EMAIL_ADDRESS":
		return classifier.Email, true
	case "PHONE", "PHONE_NUMBER", "PHONENUMBER":
		return classifier.PhoneNumber, true
	case "LOCATION", "LOC", "GPE", "ADDRESS":
		return classifier.Address, true
	case "DATE", "DATE_TIME":
		return classifier.Date, true
	case "IP", "IP_ADDRESS":
		return classifier.IPAddress, true
	case "CREDIT_CARD":
		return classifier.CreditCard, true
	case "US_SSN", "SSN":
		return classifier.SSN, true
	case "IN_AADHAAR", "AADHAAR":
		return classifier.Aadhaar, true
	case "IN_PAN", "PAN":
		return classifier.PAN, true
	default:
		return "", false
	}
}
