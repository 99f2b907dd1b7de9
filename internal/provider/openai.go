package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = string(openai.SmallEmbedding3)

// OpenAIEncoder encodes context windows with an OpenAI-compatible
// embeddings API. Calls are rate limited and vectors are cached by a hash
// of the input, so repeated windows cost nothing.
type OpenAIEncoder struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	cache   *gocache.Cache
	timeout time.Duration
}

// OpenAIEncoderConfig configures NewOpenAIEncoder.
type OpenAIEncoderConfig struct {
	APIKey string
	// BaseURL is scheme+host of an OpenAI-compatible server; /v1 is appended.
	// Empty uses the public API.
	BaseURL string
	Model   string
	// RequestsPerMinute <= 0 disables rate limiting.
	RequestsPerMinute int
	CacheTTL          time.Duration
	Timeout           time.Duration
}

// NewOpenAIEncoder creates an embeddings-API encoder.
func NewOpenAIEncoder(cfg OpenAIEncoderConfig) *OpenAIEncoder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL + "/v1"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = TimeoutEmbeddingCall
	}
	return &OpenAIEncoder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		cache:   gocache.New(ttl, 2*ttl),
		timeout: timeout,
	}
}

// Name returns the encoder identifier.
func (e *OpenAIEncoder) Name() string { return "openai:" + e.model }

// Encode returns one vector per text. Cached vectors are reused; the rest
// are fetched in a single request.
func (e *OpenAIEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	ctx, span := tracer.Start(ctx, "provider.embedding.openai")
	defer span.End()

	out := make([][]float64, len(texts))
	var (
		missing []string
		slots   []int
	)
	for i, text := range texts {
		if v, ok := e.cache.Get(e.cacheKey(text)); ok {
			out[i] = v.([]float64)
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}
	span.SetAttributes(
		attribute.Int("pii.embedding.inputs", len(texts)),
		attribute.Int("pii.embedding.cache_misses", len(missing)),
	)
	if len(missing) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrProviderNotAvailable, err)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: missing,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: embeddings api call: %v", ErrProviderNotAvailable, err)
	}
	if len(resp.Data) != len(missing) {
		return nil, fmt.Errorf("%w: %d embeddings for %d inputs", ErrProviderNotAvailable, len(resp.Data), len(missing))
	}

	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(missing) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderNotAvailable, d.Index)
		}
		vec := make([]float64, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float64(v)
		}
		out[slots[d.Index]] = vec
		e.cache.SetDefault(e.cacheKey(missing[d.Index]), vec)
	}
	return out, nil
}

func (e *OpenAIEncoder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
