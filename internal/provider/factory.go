package provider

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// NER provider names accepted by NewNER.
const (
	NERNone  = "none"
	NERRegex = "regex"
	NERHTTP  = "http"
)

// Encoder names accepted by NewEncoder.
const (
	EncoderHash   = "hash"
	EncoderOpenAI = "openai"
)

// NERSettings selects and configures the NER provider.
type NERSettings struct {
	Enabled  bool
	Provider string
	URL      string
	Timeout  time.Duration
	// RequestsPerSecond <= 0 disables rate limiting of the sidecar.
	RequestsPerSecond float64
}

// NewNER builds the configured NER provider. A disabled provider or "none"
// returns nil, meaning NER is absent.
func NewNER(s NERSettings) (NERProvider, error) {
	if !s.Enabled {
		return nil, nil
	}
	switch s.Provider {
	case NERNone:
		return nil, nil
	case NERRegex, "":
		return NewRegexNER(), nil
	case NERHTTP:
		if s.URL == "" {
			return nil, fmt.Errorf("ner provider %q requires a url", s.Provider)
		}
		return NewHTTPNER(s.URL, s.Timeout, s.RequestsPerSecond), nil
	default:
		return nil, fmt.Errorf("%w: ner %q", ErrUnknownProvider, s.Provider)
	}
}

// EmbeddingSettings selects the encoder and where the trained classifier
// lives.
type EmbeddingSettings struct {
	Enabled           bool
	Encoder           string
	Dim               int
	Model             string
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	CacheTTL          time.Duration
	Timeout           time.Duration
	ModelDir          string
}

// NewEncoder builds the configured encoder.
func NewEncoder(s EmbeddingSettings) (Encoder, error) {
	switch s.Encoder {
	case EncoderHash, "":
		return NewHashEncoder(s.Dim), nil
	case EncoderOpenAI:
		if s.APIKey == "" && s.BaseURL == "" {
			return nil, fmt.Errorf("%w: openai encoder needs an api key", ErrProviderNotAvailable)
		}
		return NewOpenAIEncoder(OpenAIEncoderConfig{
			APIKey:            s.APIKey,
			BaseURL:           s.BaseURL,
			Model:             s.Model,
			RequestsPerMinute: s.RequestsPerMinute,
			CacheTTL:          s.CacheTTL,
			Timeout:           s.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: encoder %q", ErrUnknownProvider, s.Encoder)
	}
}

// NewEmbedding builds the embedding provider. Disabled returns nil. An
// untrained model dir (no classifier file) yields Neutral.
func NewEmbedding(s EmbeddingSettings) (EmbeddingProvider, error) {
	if !s.Enabled {
		return nil, nil
	}
	enc, err := NewEncoder(s)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.ModelDir, ClassifierFile)
	c, err := loadOptionalClassifier(path, enc)
	if err != nil {
		return nil, err
	}
	if c == nil {
		log.Info().Str("path", path).Msg("no trained embedding classifier; using neutral embeddings")
		return Neutral{}, nil
	}
	return c, nil
}
