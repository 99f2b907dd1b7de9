// Package config holds process-level configuration for piiscan.
//
// Values come from, in increasing priority: built-in defaults, the config
// file (piiscan.config.yaml in ./ or ~/.piiscan), and PIISCAN_* env vars.
// Nested keys map to env vars with dots replaced by underscores, e.g.
// "ner.confidence_min" → PIISCAN_NER_CONFIDENCE_MIN.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/ensemble"
	"github.com/dativo-io/piiscan/internal/provider"
	"github.com/dativo-io/piiscan/internal/redact"
)

// EnvPrefix is the prefix of every env var read by Load.
const EnvPrefix = "PIISCAN"

// Viper keys.
const (
	KeyModelDir = "model_dir"
	KeyWorkers  = "workers"
	KeyWindow   = "window"
	KeyLanguage = "language"

	KeyRulesEnabledTypes = "rules.enabled_types"
	KeyRulesPatternFile  = "rules.pattern_file"

	KeyDetectorEnabled = "detector.enabled"

	KeyNEREnabled       = "ner.enabled"
	KeyNERProvider      = "ner.provider"
	KeyNERURL           = "ner.url"
	KeyNERConfidenceMin = "ner.confidence_min"
	KeyNERTimeout       = "ner.timeout"
	KeyNERRPS           = "ner.requests_per_second"

	KeyEmbedEnabled  = "embeddings.enabled"
	KeyEmbedEncoder  = "embeddings.encoder"
	KeyEmbedModel    = "embeddings.model"
	KeyEmbedDim      = "embeddings.dim"
	KeyEmbedBaseURL  = "embeddings.base_url"
	KeyEmbedAPIKey   = "embeddings.api_key"
	KeyEmbedRPM      = "embeddings.requests_per_minute"
	KeyEmbedCacheTTL = "embeddings.cache_ttl"
	KeyEmbedTimeout  = "embeddings.timeout"

	KeyWeightRule        = "ensemble.w_rule"
	KeyWeightNER         = "ensemble.w_ner"
	KeyWeightEmbed       = "ensemble.w_embed"
	KeyDecisionThreshold = "ensemble.decision_threshold"
)

// Defaults.
const (
	DefaultLanguage         = "en"
	DefaultNERProvider      = provider.NERRegex
	DefaultNERConfidenceMin = 0.5
	DefaultEncoder          = provider.EncoderHash
	DefaultEmbedCacheTTL    = time.Hour
)

// Config is the resolved configuration of one piiscan process.
type Config struct {
	ModelDir string
	Workers  int
	Window   int
	Language string

	EnabledTypes []classifier.PIIType
	PatternFile  string

	// DetectorEnabled turns on the in-process full-text entity detector
	// whose spans are masked in every context window.
	DetectorEnabled bool

	NER        provider.NERSettings
	NERConfMin float64

	Embeddings provider.EmbeddingSettings

	Weights           ensemble.Weights
	DecisionThreshold float64

	usingEnvAPIKey bool
}

func init() {
	setDefaults(viper.GetViper())
}

// setDefaults registers env binding and defaults on v.
func setDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := ensemble.DefaultWeights()
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyWindow, redact.DefaultWindow)
	v.SetDefault(KeyLanguage, DefaultLanguage)
	v.SetDefault(KeyRulesEnabledTypes, []string{})
	v.SetDefault(KeyRulesPatternFile, "")
	v.SetDefault(KeyDetectorEnabled, true)
	v.SetDefault(KeyNEREnabled, true)
	v.SetDefault(KeyNERProvider, DefaultNERProvider)
	v.SetDefault(KeyNERURL, "")
	v.SetDefault(KeyNERConfidenceMin, DefaultNERConfidenceMin)
	v.SetDefault(KeyNERTimeout, provider.TimeoutNERCall)
	v.SetDefault(KeyNERRPS, 0)
	v.SetDefault(KeyEmbedEnabled, true)
	v.SetDefault(KeyEmbedEncoder, DefaultEncoder)
	v.SetDefault(KeyEmbedModel, provider.DefaultEmbeddingModel)
	v.SetDefault(KeyEmbedDim, provider.DefaultHashDim)
	v.SetDefault(KeyEmbedBaseURL, "")
	v.SetDefault(KeyEmbedAPIKey, "")
	v.SetDefault(KeyEmbedRPM, 0)
	v.SetDefault(KeyEmbedCacheTTL, DefaultEmbedCacheTTL)
	v.SetDefault(KeyEmbedTimeout, provider.TimeoutEmbeddingCall)
	v.SetDefault(KeyWeightRule, defaults.Rule)
	v.SetDefault(KeyWeightNER, defaults.NER)
	v.SetDefault(KeyWeightEmbed, defaults.Embed)
	v.SetDefault(KeyDecisionThreshold, ensemble.DefaultDecisionThreshold)
}

// Load resolves configuration from the global Viper instance, which the
// CLI points at the config file, and validates it.
func Load() (*Config, error) {
	return fromViper(viper.GetViper())
}

// LoadFile reads and validates a single config file, ignoring the global
// Viper state. Env vars still apply.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	types, err := classifier.ParseTypes(splitList(v.GetStringSlice(KeyRulesEnabledTypes)))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %s: %w", KeyRulesEnabledTypes, err)
	}

	modelDir := resolveModelDir(v)
	cfg := &Config{
		ModelDir:        modelDir,
		Workers:         v.GetInt(KeyWorkers),
		Window:          v.GetInt(KeyWindow),
		Language:        v.GetString(KeyLanguage),
		EnabledTypes:    types,
		PatternFile:     v.GetString(KeyRulesPatternFile),
		DetectorEnabled: v.GetBool(KeyDetectorEnabled),
		NER: provider.NERSettings{
			Enabled:           v.GetBool(KeyNEREnabled),
			Provider:          v.GetString(KeyNERProvider),
			URL:               v.GetString(KeyNERURL),
			Timeout:           v.GetDuration(KeyNERTimeout),
			RequestsPerSecond: v.GetFloat64(KeyNERRPS),
		},
		NERConfMin: v.GetFloat64(KeyNERConfidenceMin),
		Embeddings: provider.EmbeddingSettings{
			Enabled:           v.GetBool(KeyEmbedEnabled),
			Encoder:           v.GetString(KeyEmbedEncoder),
			Dim:               v.GetInt(KeyEmbedDim),
			Model:             v.GetString(KeyEmbedModel),
			BaseURL:           v.GetString(KeyEmbedBaseURL),
			APIKey:            v.GetString(KeyEmbedAPIKey),
			RequestsPerMinute: v.GetInt(KeyEmbedRPM),
			CacheTTL:          v.GetDuration(KeyEmbedCacheTTL),
			Timeout:           v.GetDuration(KeyEmbedTimeout),
			ModelDir:          modelDir,
		},
		Weights: ensemble.Weights{
			Rule:  v.GetFloat64(KeyWeightRule),
			NER:   v.GetFloat64(KeyWeightNER),
			Embed: v.GetFloat64(KeyWeightEmbed),
		},
		DecisionThreshold: v.GetFloat64(KeyDecisionThreshold),
	}

	// Quickstart fallback for the OpenAI encoder.
	if cfg.Embeddings.Encoder == provider.EncoderOpenAI && cfg.Embeddings.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.APIKey = key
			cfg.usingEnvAPIKey = true
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// splitList also splits comma-separated entries, so env vars may use
// either "EMAIL SSN" or "EMAIL,SSN".
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func resolveModelDir(v *viper.Viper) string {
	if dir := v.GetString(KeyModelDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".piiscan", "models")
	}
	return filepath.Join(home, ".piiscan", "models")
}

func (c *Config) validate() error {
	if err := c.Ensemble().Validate(); err != nil {
		return err
	}
	switch c.NER.Provider {
	case provider.NERNone, provider.NERRegex, provider.NERHTTP:
	default:
		return fmt.Errorf("%w: ner.provider %q (want none, regex or http)", ensemble.ErrInvalidConfig, c.NER.Provider)
	}
	if c.NER.Enabled && c.NER.Provider == provider.NERHTTP && c.NER.URL == "" {
		return fmt.Errorf("%w: ner.url is required for the http provider", ensemble.ErrInvalidConfig)
	}
	switch c.Embeddings.Encoder {
	case provider.EncoderHash, provider.EncoderOpenAI:
	default:
		return fmt.Errorf("%w: embeddings.encoder %q (want hash or openai)", ensemble.ErrInvalidConfig, c.Embeddings.Encoder)
	}
	if c.Embeddings.Dim <= 0 {
		return fmt.Errorf("%w: embeddings.dim must be positive", ensemble.ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ensemble.ErrInvalidConfig)
	}
	return nil
}

// Ensemble returns the ensemble settings.
func (c *Config) Ensemble() ensemble.Config {
	return ensemble.Config{
		Weights:           c.Weights,
		Window:            c.Window,
		Language:          c.Language,
		NERConfidenceMin:  c.NERConfMin,
		DecisionThreshold: c.DecisionThreshold,
	}
}

// ScannerOptions returns the classifier options for the rules settings.
func (c *Config) ScannerOptions() []classifier.ScannerOption {
	var opts []classifier.ScannerOption
	if c.PatternFile != "" {
		opts = append(opts, classifier.WithPatternFile(c.PatternFile))
	}
	if len(c.EnabledTypes) > 0 {
		opts = append(opts, classifier.WithEnabledTypes(c.EnabledTypes))
	}
	return opts
}

// CalibratorPath returns the calibrator file in the model dir.
func (c *Config) CalibratorPath() string {
	return filepath.Join(c.ModelDir, ensemble.CalibratorFile)
}

// ClassifierPath returns the embedding classifier file in the model dir.
func (c *Config) ClassifierPath() string {
	return filepath.Join(c.ModelDir, provider.ClassifierFile)
}

// UsingEnvAPIKey reports whether the embeddings API key came from
// OPENAI_API_KEY.
func (c *Config) UsingEnvAPIKey() bool { return c.usingEnvAPIKey }

// WarnIfEnvAPIKey logs when the embeddings API key came from OPENAI_API_KEY
// rather than piiscan configuration.
func (c *Config) WarnIfEnvAPIKey() {
	if c.usingEnvAPIKey {
		log.Warn().Msg("Using OPENAI_API_KEY for embeddings; set PIISCAN_EMBEDDINGS_API_KEY or embeddings.api_key instead")
	}
}
