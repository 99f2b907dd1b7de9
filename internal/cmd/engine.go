package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/config"
	"github.com/dativo-io/piiscan/internal/engine"
	"github.com/dativo-io/piiscan/internal/ensemble"
	"github.com/dativo-io/piiscan/internal/provider"
)

// buildEngine wires an engine from configuration: rule scanner, providers
// chosen once, and the calibrator from the model directory.
func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	cfg.WarnIfEnvAPIKey()

	scanner, err := classifier.NewScanner(cfg.ScannerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initializing scanner: %w", err)
	}
	ner, err := provider.NewNER(cfg.NER)
	if err != nil {
		return nil, fmt.Errorf("initializing NER provider: %w", err)
	}
	embed, err := provider.NewEmbedding(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("initializing embedding provider: %w", err)
	}
	cal, err := ensemble.LoadCalibratorDir(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("loading calibrator: %w", err)
	}
	ens, err := ensemble.New(cfg.Ensemble(), cal, ner, embed)
	if err != nil {
		return nil, err
	}

	var detector provider.NERProvider
	if cfg.DetectorEnabled {
		detector = provider.NewRegexNER()
	}

	log.Debug().
		Str("model_dir", cfg.ModelDir).
		Bool("ner", ner != nil).
		Bool("embeddings", embed != nil).
		Bool("detector", detector != nil).
		Msg("engine initialized")

	return engine.New(engine.Config{
		Scanner:  scanner,
		Ensemble: ens,
		Detector: detector,
		Workers:  cfg.Workers,
	})
}

// loadEngine resolves configuration and builds the engine.
func loadEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	eng, err := buildEngine(cfg)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}
