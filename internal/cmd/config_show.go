package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/piiscan/internal/config"
)

var validateFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate piiscan configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		renderConfig(cmd.OutOrStdout(), viper.ConfigFileUsed(), cfg)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a piiscan config file",
	Long:  "Loads a config file with env overrides applied and checks every setting, including the ensemble weights and decision threshold.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.validate")
		defer span.End()

		var (
			cfg  *config.Config
			err  error
			file = validateFile
		)
		if file != "" {
			cfg, err = config.LoadFile(file)
		} else {
			file = viper.ConfigFileUsed()
			cfg, err = config.Load()
		}
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("Config validation failed")
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ Validation failed: %s\n", displayFile(file))
			return fmt.Errorf("validation failed: %w", err)
		}

		log.Info().Str("file", file).Msg("Config validated successfully")
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "✓ Config valid: %s\n", displayFile(file))
		fmt.Fprintf(w, "  Weights: rule=%.2f ner=%.2f embed=%.2f\n", cfg.Weights.Rule, cfg.Weights.NER, cfg.Weights.Embed)
		fmt.Fprintf(w, "  Decision threshold: %.2f\n", cfg.DecisionThreshold)
		return nil
	},
}

func init() {
	configValidateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "config file to validate (default: the file in use)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func displayFile(path string) string {
	if path == "" {
		return "(defaults and env)"
	}
	return path
}

// renderConfig writes the resolved configuration to w (testable). The
// embeddings API key is never printed.
func renderConfig(w io.Writer, file string, cfg *config.Config) {
	fmt.Fprintf(w, "Config file:        %s\n", displayFile(file))
	fmt.Fprintf(w, "Model directory:    %s%s\n", cfg.ModelDir, existsMark(cfg.ModelDir))
	fmt.Fprintf(w, "Calibrator:         %s%s\n", cfg.CalibratorPath(), existsMark(cfg.CalibratorPath()))
	fmt.Fprintf(w, "Embed classifier:   %s%s\n", cfg.ClassifierPath(), existsMark(cfg.ClassifierPath()))
	fmt.Fprintf(w, "Window:             %d\n", cfg.Window)
	fmt.Fprintf(w, "Workers:            %d\n", cfg.Workers)

	types := "all"
	if len(cfg.EnabledTypes) > 0 {
		names := make([]string, len(cfg.EnabledTypes))
		for i, t := range cfg.EnabledTypes {
			names[i] = string(t)
		}
		types = strings.Join(names, ", ")
	}
	fmt.Fprintf(w, "Enabled types:      %s\n", types)
	fmt.Fprintf(w, "Local detector:     %s\n", onOff(cfg.DetectorEnabled))
	fmt.Fprintf(w, "NER provider:       %s (%s)\n", cfg.NER.Provider, onOff(cfg.NER.Enabled))
	fmt.Fprintf(w, "Embedding encoder:  %s (%s)\n", cfg.Embeddings.Encoder, onOff(cfg.Embeddings.Enabled))
	key := "not set"
	if cfg.Embeddings.APIKey != "" {
		key = "set"
	}
	fmt.Fprintf(w, "Embeddings API key: %s\n", key)
	fmt.Fprintf(w, "Weights:            rule=%.2f ner=%.2f embed=%.2f\n", cfg.Weights.Rule, cfg.Weights.NER, cfg.Weights.Embed)
	fmt.Fprintf(w, "Decision threshold: %.2f\n", cfg.DecisionThreshold)
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func existsMark(path string) string {
	if _, err := os.Stat(path); err == nil {
		return " (exists)"
	}
	return ""
}
