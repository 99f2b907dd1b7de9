package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const configFileName = "piiscan.config.yaml"

var (
	initForce bool
	initDir   string
)

// configTemplate mirrors the built-in defaults.
const configTemplate = `# piiscan configuration. Every key can be overridden with a PIISCAN_*
# env var, e.g. ner.confidence_min -> PIISCAN_NER_CONFIDENCE_MIN.

# Where calibrator.msgpack and embed.msgpack live (default ~/.piiscan/models).
# model_dir: ~/.piiscan/models

workers: 0      # 0 = GOMAXPROCS
window: 48      # context bytes on each side of a candidate
language: en

rules:
  enabled_types: []   # empty = all types
  pattern_file: ""    # extra recognizers (YAML), layered over the built-ins

detector:
  enabled: true       # mask in-process entity matches before providers run

ner:
  enabled: true
  provider: regex     # regex, http or none
  url: ""             # required for http
  confidence_min: 0.5
  timeout: 5s
  requests_per_second: 0

embeddings:
  enabled: true
  encoder: hash       # hash or openai
  dim: 256
  model: text-embedding-3-small
  base_url: ""
  # api_key: set PIISCAN_EMBEDDINGS_API_KEY instead of committing it
  requests_per_minute: 0
  cache_ttl: 1h
  timeout: 15s

ensemble:
  w_rule: 0.4
  w_ner: 0.3
  w_embed: 0.3
  decision_threshold: 0.55
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default piiscan.config.yaml",
	Long:  "Creates piiscan.config.yaml with the built-in defaults in the target directory.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "init")
		defer span.End()

		path, err := writeConfigTemplate(initDir, initForce)
		if err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintf(cmd.OutOrStdout(), "  Next: piiscan config validate -f %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "directory to write the config file to")
	rootCmd.AddCommand(initCmd)
}

func writeConfigTemplate(dir string, force bool) (string, error) {
	path := filepath.Join(dir, configFileName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
