package cmd

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/config"
	"github.com/dativo-io/piiscan/internal/dataset"
	"github.com/dativo-io/piiscan/internal/eval"
	"github.com/dativo-io/piiscan/internal/provider"
	"github.com/dativo-io/piiscan/internal/redact"
)

var (
	synthCount  int
	synthSeed   int64
	synthOutput string

	trainInput string
)

var genSynthCmd = &cobra.Command{
	Use:   "gen-synth",
	Short: "Generate a synthetic labeled dataset (JSONL)",
	Long:  "Generates labeled examples with checksum-valid card and national ID numbers. The same seed always yields the same dataset.",
	Args:  cobra.NoArgs,
	RunE:  genSynth,
}

var trainEmbedCmd = &cobra.Command{
	Use:   "train-embed",
	Short: "Train the embedding classifier on labeled data",
	Long:  "Builds a redacted context around every gold span and fits the per-type embedding classifier. The model is written to the model directory.",
	Args:  cobra.NoArgs,
	RunE:  trainEmbed,
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit per-type score calibration on labeled data",
	Long:  "Scores every candidate in the dataset, labels it with the gold span it overlaps, and fits one logistic calibrator per type. The calibrator is written to the model directory.",
	Args:  cobra.NoArgs,
	RunE:  calibrate,
}

func init() {
	genSynthCmd.Flags().IntVarP(&synthCount, "count", "n", 1000, "number of examples")
	genSynthCmd.Flags().Int64Var(&synthSeed, "seed", 42, "random seed")
	genSynthCmd.Flags().StringVarP(&synthOutput, "output", "o", "-", "output JSONL file (- for stdout)")

	trainEmbedCmd.Flags().StringVarP(&trainInput, "input", "i", "", "labeled JSONL dataset")
	_ = trainEmbedCmd.MarkFlagRequired("input")
	calibrateCmd.Flags().StringVarP(&trainInput, "input", "i", "", "labeled JSONL dataset")
	_ = calibrateCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(genSynthCmd)
	rootCmd.AddCommand(trainEmbedCmd)
	rootCmd.AddCommand(calibrateCmd)
}

func genSynth(cmd *cobra.Command, args []string) error {
	_, span := tracer.Start(cmd.Context(), "gen_synth")
	defer span.End()

	if synthCount <= 0 {
		return fmt.Errorf("--count must be positive")
	}
	examples := dataset.GenerateSynthetic(synthCount, synthSeed)

	if synthOutput != "" && synthOutput != "-" {
		if err := dataset.SaveExamples(synthOutput, examples); err != nil {
			return err
		}
		log.Info().Int("examples", len(examples)).Str("path", synthOutput).Msg("synthetic dataset written")
		return nil
	}
	return dataset.WriteExamples(cmd.OutOrStdout(), examples)
}

// loadExamples reads a labeled dataset, reporting malformed lines.
func loadExamples(path string) ([]dataset.LabeledExample, error) {
	examples, bad, err := dataset.LoadExamples(path)
	if err != nil {
		return nil, err
	}
	logRecordErrors(bad)
	if len(examples) == 0 {
		return nil, fmt.Errorf("no valid examples in %s", path)
	}
	return examples, nil
}

// trainingContexts builds one redacted window per gold span. Spans whose
// window cannot be sanitized are skipped.
func trainingContexts(examples []dataset.LabeledExample, window int) ([]string, []classifier.PIIType) {
	var (
		texts  []string
		labels []classifier.PIIType
	)
	for i, ex := range examples {
		for j, l := range ex.Labels {
			ctx, err := redact.TrainingContext(ex.Text, ex.Labels, j, window)
			if err != nil {
				log.Warn().Int("example", i).Int("label", j).Err(err).Msg("skipping training context")
				continue
			}
			texts = append(texts, ctx)
			labels = append(labels, l.Type)
		}
	}
	return texts, labels
}

func trainEmbed(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "train_embed")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.WarnIfEnvAPIKey()
	examples, err := loadExamples(trainInput)
	if err != nil {
		return err
	}

	texts, labels := trainingContexts(examples, cfg.Window)
	enc, err := provider.NewEncoder(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing encoder: %w", err)
	}
	clf, err := provider.TrainClassifier(ctx, enc, texts, labels)
	if err != nil {
		return err
	}
	if err := clf.Save(cfg.ClassifierPath()); err != nil {
		return err
	}

	renderTrainSummary(cmd.OutOrStdout(), "Embedding classifier", cfg.ClassifierPath(), len(examples), len(texts))
	return nil
}

func calibrate(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "calibrate")
	defer span.End()

	eng, cfg, err := loadEngine()
	if err != nil {
		return err
	}
	examples, err := loadExamples(trainInput)
	if err != nil {
		return err
	}

	cal, err := eval.CalibrateOnDataset(ctx, examples, eng)
	if err != nil {
		return fmt.Errorf("fitting calibrator: %w", err)
	}
	if err := cal.Save(cfg.CalibratorPath()); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	renderTrainSummary(w, "Calibrator", cfg.CalibratorPath(), len(examples), -1)
	for _, t := range classifier.AllTypes {
		p := cal.Pair(t)
		fmt.Fprintf(w, "  %-14s a=%8.4f b=%8.4f\n", t, p.A, p.B)
	}
	return nil
}

// renderTrainSummary writes the outcome of a training command to w
// (testable). rows < 0 omits the row count.
func renderTrainSummary(w io.Writer, what, path string, examples, rows int) {
	fmt.Fprintf(w, "✓ %s written: %s\n", what, path)
	fmt.Fprintf(w, "  Examples: %d\n", examples)
	if rows >= 0 {
		fmt.Fprintf(w, "  Training contexts: %d\n", rows)
	}
}
