package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dativo-io/piiscan/internal/eval"
)

var (
	evalInput         string
	evalMinConfidence float64
	evalJSON          bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate detection quality on a labeled dataset",
	Long:  "Scans every example and reports overlap-matched precision, recall and F1 per type, with micro and macro averages.",
	Args:  cobra.NoArgs,
	RunE:  runEval,
}

func init() {
	evalCmd.Flags().StringVarP(&evalInput, "input", "i", "", "labeled JSONL dataset")
	_ = evalCmd.MarkFlagRequired("input")
	evalCmd.Flags().Float64Var(&evalMinConfidence, "min-confidence", 0, "drop predictions whose calibrated probability is below this")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "print the report as JSON")

	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "eval")
	defer span.End()

	if evalMinConfidence < 0 || evalMinConfidence > 1 {
		return fmt.Errorf("--min-confidence must be within [0,1]")
	}

	eng, cfg, err := loadEngine()
	if err != nil {
		return err
	}
	examples, err := loadExamples(evalInput)
	if err != nil {
		return err
	}

	report, err := eval.Run(ctx, examples, eng, eval.Options{
		Workers:       cfg.Workers,
		MinConfidence: evalMinConfidence,
	})
	if err != nil {
		return err
	}

	if evalJSON {
		return writeJSON(cmd.OutOrStdout(), report, true)
	}
	eval.Render(cmd.OutOrStdout(), report)
	return nil
}
