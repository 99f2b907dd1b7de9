package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/piiscan/internal/dataset"
	"github.com/dativo-io/piiscan/internal/engine"
	"github.com/dativo-io/piiscan/internal/extract"
)

var (
	scanFile    string
	scanFormat  string
	scanTimeout time.Duration

	batchInput  string
	batchOutput string

	metaFields []string
	metaInput  string
)

var scanTextCmd = &cobra.Command{
	Use:   "scan-text [text]",
	Short: "Scan one text for PII",
	Long:  "Scans the text given as arguments, --file, or stdin and prints predictions with the redacted text. HTML files (.html, .htm) are reduced to their visible text first.",
	RunE:  scanText,
}

var scanBatchCmd = &cobra.Command{
	Use:   "scan-batch",
	Short: "Scan a JSONL file of {\"id\",\"text\"} records",
	Long:  "Reads one {\"id\",\"text\"} record per line and writes one JSON result per line, in input order. Malformed lines are reported and skipped.",
	Args:  cobra.NoArgs,
	RunE:  scanBatch,
}

var scanMetadataCmd = &cobra.Command{
	Use:   "scan-metadata",
	Short: "Scan catalog metadata fields for PII",
	Long:  "Scans metadata given as --field name=value pairs or a JSON object ({\"field\": \"value\"}) from --input.",
	Args:  cobra.NoArgs,
	RunE:  scanMetadata,
}

func init() {
	scanTextCmd.Flags().StringVarP(&scanFile, "file", "f", "", "read text from file (- for stdin)")
	scanTextCmd.Flags().StringVar(&scanFormat, "format", "json", "output format (json, text)")
	scanTextCmd.Flags().DurationVar(&scanTimeout, "timeout", 30*time.Second, "scan timeout")

	scanBatchCmd.Flags().StringVarP(&batchInput, "input", "i", "-", "JSONL input file (- for stdin)")
	scanBatchCmd.Flags().StringVarP(&batchOutput, "output", "o", "-", "JSONL output file (- for stdout)")

	scanMetadataCmd.Flags().StringArrayVar(&metaFields, "field", nil, "metadata field as name=value (repeatable)")
	scanMetadataCmd.Flags().StringVarP(&metaInput, "input", "i", "", "JSON object of field names to values")

	rootCmd.AddCommand(scanTextCmd)
	rootCmd.AddCommand(scanBatchCmd)
	rootCmd.AddCommand(scanMetadataCmd)
}

func scanText(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "scan_text")
	defer span.End()

	text, err := readText(ctx, cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if scanFormat != "json" && scanFormat != "text" {
		return fmt.Errorf("unknown format %q (want json or text)", scanFormat)
	}

	eng, _, err := loadEngine()
	if err != nil {
		return err
	}
	res, err := eng.Scan(ctx, text)
	if err != nil {
		return err
	}

	if scanFormat == "text" {
		renderScanResult(cmd.OutOrStdout(), res)
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), res, true)
}

// readText returns the scan input: the joined args, else --file, else stdin.
func readText(ctx context.Context, stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	var raw string
	if scanFile != "" && scanFile != "-" {
		text, err := extract.NewExtractor(0).Extract(ctx, scanFile)
		if err != nil {
			return "", err
		}
		raw = text
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		raw = string(data)
	}
	text := strings.TrimRight(raw, "\r\n")
	if text == "" {
		return "", fmt.Errorf("no text to scan: pass it as an argument, --file, or stdin")
	}
	return text, nil
}

func scanBatch(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "scan_batch")
	defer span.End()

	in, err := openBatchInput(cmd.InOrStdin(), batchInput)
	if err != nil {
		return err
	}
	defer in.Close()

	records, bad, err := dataset.ReadTextRecords(in)
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}
	logRecordErrors(bad)

	eng, _, err := loadEngine()
	if err != nil {
		return err
	}

	out, err := createOutput(batchOutput, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	results := eng.ScanBatch(ctx, records)
	if err := writeResults(out, results); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	log.Info().
		Int("records", len(records)).
		Int("malformed", len(bad)).
		Int("failed", failed).
		Msg("batch scan complete")
	return nil
}

func openBatchInput(stdin io.Reader, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	return openInput(path)
}

// writeResults writes one compact JSON result per line.
func writeResults(w io.Writer, results []*engine.Result) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		if err := writeJSON(bw, r, false); err != nil {
			return fmt.Errorf("writing result %s: %w", r.ID, err)
		}
	}
	return bw.Flush()
}

// logRecordErrors reports malformed input lines by number.
func logRecordErrors(bad []*dataset.RecordError) {
	for _, e := range bad {
		log.Warn().Int("line", e.Line).Err(e.Err).Msg("skipping malformed record")
	}
}

func scanMetadata(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "scan_metadata")
	defer span.End()

	meta, err := readMetadata(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if len(meta) == 0 {
		return fmt.Errorf("no metadata fields: pass --field name=value or --input")
	}

	eng, _, err := loadEngine()
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), eng.ScanMetadata(ctx, meta), true)
}

func readMetadata(stdin io.Reader) (map[string]string, error) {
	meta, err := parseFields(metaFields)
	if err != nil {
		return nil, err
	}
	if metaInput == "" {
		return meta, nil
	}
	in, err := openBatchInput(stdin, metaInput)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var fromFile map[string]string
	if err := json.NewDecoder(in).Decode(&fromFile); err != nil {
		return nil, fmt.Errorf("decoding metadata: want a JSON object of strings: %w", err)
	}
	for k, v := range fromFile {
		if _, set := meta[k]; !set {
			meta[k] = v
		}
	}
	return meta, nil
}
