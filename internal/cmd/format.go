package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dativo-io/piiscan/internal/engine"
	"github.com/dativo-io/piiscan/internal/ensemble"
)

// formatScore formats a probability for display: tiny values as "< 0.001".
func formatScore(p float64) string {
	if p < 0.001 && p > 0 {
		return "< 0.001"
	}
	return fmt.Sprintf("%.3f", p)
}

// writeJSON encodes v to w as one line, or indented when pretty is set.
func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// openInput opens path for reading; "" and "-" mean stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	return f, nil
}

// createOutput creates path for writing; "" and "-" mean w.
func createOutput(path string, w io.Writer) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{w}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// renderScanResult writes a scan result as text (testable). Only redacted
// text is printed; span values are shown masked.
func renderScanResult(w io.Writer, res *engine.Result) {
	fmt.Fprintf(w, "Correlation ID: %s\n", res.CorrelationID)
	fmt.Fprintf(w, "Redacted: %s\n\n", res.RedactedText)
	if len(res.Predictions) == 0 {
		fmt.Fprintln(w, "No PII candidates found.")
		return
	}
	fmt.Fprintf(w, "%-8s %-14s %8s %8s  %s\n", "Span", "Label", "Score", "Calib.", "Decision")
	for _, p := range res.Predictions {
		renderPredictionRow(w, p, isFinding(res.Findings, p))
	}
}

func renderPredictionRow(w io.Writer, p ensemble.Prediction, finding bool) {
	label := string(p.Label)
	if label == "" {
		label = "-"
	}
	decision := "below threshold"
	if finding {
		decision = "✓ PII"
	}
	fmt.Fprintf(w, "%-8s %-14s %8s %8s  %s\n",
		fmt.Sprintf("%d:%d", p.Span.Start, p.Span.End),
		label,
		formatScore(p.Score),
		formatScore(p.Confidence()),
		decision,
	)
}

func isFinding(findings []ensemble.Prediction, p ensemble.Prediction) bool {
	for _, f := range findings {
		if f.Span.Start == p.Span.Start && f.Span.End == p.Span.End && f.Label == p.Label {
			return true
		}
	}
	return false
}

// parseFields turns name=value pairs into a metadata map.
func parseFields(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for i, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			// The value may be sensitive, so only its position is reported.
			return nil, fmt.Errorf("invalid field #%d (want name=value)", i+1)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}
