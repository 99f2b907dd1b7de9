package eval

import (
	"fmt"
	"io"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// Render writes a fixed-width table of the report to w: one row per type
// that has any counts, then the micro and macro averages.
func Render(w io.Writer, r *Report) {
	fmt.Fprintf(w, "Examples: %d", r.Examples)
	if r.Failed > 0 {
		fmt.Fprintf(w, " (%d failed)", r.Failed)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-14s %6s %6s %6s %10s %10s %10s\n", "Type", "TP", "FP", "FN", "Precision", "Recall", "F1")
	fmt.Fprintf(w, "%-14s %6s %6s %6s %10s %10s %10s\n", "----", "--", "--", "--", "---------", "------", "--")
	for _, t := range classifier.AllTypes {
		c := r.PerTypeCounts[t]
		if c == (Counts{}) {
			continue
		}
		s := r.PerType[t]
		fmt.Fprintf(w, "%-14s %6d %6d %6d %10.3f %10.3f %10.3f\n", t, c.TP, c.FP, c.FN, s.Precision, s.Recall, s.F1)
	}
	fmt.Fprintf(w, "%-14s %6s %6s %6s %10s %10s %10s\n", "----", "--", "--", "--", "---------", "------", "--")
	fmt.Fprintf(w, "%-14s %6d %6d %6d %10.3f %10.3f %10.3f\n", "micro", r.Counts.TP, r.Counts.FP, r.Counts.FN, r.Micro.Precision, r.Micro.Recall, r.Micro.F1)
	fmt.Fprintf(w, "%-14s %6s %6s %6s %10.3f %10.3f %10.3f\n", "macro", "", "", "", r.Macro.Precision, r.Macro.Recall, r.Macro.F1)
}
