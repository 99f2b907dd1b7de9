package redact

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// DefaultWindow is the number of bytes kept on each side of a candidate.
const DefaultWindow = 48

// Context is a sanitized window around one candidate. Start and End are the
// window bounds in the source text; Text is the redacted window content.
type Context struct {
	Start int
	End   int
	Text  string
}

// Builder builds sanitized context windows. The zero value uses a window
// radius of zero; use NewBuilder.
type Builder struct {
	window int
}

// NewBuilder returns a Builder with the given window radius. Negative
// values are treated as zero.
func NewBuilder(window int) *Builder {
	if window < 0 {
		window = 0
	}
	return &Builder{window: window}
}

// Window returns the radius in bytes.
func (b *Builder) Window() int { return b.window }

// Contexts returns one sanitized window per candidate, in candidate order.
// Every candidate span and every NER span that intersects a window is
// replaced by its type token; unlabeled candidates use UnlabeledToken.
// Each window is then checked: if the text of any span of this input still
// occurs in it, a *ViolationError is returned and no windows are produced.
func (b *Builder) Contexts(text string, candidates []classifier.Candidate, ner []classifier.LabeledSpan) ([]Context, error) {
	spans := make([]classifier.LabeledSpan, 0, len(candidates)+len(ner))
	for _, c := range candidates {
		spans = append(spans, classifier.LabeledSpan{Span: c.Span, Type: c.RuleLabel})
	}
	spans = append(spans, ner...)

	out := make([]Context, len(candidates))
	for i, c := range candidates {
		ctx, err := b.build(text, c.Span, spans)
		if err != nil {
			return nil, err
		}
		out[i] = ctx
	}
	return out, nil
}

// TrainingContext builds the sanitized window around gold[idx], masking
// every gold span that reaches into it. Used to build embedding training
// inputs without exposing labeled values.
func TrainingContext(text string, gold []classifier.LabeledSpan, idx, window int) (string, error) {
	if idx < 0 || idx >= len(gold) {
		return "", fmt.Errorf("training context: index %d out of range for %d labels", idx, len(gold))
	}
	if !gold[idx].Span.ValidIn(text) {
		return "", fmt.Errorf("training context: label %d does not index into text", idx)
	}
	ctx, err := NewBuilder(window).build(text, gold[idx].Span, gold)
	if err != nil {
		return "", err
	}
	return ctx.Text, nil
}

func (b *Builder) build(text string, center classifier.Span, spans []classifier.LabeledSpan) (Context, error) {
	lo, hi := bounds(text, center, b.window)
	raw := text[lo:hi]

	var local []classifier.LabeledSpan
	for _, ls := range spans {
		s := ls.Span
		if s.Start >= s.End || s.End > len(text) {
			continue
		}
		if s.Start < hi && lo < s.End {
			rs := max(s.Start, lo) - lo
			re := min(s.End, hi) - lo
			local = append(local, classifier.LabeledSpan{
				Span: classifier.Span{Start: rs, End: re, Text: raw[rs:re]},
				Type: ls.Type,
			})
		}
	}
	redacted := TypedRedactText(raw, local)
	redacted = scrubRecurrences(redacted, spans)

	if err := Check(redacted, spans); err != nil {
		var v *ViolationError
		if errors.As(err, &v) {
			v.WindowStart, v.WindowEnd = lo, hi
		}
		return Context{}, err
	}
	return Context{Start: lo, End: hi, Text: redacted}, nil
}

// bounds returns [max(0,start-w), min(len,end+w)) widened to rune boundaries.
func bounds(text string, s classifier.Span, w int) (int, int) {
	lo := max(0, s.Start-w)
	hi := min(len(text), s.End+w)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return lo, hi
}

// scrubRecurrences replaces further literal occurrences of detected values
// that were not themselves detected, e.g. a name NER found only once.
func scrubRecurrences(window string, spans []classifier.LabeledSpan) string {
	ordered := make([]classifier.LabeledSpan, 0, len(spans))
	for _, ls := range spans {
		if ls.Span.Text != "" {
			ordered = append(ordered, ls)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i].Span.Text) > len(ordered[j].Span.Text) })
	for _, ls := range ordered {
		if strings.Contains(window, ls.Span.Text) {
			window = strings.ReplaceAll(window, ls.Span.Text, TokenFor(ls.Type))
		}
	}
	return window
}

// Check verifies that no non-empty span text occurs in s. It returns a
// *ViolationError for the first span that does.
func Check(s string, spans []classifier.LabeledSpan) error {
	for _, ls := range spans {
		if ls.Span.Text == "" {
			continue
		}
		if strings.Contains(s, ls.Span.Text) {
			return &ViolationError{Type: ls.Type, SpanStart: ls.Span.Start, SpanEnd: ls.Span.End}
		}
	}
	return nil
}
