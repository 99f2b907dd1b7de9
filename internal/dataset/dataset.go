// Package dataset reads and writes labeled examples and scan inputs as
// JSON Lines, and generates synthetic labeled data.
package dataset

import (
	"encoding/json"
	"fmt"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// LabeledExample is a text with its gold PII spans.
type LabeledExample struct {
	Text   string
	Labels []classifier.LabeledSpan
}

// Validate checks every label is a known type and indexes into Text.
func (e LabeledExample) Validate() error {
	for i, l := range e.Labels {
		if !l.Type.Valid() {
			return fmt.Errorf("label %d: %w: %q", i, classifier.ErrUnknownType, l.Type)
		}
		if !l.Span.ValidIn(e.Text) {
			return fmt.Errorf("label %d: span [%d,%d) does not match text", i, l.Span.Start, l.Span.End)
		}
	}
	return nil
}

// Types returns the gold type of each label, in order.
func (e LabeledExample) Types() []classifier.PIIType {
	out := make([]classifier.PIIType, len(e.Labels))
	for i, l := range e.Labels {
		out[i] = l.Type
	}
	return out
}

type labelJSON struct {
	Start int                `json:"start"`
	End   int                `json:"end"`
	Type  classifier.PIIType `json:"type"`
	Text  string             `json:"text"`
}

type exampleJSON struct {
	Text   string      `json:"text"`
	Labels []labelJSON `json:"labels"`
}

// MarshalJSON encodes {"text","labels":[{"start","end","type","text"}]}.
func (e LabeledExample) MarshalJSON() ([]byte, error) {
	out := exampleJSON{Text: e.Text, Labels: make([]labelJSON, len(e.Labels))}
	for i, l := range e.Labels {
		out.Labels[i] = labelJSON{Start: l.Span.Start, End: l.Span.End, Type: l.Type, Text: l.Span.Text}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the JSONL row form. The label text, when given,
// must equal the text at its offsets; when omitted it is filled in.
func (e *LabeledExample) UnmarshalJSON(data []byte) error {
	var in exampleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	labels := make([]classifier.LabeledSpan, len(in.Labels))
	for i, l := range in.Labels {
		t, err := classifier.ParseType(string(l.Type))
		if err != nil {
			return fmt.Errorf("label %d: %w", i, err)
		}
		span, err := classifier.NewSpan(in.Text, l.Start, l.End)
		if err != nil {
			return fmt.Errorf("label %d: %w", i, err)
		}
		if l.Text != "" && l.Text != span.Text {
			return fmt.Errorf("label %d: text does not match offsets [%d,%d)", i, l.Start, l.End)
		}
		labels[i] = classifier.LabeledSpan{Span: span, Type: t}
	}
	e.Text = in.Text
	e.Labels = labels
	return nil
}

// TextRecord is one scan input: an identifier and the text to scan.
type TextRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}
