package eval

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/dataset"
	"github.com/dativo-io/piiscan/internal/engine"
	"github.com/dativo-io/piiscan/internal/ensemble"
	"github.com/dativo-io/piiscan/internal/provider"
)

func pred(start, end int, label classifier.PIIType) ensemble.Prediction {
	return ensemble.Prediction{
		Span:    classifier.Span{Start: start, End: end},
		Label:   label,
		Score:   1,
		Signals: ensemble.Signals{Calibrated: map[classifier.PIIType]float64{label: 0.9}},
	}
}

func gold(start, end int, typ classifier.PIIType) classifier.LabeledSpan {
	return classifier.LabeledSpan{Span: classifier.Span{Start: start, End: end}, Type: typ}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		preds []ensemble.Prediction
		gold  []classifier.LabeledSpan
		want  Counts
	}{
		{"exact match", []ensemble.Prediction{pred(5, 20, classifier.Email)}, []classifier.LabeledSpan{gold(5, 20, classifier.Email)}, Counts{TP: 1}},
		{"partial overlap", []ensemble.Prediction{pred(3, 10, classifier.Email)}, []classifier.LabeledSpan{gold(5, 20, classifier.Email)}, Counts{TP: 1}},
		{"touching is not overlap", []ensemble.Prediction{pred(0, 5, classifier.Email)}, []classifier.LabeledSpan{gold(5, 20, classifier.Email)}, Counts{FP: 1, FN: 1}},
		{"wrong type", []ensemble.Prediction{pred(5, 20, classifier.Person)}, []classifier.LabeledSpan{gold(5, 20, classifier.Email)}, Counts{FP: 1, FN: 1}},
		{"gold used once", []ensemble.Prediction{pred(5, 12, classifier.Email), pred(10, 20, classifier.Email)}, []classifier.LabeledSpan{gold(5, 20, classifier.Email)}, Counts{TP: 1, FP: 1}},
		{"no predictions", nil, []classifier.LabeledSpan{gold(0, 3, classifier.SSN), gold(4, 8, classifier.Date)}, Counts{FN: 2}},
		{"no gold", []ensemble.Prediction{pred(0, 3, classifier.SSN)}, nil, Counts{FP: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.preds, tt.gold).Total)
		})
	}
}

func TestMatch_AttributesPerType(t *testing.T) {
	tally := Match(
		[]ensemble.Prediction{pred(5, 20, classifier.Person)},
		[]classifier.LabeledSpan{gold(5, 20, classifier.Email)},
	)
	assert.Equal(t, Counts{FP: 1}, tally.PerType[classifier.Person])
	assert.Equal(t, Counts{FN: 1}, tally.PerType[classifier.Email])
	assert.Len(t, tally.PerType, len(classifier.AllTypes))
}

func TestReport_ExactMatchScenario(t *testing.T) {
	r := NewReport(Match(
		[]ensemble.Prediction{pred(5, 20, classifier.Email)},
		[]classifier.LabeledSpan{gold(5, 20, classifier.Email)},
	))
	assert.Equal(t, Counts{TP: 1}, r.PerTypeCounts[classifier.Email])
	assert.Equal(t, Scores{Precision: 1, Recall: 1, F1: 1}, r.PerType[classifier.Email])
	assert.Equal(t, Scores{Precision: 1, Recall: 1, F1: 1}, r.Micro)

	n := float64(len(classifier.AllTypes))
	assert.InDelta(t, 1/n, r.Macro.Precision, 1e-12)
	assert.InDelta(t, 1/n, r.Macro.F1, 1e-12)
}

func TestScore_ZeroGuards(t *testing.T) {
	assert.Equal(t, Scores{}, Score(Counts{}))
	assert.Equal(t, Scores{}, Score(Counts{FP: 3, FN: 2}))
	s := Score(Counts{TP: 1, FP: 1, FN: 3})
	assert.InDelta(t, 0.5, s.Precision, 1e-12)
	assert.InDelta(t, 0.25, s.Recall, 1e-12)
	assert.InDelta(t, 1.0/3, s.F1, 1e-12)
}

type mapPredictor map[string][]ensemble.Prediction

func (m mapPredictor) Predict(_ context.Context, text string) ([]ensemble.Prediction, error) {
	preds, ok := m[text]
	if !ok {
		return nil, errors.New("scan failed")
	}
	return preds, nil
}

func TestRun(t *testing.T) {
	examples := []dataset.LabeledExample{
		{Text: "a", Labels: []classifier.LabeledSpan{gold(0, 1, classifier.Email)}},
		{Text: "b", Labels: []classifier.LabeledSpan{gold(0, 1, classifier.SSN)}},
		{Text: "c", Labels: []classifier.LabeledSpan{gold(0, 1, classifier.Date)}},
	}
	low := pred(0, 1, classifier.SSN)
	low.Signals.Calibrated[classifier.SSN] = 0.2
	p := mapPredictor{
		"a": {pred(0, 1, classifier.Email)},
		"b": {low},
	}

	r, err := Run(context.Background(), examples, p, Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Examples)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, Counts{TP: 2, FN: 1}, r.Counts)

	r, err = Run(context.Background(), examples, p, Options{MinConfidence: 0.5})
	require.NoError(t, err)
	assert.Equal(t, Counts{TP: 1, FN: 2}, r.Counts)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, []dataset.LabeledExample{{Text: "a"}}, mapPredictor{}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

type fixedScorer struct{}

func (fixedScorer) RawScores(_ context.Context, text string) ([]classifier.Candidate, []map[classifier.PIIType]float64, error) {
	if text == "broken" {
		return nil, nil, errors.New("violation")
	}
	cands := []classifier.Candidate{
		{Span: classifier.Span{Start: 0, End: 2}},
		{Span: classifier.Span{Start: 3, End: 5}},
	}
	raw := []map[classifier.PIIType]float64{
		{classifier.Email: 0.4},
		{classifier.Email: 0.05},
	}
	return cands, raw, nil
}

func TestCalibrateOnDataset_LabelsByOverlap(t *testing.T) {
	var examples []dataset.LabeledExample
	for i := 0; i < 10; i++ {
		examples = append(examples, dataset.LabeledExample{
			Text:   "xx yy",
			Labels: []classifier.LabeledSpan{gold(1, 2, classifier.Email)},
		})
	}
	examples = append(examples, dataset.LabeledExample{Text: "broken"})

	cal, err := CalibrateOnDataset(context.Background(), examples, fixedScorer{})
	require.NoError(t, err)
	assert.Greater(t, cal.Pair(classifier.Email).A, 0.0)
	assert.Greater(t, cal.Probability(classifier.Email, 0.4), cal.Probability(classifier.Email, 0.05))
	assert.Equal(t, ensemble.IdentityPair, cal.Pair(classifier.SSN))
}

func newEngine(t *testing.T, cal *ensemble.Calibrator) *engine.Engine {
	t.Helper()
	ens, err := ensemble.New(ensemble.DefaultConfig(), cal, nil, nil)
	require.NoError(t, err)
	e, err := engine.New(engine.Config{
		Scanner:  classifier.MustNewScanner(),
		Ensemble: ens,
		Detector: provider.NewRegexNER(),
	})
	require.NoError(t, err)
	return e
}

func TestSyntheticRoundTrip(t *testing.T) {
	examples := dataset.GenerateSynthetic(80, 42)

	cal, err := CalibrateOnDataset(context.Background(), examples, newEngine(t, nil))
	require.NoError(t, err)
	assert.Greater(t, cal.Pair(classifier.Email).A, 0.0)

	r, err := Run(context.Background(), examples, newEngine(t, cal), Options{Workers: 4})
	require.NoError(t, err)
	assert.Zero(t, r.Failed)
	assert.Greater(t, r.Micro.Recall, 0.5)
	assert.InDelta(t, 1.0, r.PerType[classifier.Email].Recall, 1e-9)

	var buf bytes.Buffer
	Render(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "Examples: 80")
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "micro")
	assert.Contains(t, out, "macro")
}

func TestRender_SkipsEmptyTypes(t *testing.T) {
	r := NewReport(Match([]ensemble.Prediction{pred(0, 3, classifier.SSN)}, []classifier.LabeledSpan{gold(0, 3, classifier.SSN)}))
	r.Examples = 1
	var buf bytes.Buffer
	Render(&buf, r)
	assert.Contains(t, buf.String(), "SSN")
	assert.NotContains(t, buf.String(), "MAC_ADDRESS")
}
