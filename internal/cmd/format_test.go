package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/engine"
	"github.com/dativo-io/piiscan/internal/ensemble"
)

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "0.000", formatScore(0))
	assert.Equal(t, "< 0.001", formatScore(0.0004))
	assert.Equal(t, "0.001", formatScore(0.001))
	assert.Equal(t, "0.857", formatScore(0.8571))
	assert.Equal(t, "1.000", formatScore(1))
}

func TestParseFields(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"pairs", []string{"col=customer email", " tag =pii"}, map[string]string{"col": "customer email", "tag": "pii"}, false},
		{"value with equals", []string{"expr=a=b"}, map[string]string{"expr": "a=b"}, false},
		{"empty value", []string{"col="}, map[string]string{"col": ""}, false},
		{"missing separator", []string{"col"}, nil, true},
		{"missing name", []string{"=value"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFields(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFields_ErrorOmitsValue(t *testing.T) {
	_, err := parseFields([]string{"ok=1", "john.doe@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#2")
	assert.NotContains(t, err.Error(), "john.doe")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]string{"a": "<b>"}, false))
	assert.Equal(t, "{\"a\":\"<b>\"}\n", buf.String())

	buf.Reset()
	require.NoError(t, writeJSON(&buf, map[string]int{"a": 1}, true))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestRenderScanResult(t *testing.T) {
	email := ensemble.Prediction{
		Span:    classifier.Span{Start: 5, End: 20, Text: "ops@example.com"},
		Label:   classifier.Email,
		Score:   0.9,
		Signals: ensemble.Signals{Calibrated: map[classifier.PIIType]float64{classifier.Email: 0.8}},
	}
	unlabeled := ensemble.Prediction{Span: classifier.Span{Start: 24, End: 28, Text: "1234"}}
	res := &engine.Result{
		CorrelationID: "scan_1",
		RedactedText:  "mail xxx@xxxxxxx.xxx pin 0000",
		Predictions:   []ensemble.Prediction{email, unlabeled},
		Findings:      []ensemble.Prediction{email},
	}

	var buf bytes.Buffer
	renderScanResult(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "Correlation ID: scan_1")
	assert.Contains(t, out, "Redacted: mail xxx@xxxxxxx.xxx pin 0000")
	assert.Contains(t, out, "5:20")
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "0.800")
	assert.Contains(t, out, "✓ PII")
	assert.Contains(t, out, "below threshold")
	assert.NotContains(t, out, "ops@example.com")
	assert.NotContains(t, out, "1234")
}

func TestRenderScanResult_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderScanResult(&buf, &engine.Result{CorrelationID: "scan_2", RedactedText: "hello"})
	assert.Contains(t, buf.String(), "No PII candidates found.")
}

func TestRenderTrainSummary(t *testing.T) {
	var buf bytes.Buffer
	renderTrainSummary(&buf, "Calibrator", "/m/calibrator.msgpack", 12, -1)
	assert.Contains(t, buf.String(), "✓ Calibrator written: /m/calibrator.msgpack")
	assert.Contains(t, buf.String(), "Examples: 12")
	assert.NotContains(t, buf.String(), "Training contexts")

	buf.Reset()
	renderTrainSummary(&buf, "Embedding classifier", "/m/embed.msgpack", 12, 30)
	assert.Contains(t, buf.String(), "Training contexts: 30")
}
