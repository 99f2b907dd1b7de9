package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/dataset"
	"github.com/dativo-io/piiscan/internal/ensemble"
	"github.com/dativo-io/piiscan/internal/eval"
	"github.com/dativo-io/piiscan/internal/provider"
)

// writeSynthetic generates a labeled dataset through the CLI.
func writeSynthetic(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "synthetic.jsonl")
	_, err := execute(t, "gen-synth", "-n", strconv.Itoa(n), "--seed", "7", "-o", path)
	require.NoError(t, err)
	return path
}

func TestGenSynthCmd_File(t *testing.T) {
	path := writeSynthetic(t, 25)

	examples, bad, err := dataset.LoadExamples(path)
	require.NoError(t, err)
	assert.Empty(t, bad)
	assert.Len(t, examples, 25)
	assert.Equal(t, dataset.GenerateSynthetic(25, 7), examples)
}

func TestGenSynthCmd_Stdout(t *testing.T) {
	out, err := execute(t, "gen-synth", "-n", "3", "--seed", "1", "-o", "-")
	require.NoError(t, err)

	examples, bad, err := dataset.ReadExamples(strings.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, bad)
	assert.Len(t, examples, 3)
}

func TestGenSynthCmd_InvalidCount(t *testing.T) {
	_, err := execute(t, "gen-synth", "-n", "0", "-o", "-")
	require.Error(t, err)
}

func TestTrainingContexts(t *testing.T) {
	examples := dataset.GenerateSynthetic(10, 3)
	texts, labels := trainingContexts(examples, 24)

	total := 0
	for _, ex := range examples {
		total += len(ex.Labels)
	}
	require.Len(t, texts, total)
	require.Len(t, labels, total)

	i := 0
	for _, ex := range examples {
		for _, l := range ex.Labels {
			assert.Equal(t, l.Type, labels[i])
			assert.NotContains(t, texts[i], l.Span.Text)
			i++
		}
	}
}

func TestTrainEmbedCmd(t *testing.T) {
	dir := useModelDir(t)
	data := writeSynthetic(t, 40)

	out, err := execute(t, "train-embed", "-i", data)
	require.NoError(t, err)
	assert.Contains(t, out, "Embedding classifier written")
	assert.Contains(t, out, "Examples: 40")

	path := filepath.Join(dir, provider.ClassifierFile)
	_, err = provider.LoadClassifier(path, provider.NewHashEncoder(provider.DefaultHashDim))
	require.NoError(t, err)
}

func TestTrainEmbedCmd_MissingInput(t *testing.T) {
	useModelDir(t)
	_, err := execute(t, "train-embed", "-i", filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}

func TestCalibrateCmd(t *testing.T) {
	dir := useModelDir(t)
	data := writeSynthetic(t, 40)

	out, err := execute(t, "calibrate", "-i", data)
	require.NoError(t, err)
	assert.Contains(t, out, "Calibrator written")
	assert.Contains(t, out, string(classifier.Email))

	cal, err := ensemble.LoadCalibrator(filepath.Join(dir, ensemble.CalibratorFile))
	require.NoError(t, err)
	assert.Greater(t, cal.Pair(classifier.Email).A, 0.0)
}

func TestEvalCmd(t *testing.T) {
	useModelDir(t)
	data := writeSynthetic(t, 30)

	out, err := execute(t, "eval", "-i", data, "--json=false", "--min-confidence", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Examples: 30")
	assert.Contains(t, out, "micro")

	out, err = execute(t, "eval", "-i", data, "--json", "--min-confidence", "0")
	require.NoError(t, err)
	var report eval.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 30, report.Examples)
	assert.Zero(t, report.Failed)
	assert.Greater(t, report.Micro.Recall, 0.5)
}

func TestEvalCmd_HelpDescribesMatching(t *testing.T) {
	assert.Contains(t, evalCmd.Long, "overlap-matched")
	assert.NotContains(t, evalCmd.Long, "exact-span")
}

func TestEvalCmd_InvalidMinConfidence(t *testing.T) {
	useModelDir(t)
	data := writeSynthetic(t, 2)
	_, err := execute(t, "eval", "-i", data, "--min-confidence", "1.5")
	require.Error(t, err)
}

func TestLoadExamples_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))
	_, err := loadExamples(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid examples")
}
