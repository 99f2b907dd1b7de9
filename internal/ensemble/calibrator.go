package ensemble

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/logreg"
)

// CalibratorFile is the calibrator's file name in a model dir.
const CalibratorFile = "calibrator.msgpack"

const calibratorBlobVersion = 1

// Pair is a Platt scaler: p = σ(A·x + B).
type Pair struct {
	A float64 `msgpack:"a" json:"a"`
	B float64 `msgpack:"b" json:"b"`
}

// IdentityPair leaves raw scores unscaled before the sigmoid.
var IdentityPair = Pair{A: 1, B: 0}

// Calibrator maps raw per-type scores to probabilities. It is never
// modified after construction and is safe for concurrent use.
type Calibrator struct {
	pairs map[classifier.PIIType]Pair
}

type calibratorBlob struct {
	Version int             `msgpack:"version"`
	Pairs   map[string]Pair `msgpack:"pairs"`
}

// IdentityCalibrator returns a calibrator with (1, 0) for every type.
func IdentityCalibrator() *Calibrator {
	pairs := make(map[classifier.PIIType]Pair, len(classifier.AllTypes))
	for _, t := range classifier.AllTypes {
		pairs[t] = IdentityPair
	}
	return &Calibrator{pairs: pairs}
}

// FitCalibrator fits one scaler per type on (raw[i][t], gold[i] == t).
// Types whose labels are all positive or all negative keep IdentityPair.
// An empty gold entry means the candidate is not PII.
func FitCalibrator(raw []map[classifier.PIIType]float64, gold []classifier.PIIType) (*Calibrator, error) {
	if len(raw) != len(gold) {
		return nil, fmt.Errorf("fit calibrator: %d score rows for %d labels", len(raw), len(gold))
	}
	cal := IdentityCalibrator()
	if len(raw) == 0 {
		return cal, nil
	}
	for _, t := range classifier.AllTypes {
		X := make([][]float64, len(raw))
		y := make([]int, len(raw))
		for i, scores := range raw {
			X[i] = []float64{scores[t]}
			if gold[i] == t {
				y[i] = 1
			}
		}
		m, err := logreg.Fit(X, y, logreg.Options{L2: 1 / float64(len(raw))})
		if errors.Is(err, logreg.ErrSingleClass) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fit calibrator for %s: %w", t, err)
		}
		cal.pairs[t] = Pair{A: m.Weights[0], B: m.Bias}
	}
	return cal, nil
}

// Pair returns the scaler for t, IdentityPair when none was fitted.
func (c *Calibrator) Pair(t classifier.PIIType) Pair {
	if p, ok := c.pairs[t]; ok {
		return p
	}
	return IdentityPair
}

// Probability calibrates one raw score for t.
func (c *Calibrator) Probability(t classifier.PIIType, raw float64) float64 {
	p := c.Pair(t)
	return logreg.Sigmoid(p.A*raw + p.B)
}

// Apply calibrates every entry of scores into a new map.
func (c *Calibrator) Apply(scores map[classifier.PIIType]float64) map[classifier.PIIType]float64 {
	out := make(map[classifier.PIIType]float64, len(scores))
	for t, s := range scores {
		out[t] = c.Probability(t, s)
	}
	return out
}

// Save writes the calibrator as a msgpack blob, creating parent dirs.
func (c *Calibrator) Save(path string) error {
	blob := calibratorBlob{Version: calibratorBlobVersion, Pairs: make(map[string]Pair, len(c.pairs))}
	for t, p := range c.pairs {
		blob.Pairs[string(t)] = p
	}
	data, err := msgpack.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encoding calibrator: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing calibrator %s: %w", path, err)
	}
	return nil
}

// LoadCalibrator reads a calibrator written by Save. Types absent from the
// blob get IdentityPair.
func LoadCalibrator(path string) (*Calibrator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading calibrator %s: %w", path, err)
	}
	var blob calibratorBlob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decoding calibrator %s: %w", path, err)
	}
	if blob.Version != calibratorBlobVersion {
		return nil, fmt.Errorf("calibrator %s: unsupported version %d", path, blob.Version)
	}
	cal := IdentityCalibrator()
	for name, p := range blob.Pairs {
		t, err := classifier.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("calibrator %s: %w", path, err)
		}
		cal.pairs[t] = p
	}
	return cal, nil
}

// LoadCalibratorDir loads CalibratorFile from dir, returning the identity
// calibrator when the file does not exist.
func LoadCalibratorDir(dir string) (*Calibrator, error) {
	cal, err := LoadCalibrator(filepath.Join(dir, CalibratorFile))
	if errors.Is(err, os.ErrNotExist) {
		return IdentityCalibrator(), nil
	}
	return cal, err
}
