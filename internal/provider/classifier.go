package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/logreg"
)

// ClassifierFile is the embedding classifier's file name in a model dir.
const ClassifierFile = "embed.msgpack"

const classifierBlobVersion = 1

// typeModel is the one-vs-rest estimator for a single type. Types seen with
// a single class during training keep a constant probability.
type typeModel struct {
	Type     classifier.PIIType `msgpack:"type"`
	Constant bool               `msgpack:"constant"`
	P        float64            `msgpack:"p"`
	Scale    []float64          `msgpack:"scale"`
	Model    logreg.Model       `msgpack:"model"`
}

func (m typeModel) predict(x []float64) float64 {
	if m.Constant {
		return m.P
	}
	scaled := make([]float64, len(x))
	for j, v := range x {
		if j < len(m.Scale) {
			v /= m.Scale[j]
		}
		scaled[j] = v
	}
	return m.Model.Predict(scaled)
}

type classifierBlob struct {
	Version int         `msgpack:"version"`
	Encoder string      `msgpack:"encoder"`
	Models  []typeModel `msgpack:"models"`
}

// Classifier is an embedding provider: an encoder followed by one logistic
// model per PII type. It is immutable once trained or loaded.
type Classifier struct {
	encoder Encoder
	models  []typeModel
}

// Name returns the provider identifier.
func (c *Classifier) Name() string { return "classifier:" + c.encoder.Name() }

// PredictProba encodes texts and scores every type.
func (c *Classifier) PredictProba(ctx context.Context, texts []string) ([]map[classifier.PIIType]float64, error) {
	vecs, err := c.encoder.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("encoding contexts: %w", err)
	}
	out := make([]map[classifier.PIIType]float64, len(texts))
	for i, x := range vecs {
		dist := NeutralDistribution()
		for _, m := range c.models {
			dist[m.Type] = m.predict(x)
		}
		out[i] = dist
	}
	return out, nil
}

// TrainClassifier fits a one-vs-rest classifier on sanitized training
// contexts and their gold types. Features are divided by their standard
// deviation and classes are balanced per type.
func TrainClassifier(ctx context.Context, enc Encoder, texts []string, labels []classifier.PIIType) (*Classifier, error) {
	if len(texts) == 0 || len(texts) != len(labels) {
		return nil, fmt.Errorf("training classifier: %d texts, %d labels", len(texts), len(labels))
	}
	X, err := enc.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("encoding training contexts: %w", err)
	}
	scale := featureScale(X)
	scaled := make([][]float64, len(X))
	for i, row := range X {
		scaled[i] = make([]float64, len(row))
		for j, v := range row {
			scaled[i][j] = v / scale[j]
		}
	}

	models := make([]typeModel, 0, len(classifier.AllTypes))
	for _, t := range classifier.AllTypes {
		y := make([]int, len(labels))
		pos := 0
		for i, l := range labels {
			if l == t {
				y[i] = 1
				pos++
			}
		}
		switch pos {
		case 0:
			models = append(models, typeModel{Type: t, Constant: true, P: 0})
			continue
		case len(y):
			models = append(models, typeModel{Type: t, Constant: true, P: 1})
			continue
		}
		m, err := logreg.Fit(scaled, y, logreg.Options{
			L2:            1 / float64(len(y)),
			SampleWeights: logreg.BalancedWeights(y),
		})
		if err != nil {
			return nil, fmt.Errorf("fitting %s model: %w", t, err)
		}
		models = append(models, typeModel{Type: t, Scale: scale, Model: m})
	}
	return &Classifier{encoder: enc, models: models}, nil
}

// featureScale returns the per-column standard deviation, with 1 for
// constant columns.
func featureScale(X [][]float64) []float64 {
	d := len(X[0])
	mean := make([]float64, d)
	for _, row := range X {
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(X))
	for j := range mean {
		mean[j] /= n
	}
	scale := make([]float64, d)
	for _, row := range X {
		for j, v := range row {
			diff := v - mean[j]
			scale[j] += diff * diff
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] < 1e-12 {
			scale[j] = 1
		}
	}
	return scale
}

// Save writes the classifier as a msgpack blob, creating parent dirs.
func (c *Classifier) Save(path string) error {
	data, err := msgpack.Marshal(classifierBlob{
		Version: classifierBlobVersion,
		Encoder: c.encoder.Name(),
		Models:  c.models,
	})
	if err != nil {
		return fmt.Errorf("encoding classifier: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing classifier %s: %w", path, err)
	}
	return nil
}

// LoadClassifier reads a classifier written by Save. enc must be the
// encoder it was trained with (same Name), otherwise ErrEncoderMismatch.
func LoadClassifier(path string, enc Encoder) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading classifier %s: %w", path, err)
	}
	var blob classifierBlob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decoding classifier %s: %w", path, err)
	}
	if blob.Version != classifierBlobVersion {
		return nil, fmt.Errorf("classifier %s: unsupported version %d", path, blob.Version)
	}
	if blob.Encoder != enc.Name() {
		return nil, fmt.Errorf("%w: trained with %q, configured %q", ErrEncoderMismatch, blob.Encoder, enc.Name())
	}
	for _, m := range blob.Models {
		if !m.Type.Valid() {
			return nil, fmt.Errorf("classifier %s: %w: %q", path, classifier.ErrUnknownType, m.Type)
		}
	}
	return &Classifier{encoder: enc, models: blob.Models}, nil
}

// loadOptionalClassifier returns (nil, nil) when path does not exist.
func loadOptionalClassifier(path string, enc Encoder) (*Classifier, error) {
	c, err := LoadClassifier(path, enc)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return c, err
}
