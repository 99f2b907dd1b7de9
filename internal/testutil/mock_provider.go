// Package testutil provides shared test helpers, mocks, and utilities for piiscan tests.
package testutil

import (
	"context"
	"sync"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/provider"
)

// MockNER implements provider.NERProvider for tests without a sidecar.
// Every text it receives is recorded so tests can assert what left the
// redaction boundary. Set Err to simulate an unavailable provider.
type MockNER struct {
	ProviderName string                              // provider identifier; empty = "mock"
	Find         func(text string) []provider.NERSpan // spans per text; nil finds nothing
	Err          error                               // if set, AnalyzeBatch returns this error

	mu     sync.Mutex
	inputs []string
}

// Name returns the provider identifier (implements provider.NERProvider).
func (m *MockNER) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// AnalyzeBatch records texts and returns the configured spans or error.
func (m *MockNER) AnalyzeBatch(_ context.Context, texts []string, _ string) ([][]provider.NERSpan, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, texts...)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]provider.NERSpan, len(texts))
	if m.Find != nil {
		for i, t := range texts {
			out[i] = m.Find(t)
		}
	}
	return out, nil
}

// Inputs returns every text seen so far.
func (m *MockNER) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

// MockEmbedding implements provider.EmbeddingProvider with a fixed
// distribution. A nil Dist returns the neutral distribution.
type MockEmbedding struct {
	Dist map[classifier.PIIType]float64
	Err  error

	mu     sync.Mutex
	inputs []string
}

// Name returns "mock-embedding".
func (m *MockEmbedding) Name() string { return "mock-embedding" }

// PredictProba records texts and returns Dist for each.
func (m *MockEmbedding) PredictProba(_ context.Context, texts []string) ([]map[classifier.PIIType]float64, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, texts...)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]map[classifier.PIIType]float64, len(texts))
	for i := range texts {
		if m.Dist == nil {
			out[i] = provider.NeutralDistribution()
			continue
		}
		d := make(map[classifier.PIIType]float64, len(m.Dist))
		for k, v := range m.Dist {
			d[k] = v
		}
		out[i] = d
	}
	return out, nil
}

// Inputs returns every text seen so far.
func (m *MockEmbedding) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}
