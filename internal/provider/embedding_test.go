package provider

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiscan/internal/classifier"
)

func assertNeutral(t *testing.T, dist map[classifier.PIIType]float64) {
	t.Helper()
	require.Len(t, dist, len(classifier.AllTypes))
	for _, typ := range classifier.AllTypes {
		assert.Zero(t, dist[typ], typ)
	}
}

func TestNeutral(t *testing.T) {
	out, err := Neutral{}.PredictProba(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assertNeutral(t, out[0])
	assertNeutral(t, out[1])
}

func TestProbabilities_Degrades(t *testing.T) {
	ctx := context.Background()
	texts := []string{"[EMAIL] here", "[PHONE_NUMBER] there"}

	tests := []struct {
		name string
		p    EmbeddingProvider
	}{
		{"nil provider", nil},
		{"error", &fakeEmbedding{err: errors.New("model offline")}},
		{"misaligned", &fakeEmbedding{probs: []map[classifier.PIIType]float64{{classifier.Email: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Probabilities(ctx, tt.p, texts)
			require.Len(t, out, 2)
			assertNeutral(t, out[0])
			assertNeutral(t, out[1])
		})
	}
}

func TestProbabilities_CleansValues(t *testing.T) {
	p := &fakeEmbedding{probs: []map[classifier.PIIType]float64{{
		classifier.Email:       1.7,
		classifier.PhoneNumber: -0.2,
		classifier.Person:      math.NaN(),
		classifier.Date:        0.25,
		"ORG":                  0.9,
	}}}

	out := Probabilities(context.Background(), p, []string{"x"})
	require.Len(t, out, 1)
	dist := out[0]
	assert.Len(t, dist, len(classifier.AllTypes))
	assert.Equal(t, 1.0, dist[classifier.Email])
	assert.Equal(t, 0.0, dist[classifier.PhoneNumber])
	assert.Equal(t, 0.0, dist[classifier.Person])
	assert.Equal(t, 0.25, dist[classifier.Date])
	_, hasOrg := dist["ORG"]
	assert.False(t, hasOrg)
}
