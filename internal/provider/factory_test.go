package provider

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNER(t *testing.T) {
	tests := []struct {
		name     string
		settings NERSettings
		wantName string
		wantNil  bool
		wantErr  bool
	}{
		{name: "disabled", settings: NERSettings{Provider: NERRegex}, wantNil: true},
		{name: "none", settings: NERSettings{Enabled: true, Provider: NERNone}, wantNil: true},
		{name: "regex", settings: NERSettings{Enabled: true, Provider: NERRegex}, wantName: "regex"},
		{name: "default is regex", settings: NERSettings{Enabled: true}, wantName: "regex"},
		{name: "http", settings: NERSettings{Enabled: true, Provider: NERHTTP, URL: "http://localhost:9"}, wantName: "http"},
		{name: "http without url", settings: NERSettings{Enabled: true, Provider: NERHTTP}, wantErr: true},
		{name: "unknown", settings: NERSettings{Enabled: true, Provider: "spacy"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewNER(tt.settings)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestNewEmbedding(t *testing.T) {
	dir := t.TempDir()

	p, err := NewEmbedding(EmbeddingSettings{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewEmbedding(EmbeddingSettings{Enabled: true, Encoder: EncoderHash, Dim: 128, ModelDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "neutral", p.Name(), "untrained model dir falls back to neutral")

	texts, labels := trainingSet()
	c, err := TrainClassifier(context.Background(), NewHashEncoder(128), texts, labels)
	require.NoError(t, err)
	require.NoError(t, c.Save(filepath.Join(dir, ClassifierFile)))

	p, err = NewEmbedding(EmbeddingSettings{Enabled: true, Encoder: EncoderHash, Dim: 128, ModelDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "classifier:hash-128", p.Name())

	_, err = NewEmbedding(EmbeddingSettings{Enabled: true, Encoder: EncoderHash, Dim: 64, ModelDir: dir})
	assert.ErrorIs(t, err, ErrEncoderMismatch)

	_, err = NewEmbedding(EmbeddingSettings{Enabled: true, Encoder: "sbert", ModelDir: dir})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = NewEncoder(EmbeddingSettings{Encoder: EncoderOpenAI})
	assert.ErrorIs(t, err, ErrProviderNotAvailable)
}
