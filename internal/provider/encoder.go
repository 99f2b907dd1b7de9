package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDim is the HashEncoder vector size when none is configured.
const DefaultHashDim = 256

// Encoder turns sanitized context windows into fixed-size vectors. Name
// identifies the vector space; a classifier only works with the encoder
// it was trained with.
type Encoder interface {
	Name() string
	Encode(ctx context.Context, texts []string) ([][]float64, error)
}

// HashEncoder is a deterministic offline encoder using signed feature
// hashing over word and character trigram features.
type HashEncoder struct {
	dim int
}

// NewHashEncoder returns a HashEncoder producing dim-sized vectors.
func NewHashEncoder(dim int) *HashEncoder {
	if dim <= 0 {
		dim = DefaultHashDim
	}
	return &HashEncoder{dim: dim}
}

// Name returns the encoder identifier, including its dimension.
func (e *HashEncoder) Name() string { return fmt.Sprintf("hash-%d", e.dim) }

// Encode returns one L2-normalized vector per text.
func (e *HashEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float64, e.dim)
		for _, f := range hashFeatures(text) {
			h := fnv.New64a()
			_, _ = h.Write([]byte(f))
			sum := h.Sum64()
			sign := 1.0
			if sum>>63 == 1 {
				sign = -1
			}
			vec[sum%uint64(e.dim)] += sign
		}
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

// hashFeatures returns word unigrams, word bigrams and padded character
// trigrams. Bracket tokens such as [EMAIL] stay whole.
func hashFeatures(text string) []string {
	words := tokenize(text)
	feats := make([]string, 0, len(words)*4)
	for i, w := range words {
		feats = append(feats, "w:"+w)
		if i > 0 {
			feats = append(feats, "b:"+words[i-1]+" "+w)
		}
		if strings.HasPrefix(w, "[") {
			continue
		}
		padded := []rune("^" + w + "$")
		for j := 0; j+3 <= len(padded); j++ {
			feats = append(feats, "c:"+string(padded[j:j+3]))
		}
	}
	return feats
}

func tokenize(text string) []string {
	var (
		words   []string
		cur     strings.Builder
		bracket bool
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r == '[':
			flush()
			bracket = true
			cur.WriteRune(r)
		case r == ']' && bracket:
			cur.WriteRune(r)
			bracket = false
			flush()
		case bracket:
			cur.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return words
}

func normalize(vec []float64) {
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
}
