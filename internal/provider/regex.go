package provider

import (
	"context"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// Scores assigned by the regex fallback.
const (
	regexEmailScore  = 0.99
	regexPhoneScore  = 0.90
	regexPersonScore = 0.85
)

// RegexNER is a deterministic offline NER provider built on the email,
// phone and person recognizers. It needs no model and never fails.
type RegexNER struct {
	patterns []classifier.PIIPattern
}

// NewRegexNER returns the regex fallback provider.
func NewRegexNER() *RegexNER {
	return &RegexNER{patterns: classifier.PatternsFor(classifier.Email, classifier.PhoneNumber, classifier.Person)}
}

// Name returns the provider identifier.
func (r *RegexNER) Name() string { return "regex" }

// AnalyzeBatch finds emails, phone numbers and capitalized name pairs.
// The language hint is ignored.
func (r *RegexNER) AnalyzeBatch(ctx context.Context, texts []string, _ string) ([][]NERSpan, error) {
	out := make([][]NERSpan, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var spans []NERSpan
		for _, p := range r.patterns {
			for _, m := range p.FindAll(text) {
				spans = append(spans, NERSpan{
					Span:  classifier.Span{Start: m[0], End: m[1], Text: text[m[0]:m[1]]},
					Type:  p.Type,
					Score: regexScore(p.Type),
				})
			}
		}
		out[i] = spans
	}
	return out, nil
}

func regexScore(t classifier.PIIType) float64 {
	switch t {
	case classifier.Email:
		return regexEmailScore
	case classifier.PhoneNumber:
		return regexPhoneScore
	default:
		return regexPersonScore
	}
}
