package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiscan/internal/classifier"
)

func TestGenerateSynthetic_Deterministic(t *testing.T) {
	a := GenerateSynthetic(40, 1234)
	b := GenerateSynthetic(40, 1234)
	c := GenerateSynthetic(40, 99)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 40)
	assert.Empty(t, GenerateSynthetic(0, 1))
}

func TestGenerateSynthetic_LabelsAreValid(t *testing.T) {
	for _, ex := range GenerateSynthetic(200, 5) {
		require.NoError(t, ex.Validate(), ex.Text)
		require.NotEmpty(t, ex.Labels)
		for _, l := range ex.Labels {
			switch l.Type {
			case classifier.CreditCard:
				assert.True(t, classifier.LuhnCheck(l.Span.Text), l.Span.Text)
			case classifier.Aadhaar:
				assert.True(t, classifier.VerhoeffCheck(l.Span.Text), l.Span.Text)
			}
		}
	}
}

func TestGenerateSynthetic_RulesFindStructuredValues(t *testing.T) {
	scanner := classifier.MustNewScanner()
	structured := map[classifier.PIIType]bool{
		classifier.Email:      true,
		classifier.CreditCard: true,
		classifier.SSN:        true,
		classifier.IPAddress:  true,
		classifier.MACAddress: true,
		classifier.Aadhaar:    true,
		classifier.PAN:        true,
	}
	for _, ex := range GenerateSynthetic(100, 8) {
		cands := scanner.Propose(context.Background(), ex.Text)
		for _, l := range ex.Labels {
			if !structured[l.Type] {
				continue
			}
			found := false
			for _, c := range cands {
				if c.Span == l.Span && c.RuleLabel == l.Type {
					found = true
					break
				}
			}
			assert.True(t, found, "%s %q in %q", l.Type, l.Span.Text, ex.Text)
		}
	}
}

func TestLuhnAndVerhoeffDigitsRoundTrip(t *testing.T) {
	body := "411111111111111"
	assert.True(t, classifier.LuhnCheck(body+string(rune('0'+classifier.LuhnDigit(body)))))
	aadhaar := "23456789012"
	assert.True(t, classifier.VerhoeffCheck(aadhaar+string(rune('0'+classifier.VerhoeffDigit(aadhaar)))))
}
