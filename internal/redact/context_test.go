package redact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/piiscan/internal/classifier"
)

func TestContexts_UseBracketTokens(t *testing.T) {
	text := "Contact John Doe at john.doe@example.com or +1 (415) 555-1234."
	cands := classifier.MustNewScanner().Propose(context.Background(), text)
	require.NotEmpty(t, cands)

	ctxs, err := NewBuilder(64).Contexts(text, cands, nil)
	require.NoError(t, err)
	require.Len(t, ctxs, len(cands))

	joined := joinContexts(ctxs)
	assert.Contains(t, joined, "[EMAIL]")
	assert.Contains(t, joined, "[PHONE_NUMBER]")
	assert.Contains(t, joined, "[PERSON]")
	assert.NotContains(t, joined, "john.doe@example.com")
	assert.NotContains(t, joined, "(415) 555-1234")
	assert.NotContains(t, joined, "John Doe")
}

func TestContexts_CoverMultipleTypes(t *testing.T) {
	text := "Name: Jane Roe, Email: jane.roe@example.org, Phone: 212-555-9876, " +
		"CC: 4111 1111 1111 1111, SSN: 123-45-6789"
	cands := classifier.MustNewScanner().Propose(context.Background(), text)

	ctxs, err := NewBuilder(80).Contexts(text, cands, nil)
	require.NoError(t, err)

	joined := joinContexts(ctxs)
	for _, tok := range []string{"[EMAIL]", "[PHONE_NUMBER]", "[CREDIT_CARD]", "[SSN]"} {
		assert.Contains(t, joined, tok)
	}
	for _, raw := range []string{"jane.roe@example.org", "212-555-9876", "4111 1111 1111 1111", "123-45-6789"} {
		assert.NotContains(t, joined, raw)
	}
}

func TestContexts_NoLeakAcrossInputs(t *testing.T) {
	scanner := classifier.MustNewScanner()
	texts := []string{
		"Reach me at bob.smith@company.com and 650-555-0000.",
		"Device MAC aa:bb:cc:dd:ee:ff, PAN ABCDE1234F, DOB: 31/12/1990, Aadhaar 234567890124.",
		"Server at 192.168.1.100 and 10.0.0.1 talked to alice@example.org twice: alice@example.org",
		"",
	}
	for _, window := range []int{0, 5, 48, 200} {
		for _, text := range texts {
			cands := scanner.Propose(context.Background(), text)
			ctxs, err := NewBuilder(window).Contexts(text, cands, nil)
			require.NoError(t, err)
			for _, c := range ctxs {
				for _, cand := range cands {
					if cand.Span.Text != "" {
						assert.NotContains(t, c.Text, cand.Span.Text)
					}
				}
			}
		}
	}
}

func TestContexts_WindowBounds(t *testing.T) {
	text := strings.Repeat("a", 100) + " x@y.io " + strings.Repeat("b", 100)
	cand := classifier.Candidate{Span: span(t, text, 101, 107), RuleLabel: classifier.Email, RuleConfidence: 0.95}

	ctxs, err := NewBuilder(5).Contexts(text, []classifier.Candidate{cand}, nil)
	require.NoError(t, err)
	require.Len(t, ctxs, 1)
	assert.Equal(t, 96, ctxs[0].Start)
	assert.Equal(t, 112, ctxs[0].End)
	assert.Equal(t, "aaaa [EMAIL] bbbb", ctxs[0].Text)
}

func TestContexts_SnapsToRuneBoundaries(t *testing.T) {
	text := "ééé a@b.io"
	cand := classifier.Candidate{Span: span(t, text, 7, 13), RuleLabel: classifier.Email}

	ctxs, err := NewBuilder(2).Contexts(text, []classifier.Candidate{cand}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, ctxs[0].Start)
	assert.True(t, utf8.ValidString(ctxs[0].Text))
	assert.Equal(t, "é [EMAIL]", ctxs[0].Text)
}

func TestContexts_NERSpansAndRecurrences(t *testing.T) {
	text := "Jane met Jane"
	cands := []classifier.Candidate{{Span: span(t, text, 5, 8), RuleConfidence: 0.2}}
	ner := []classifier.LabeledSpan{{Span: span(t, text, 0, 4), Type: classifier.Person}}

	ctxs, err := NewBuilder(100).Contexts(text, cands, ner)
	require.NoError(t, err)
	assert.Equal(t, "[PERSON] [PII] [PERSON]", ctxs[0].Text)
}

func TestContexts_ClipsSpansAtWindowEdge(t *testing.T) {
	text := "id 123-45-6789 then a@b.io"
	cands := []classifier.Candidate{
		{Span: span(t, text, 3, 14), RuleLabel: classifier.SSN},
		{Span: span(t, text, 20, 26), RuleLabel: classifier.Email},
	}
	ctxs, err := NewBuilder(3).Contexts(text, cands, nil)
	require.NoError(t, err)
	assert.Equal(t, "en [EMAIL]", ctxs[1].Text)
	assert.Equal(t, "id [SSN] th", ctxs[0].Text)
}

func TestContexts_Violation(t *testing.T) {
	text := "EMAIL me"
	s := span(t, text, 0, 5)
	cands := []classifier.Candidate{{Span: s, RuleLabel: classifier.Email}}

	_, err := NewBuilder(10).Contexts(text, cands, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRedactionViolation))

	var v *ViolationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, 0, v.WindowStart)
	assert.Equal(t, len(text), v.WindowEnd)
}

func TestCheck_MessageOmitsValue(t *testing.T) {
	err := Check("sent to john@a.io", []classifier.LabeledSpan{
		{Span: classifier.Span{Start: 0, End: 9, Text: "john@a.io"}, Type: classifier.Email},
	})
	require.ErrorIs(t, err, ErrRedactionViolation)
	assert.NotContains(t, err.Error(), "john@a.io")
	assert.Contains(t, err.Error(), "EMAIL")

	assert.NoError(t, Check("clean", []classifier.LabeledSpan{{Span: classifier.Span{}}}))
}

func TestTrainingContext(t *testing.T) {
	text := "email jane@x.org phone 212-555-9876"
	gold := []classifier.LabeledSpan{
		{Span: span(t, text, 6, 16), Type: classifier.Email},
		{Span: span(t, text, 23, 35), Type: classifier.PhoneNumber},
	}

	got, err := TrainingContext(text, gold, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "email [EMAIL] phone [PHONE_NUMBER]", got)

	got, err = TrainingContext(text, gold, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, "one [PHONE_NUMBER]", got)

	_, err = TrainingContext(text, gold, 2, 10)
	assert.Error(t, err)

	bad := []classifier.LabeledSpan{{Span: classifier.Span{Start: 0, End: 3, Text: "xyz"}}}
	_, err = TrainingContext(text, bad, 0, 10)
	assert.Error(t, err)
}

func joinContexts(ctxs []Context) string {
	parts := make([]string, len(ctxs))
	for i, c := range ctxs {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n")
}
