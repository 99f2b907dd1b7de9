package redact

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/dativo-io/piiscan/internal/classifier"
)

func TestMaskToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"john.doe@example.com", "xxxx.xxx@xxxxxxx.xxx"},
		{"(415) 555-1212", "(000) 000-0000"},
		{"ABCDE1234F", "XXXXX0000X"},
		{"Zoë 9", "Xxx 0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := MaskToken(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, utf8.RuneCountInString(tt.in), utf8.RuneCountInString(got))
		})
	}
}

func TestTokenFor(t *testing.T) {
	assert.Equal(t, "[EMAIL]", TokenFor(classifier.Email))
	assert.Equal(t, "[PHONE_NUMBER]", TokenFor(classifier.PhoneNumber))
	assert.Equal(t, UnlabeledToken, TokenFor(""))
}

func span(t *testing.T, text string, start, end int) classifier.Span {
	t.Helper()
	s, err := classifier.NewSpan(text, start, end)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRedactText_PreservesLength(t *testing.T) {
	text := "Card 4111 1111 1111 1111 for Jane Roe"
	spans := []classifier.Span{span(t, text, 29, 37), span(t, text, 5, 24)}

	got := RedactText(text, spans)
	assert.Equal(t, len(text), len(got))
	assert.Equal(t, "Card 0000 0000 0000 0000 for Xxxx Xxx", got)
}

func TestRedactText_OverlapFirstWins(t *testing.T) {
	text := "abcdef"
	got := RedactText(text, []classifier.Span{span(t, text, 2, 5), span(t, text, 0, 3)})
	assert.Equal(t, "xxxdef", got, "span starting inside an applied span is skipped")
}

func TestRedactText_IgnoresBadSpans(t *testing.T) {
	text := "abc"
	got := RedactText(text, []classifier.Span{{Start: 1, End: 1}, {Start: 2, End: 10}})
	assert.Equal(t, "abc", got)
}

func TestTypedRedactText(t *testing.T) {
	text := "mail a@b.io or call 555-0100 ref Q7"
	labeled := []classifier.LabeledSpan{
		{Span: span(t, text, 5, 11), Type: classifier.Email},
		{Span: span(t, text, 20, 28), Type: classifier.PhoneNumber},
		{Span: span(t, text, 33, 35)},
	}
	got := TypedRedactText(text, labeled)
	assert.Equal(t, "mail [EMAIL] or call [PHONE_NUMBER] ref [PII]", got)
	for _, ls := range labeled {
		assert.NotContains(t, got, ls.Span.Text)
	}
}

func TestTypedRedactText_TiesAreStable(t *testing.T) {
	text := "a@b.io"
	got := TypedRedactText(text, []classifier.LabeledSpan{
		{Span: span(t, text, 0, 6), Type: classifier.Email},
		{Span: span(t, text, 0, 6), Type: classifier.Person},
	})
	assert.Equal(t, "[EMAIL]", got)
}

func TestScrubValues(t *testing.T) {
	msg := `payload {"note":"reach john@example.com or john"}`
	got := ScrubValues(msg, []string{"john", "john@example.com", ""})
	assert.Equal(t, `payload {"note":"reach xxxx@xxxxxxx.xxx or xxxx"}`, got)
	assert.Equal(t, "unchanged", ScrubValues("unchanged", nil))
}

func TestScrubValues_MaskIdenticalValues(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		values []string
		want   string
	}{
		{"ip of zeros", "server 0.0.0.0 listening", []string{"0.0.0.0"}, "server [PII] listening"},
		{"mac of zeros", "mac 00:00:00:00:00:00 seen", []string{"00:00:00:00:00:00"}, "mac [PII] seen"},
		{"mixed shapes", "id xX-00 and bob", []string{"xX-00", "bob"}, "id [PII] and xxx"},
		{"value inside the token", "a [PII] b", []string{"["}, "a PII] b"},
		{"replacement creates a value", "aby", []string{"xxy", "ab"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScrubValues(tt.in, tt.values)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, -1, FirstLeak([]string{got}, tt.values))
		})
	}
}

func TestSanitizeText(t *testing.T) {
	text := "server 0.0.0.0 listening, mail ann@example.org"
	spans := []classifier.Span{span(t, text, 7, 14), span(t, text, 31, 46)}
	got := SanitizeText(text, spans)
	assert.Equal(t, "server [PII] listening, mail xxx@xxxxxxx.xxx", got)
	assert.Equal(t, "nothing", SanitizeText("nothing", nil))
}

func TestFirstLeak(t *testing.T) {
	assert.Equal(t, -1, FirstLeak([]string{"clean"}, []string{"", "dirty"}))
	assert.Equal(t, 1, FirstLeak([]string{"a", "has dirty"}, []string{"zzz", "dirty"}))
}
