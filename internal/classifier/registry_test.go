package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestParseRecognizerFile(t *testing.T) {
	yaml := `
recognizers:
  - name: "Test Email"
    supported_entity: "EMAIL"
    enabled: true
    patterns:
      - name: "basic email"
        regex: '\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b'
        score: 0.85
  - name: "Test Card"
    supported_entity: "CREDIT_CARD"
    patterns:
      - name: "digits"
        regex: '\b\d{16}\b'
        score: 0.7
    context: ["card"]
    context_boost: 0.1
    validator: luhn
    on_invalid: flag
`
	rf, err := ParseRecognizerFile([]byte(yaml))
	require.NoError(t, err)
	require.Len(t, rf.Recognizers, 2)

	assert.Equal(t, "Test Email", rf.Recognizers[0].Name)
	assert.Equal(t, "EMAIL", rf.Recognizers[0].SupportedEntity)
	assert.True(t, rf.Recognizers[0].isEnabled())
	assert.Len(t, rf.Recognizers[0].Patterns, 1)

	card := rf.Recognizers[1]
	assert.True(t, card.isEnabled(), "nil Enabled should default to true")
	assert.Equal(t, ValidatorLuhn, card.Validator)
	assert.Equal(t, OnInvalidFlag, card.OnInvalid)
	assert.Equal(t, []string{"card"}, card.Context)
	assert.InDelta(t, 0.1, card.ContextBoost, 1e-9)
}

func TestParseRecognizerFileInvalidYAML(t *testing.T) {
	_, err := ParseRecognizerFile([]byte(`{{{invalid`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing recognizer YAML")
}

func TestLoadRecognizerFileMissing(t *testing.T) {
	rf, err := LoadRecognizerFile("/nonexistent/file.yaml")
	require.NoError(t, err, "missing file should not return error")
	assert.Nil(t, rf, "missing file should return nil")
}

func TestLoadRecognizerFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	content := `
recognizers:
  - name: "Employee ID"
    supported_entity: "SSN"
    patterns:
      - name: "emp"
        regex: '\bEMP-\d{6}\b'
        score: 0.6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rf, err := LoadRecognizerFile(path)
	require.NoError(t, err)
	require.NotNil(t, rf)
	require.Len(t, rf.Recognizers, 1)
	assert.Equal(t, "Employee ID", rf.Recognizers[0].Name)
}

func TestMergeRecognizers(t *testing.T) {
	defaults := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL"},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER"},
	}
	operator := []RecognizerConfig{
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER", Enabled: boolPtr(false)},
		{Name: "Employee ID", SupportedEntity: "SSN"},
	}
	caller := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL", ContextBoost: 0.2},
	}

	merged := MergeRecognizers(toPtrSlice(defaults), toPtrSlice(operator), toPtrSlice(caller), nil)
	require.Len(t, merged, 3)

	assert.Equal(t, "Email", merged[0].Name, "replacement keeps original position")
	assert.InDelta(t, 0.2, merged[0].ContextBoost, 1e-9)
	assert.Equal(t, "Phone", merged[1].Name)
	assert.False(t, merged[1].isEnabled())
	assert.Equal(t, "Employee ID", merged[2].Name, "new recognizers are appended")
}

func TestCompilePIIPatterns(t *testing.T) {
	recs := []RecognizerConfig{
		{
			Name:            "Email",
			SupportedEntity: "email",
			Patterns: []PatternConfig{
				{Name: "a", Regex: `a@b\.c`, Score: 0.5},
				{Name: "b", Regex: `x@y\.z`, Score: 0.6},
			},
			Stopwords: []string{"Dear"},
		},
		{
			Name:            "Disabled",
			SupportedEntity: "PHONE_NUMBER",
			Enabled:         boolPtr(false),
			Patterns:        []PatternConfig{{Name: "p", Regex: `\d+`, Score: 0.5}},
		},
		{
			Name:            "Card",
			SupportedEntity: "CREDIT_CARD",
			Validator:       ValidatorLuhn,
			Patterns:        []PatternConfig{{Name: "c", Regex: `\d{16}`, Score: 0.9}},
		},
	}

	compiled, err := CompilePIIPatterns(recs)
	require.NoError(t, err)
	require.Len(t, compiled, 3, "one pattern per regex, disabled skipped")

	assert.Equal(t, Email, compiled[0].Type, "entity names are case-insensitive")
	assert.Equal(t, Email, compiled[1].Type)
	assert.True(t, compiled[0].Stopwords["Dear"])
	assert.Equal(t, CreditCard, compiled[2].Type)
	assert.Equal(t, OnInvalidDrop, compiled[2].OnInvalid, "drop is the default policy")
}

func TestCompilePIIPatterns_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rec     RecognizerConfig
		wantErr string
	}{
		{
			name:    "unknown entity",
			rec:     RecognizerConfig{Name: "x", SupportedEntity: "PASSPORT"},
			wantErr: "unknown PII type",
		},
		{
			name:    "unknown validator",
			rec:     RecognizerConfig{Name: "x", SupportedEntity: "EMAIL", Validator: "mod97"},
			wantErr: "unknown validator",
		},
		{
			name:    "unknown policy",
			rec:     RecognizerConfig{Name: "x", SupportedEntity: "EMAIL", Validator: ValidatorLuhn, OnInvalid: "keep"},
			wantErr: "unknown on_invalid policy",
		},
		{
			name: "score out of range",
			rec: RecognizerConfig{Name: "x", SupportedEntity: "EMAIL",
				Patterns: []PatternConfig{{Name: "p", Regex: `a`, Score: 1.5}}},
			wantErr: "outside [0,1]",
		},
		{
			name: "bad regex",
			rec: RecognizerConfig{Name: "x", SupportedEntity: "EMAIL",
				Patterns: []PatternConfig{{Name: "p", Regex: `[`, Score: 0.5}}},
			wantErr: "compiling pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompilePIIPatterns([]RecognizerConfig{tt.rec})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFilterByEntities(t *testing.T) {
	recs := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL"},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER"},
		{Name: "Bogus", SupportedEntity: "NOT_A_TYPE"},
	}

	assert.Len(t, FilterByEntities(recs, nil), 3, "empty filter keeps everything")

	filtered := FilterByEntities(recs, []PIIType{PhoneNumber})
	require.Len(t, filtered, 1)
	assert.Equal(t, "Phone", filtered[0].Name)
}

func TestDefaultRecognizersCoverEveryRuleType(t *testing.T) {
	recs, err := DefaultRecognizers()
	require.NoError(t, err)
	compiled, err := CompilePIIPatterns(recs)
	require.NoError(t, err)

	seen := make(map[PIIType]bool)
	for _, p := range compiled {
		seen[p.Type] = true
	}
	for _, want := range []PIIType{Email, PhoneNumber, CreditCard, SSN, IPAddress, MACAddress, Aadhaar, PAN, Person, Date} {
		assert.True(t, seen[want], "no default recognizer for %s", want)
	}
	assert.NotEmpty(t, PatternsFor(CreditCard))
	assert.Empty(t, PatternsFor(Address), "addresses are left to NER")
}
