package classifier

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned when a string does not name a PIIType.
var ErrUnknownType = errors.New("unknown PII type")

// PIIType is a category of personally identifiable information.
type PIIType string

// Supported PII types. The set is closed; AllTypes enumerates it.
const (
	Email       PIIType = "EMAIL"
	PhoneNumber PIIType = "PHONE_NUMBER"
	CreditCard  PIIType = "CREDIT_CARD"
	SSN         PIIType = "SSN"
	IPAddress   PIIType = "IP_ADDRESS"
	MACAddress  PIIType = "MAC_ADDRESS"
	Aadhaar     PIIType = "AADHAAR"
	PAN         PIIType = "PAN"
	Person      PIIType = "PERSON"
	Address     PIIType = "ADDRESS"
	Date        PIIType = "DATE"
)

// AllTypes lists every PIIType in canonical order. Ties in argmax and the
// macro average iterate in this order.
var AllTypes = []PIIType{
	Email,
	PhoneNumber,
	CreditCard,
	SSN,
	IPAddress,
	MACAddress,
	Aadhaar,
	PAN,
	Person,
	Address,
	Date,
}

// ParseType converts a type name (case-insensitive) to a PIIType.
func ParseType(s string) (PIIType, error) {
	want := PIIType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range AllTypes {
		if t == want {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// ParseTypes converts a list of type names, failing on the first unknown one.
func ParseTypes(names []string) ([]PIIType, error) {
	out := make([]PIIType, 0, len(names))
	for _, n := range names {
		t, err := ParseType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Valid reports whether t is a member of AllTypes.
func (t PIIType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Span is a half-open byte range [Start, End) into a source text together
// with the literal text it covers.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// NewSpan builds a Span over source, enforcing 0 <= start <= end <= len(source).
func NewSpan(source string, start, end int) (Span, error) {
	if start < 0 || start > end || end > len(source) {
		return Span{}, fmt.Errorf("span [%d,%d) out of range for text of length %d", start, end, len(source))
	}
	return Span{Start: start, End: end, Text: source[start:end]}, nil
}

// ValidIn reports whether s satisfies the span invariant against source.
func (s Span) ValidIn(source string) bool {
	if s.Start < 0 || s.Start > s.End || s.End > len(source) {
		return false
	}
	return source[s.Start:s.End] == s.Text
}

// Overlaps reports whether s and o share at least one position.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Candidate is a syntactically plausible PII occurrence found by the rule
// layer. RuleLabel is empty when the rules could not commit to a type.
type Candidate struct {
	Span           Span
	RuleLabel      PIIType
	RuleConfidence float64
	Validations    map[PIIType]bool
}

// HasRuleLabel reports whether the rule layer assigned a type.
func (c Candidate) HasRuleLabel() bool { return c.RuleLabel != "" }

// LabeledSpan pairs a span with a type. Used for gold labels, NER output and
// typed redaction.
type LabeledSpan struct {
	Span Span
	Type PIIType
}
