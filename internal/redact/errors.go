package redact

import (
	"errors"
	"fmt"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// ErrRedactionViolation means a detected PII value survived redaction. It
// signals a defect in the redaction path, not a condition to retry.
var ErrRedactionViolation = errors.New("redaction violation")

// ViolationError describes where a value leaked. It carries offsets and the
// type only, never the value itself.
type ViolationError struct {
	Type        classifier.PIIType
	SpanStart   int
	SpanEnd     int
	WindowStart int
	WindowEnd   int
}

func (e *ViolationError) Error() string {
	typ := string(e.Type)
	if typ == "" {
		typ = "unlabeled"
	}
	return fmt.Sprintf("redaction violation: %s span [%d,%d) survives in window [%d,%d)",
		typ, e.SpanStart, e.SpanEnd, e.WindowStart, e.WindowEnd)
}

func (e *ViolationError) Unwrap() error { return ErrRedactionViolation }
