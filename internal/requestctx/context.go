// Package requestctx carries scan-scoped values such as the correlation ID.
package requestctx

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

var correlationIDKey = &contextKey{}

// SetCorrelationID stores the correlation ID in the context.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation ID from context, or "" if not set.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// EnsureCorrelationID returns ctx unchanged when it already carries a
// correlation ID; otherwise it attaches a fresh random one.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := "scan_" + uuid.New().String()[:12]
	return SetCorrelationID(ctx, id), id
}
