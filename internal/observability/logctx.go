package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type logKey string

const (
	requestIDKey logKey = "request_id"
	tenantKey    logKey = "tenant"
)

// WithRequestID returns a copy of ctx whose request-scoped logs carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withLogValue(ctx, requestIDKey, id)
}

// WithTenant returns a copy of ctx whose request-scoped logs carry slug.
// A later call replaces an earlier one.
func WithTenant(ctx context.Context, slug string) context.Context {
	return withLogValue(ctx, tenantKey, slug)
}

func RequestID(ctx context.Context) string { return logValue(ctx, requestIDKey) }

func Tenant(ctx context.Context) string { return logValue(ctx, tenantKey) }

// LogFields returns the request-scoped fields attached to ctx.
func LogFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String(string(requestIDKey), id))
	}
	if slug := Tenant(ctx); slug != "" {
		fields = append(fields, zap.String(string(tenantKey), slug))
	}
	return fields
}

// Logger returns base annotated with the request-scoped fields of ctx.
func Logger(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	fields := LogFields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func withLogValue(ctx context.Context, key logKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func logValue(ctx context.Context, key logKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
