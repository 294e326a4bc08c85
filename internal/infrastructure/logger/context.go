package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Scope is what the middleware chain has learned about the current call so far:
// the request id first, then the authenticated user, then the back-office
// module guarding the route. Empty members are not known yet.
type Scope struct {
	RequestID string
	UserID    string
	Module    string
}

// Fields returns the known members as log fields
func (s Scope) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if s.RequestID != "" {
		fields = append(fields, zap.String("request_id", s.RequestID))
	}
	if s.UserID != "" {
		fields = append(fields, zap.String("user_id", s.UserID))
	}
	if s.Module != "" {
		fields = append(fields, zap.String("module", s.Module))
	}
	return fields
}

type (
	loggerKey struct{}
	scopeKey  struct{}
)

// WithContext returns a new context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request logger, or a no-op logger outside a request
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// ScopeFrom returns the scope recorded in ctx
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// WithRequestID records the request id and returns the enriched context and logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return enrich(ctx, logger, func(s *Scope) { s.RequestID = requestID }, zap.String("request_id", requestID))
}

// WithUserID records the authenticated user and returns the enriched context and logger
func WithUserID(ctx context.Context, logger *zap.Logger, userID string) (context.Context, *zap.Logger) {
	return enrich(ctx, logger, func(s *Scope) { s.UserID = userID }, zap.String("user_id", userID))
}

// WithModule records the module a granted policy guards
func WithModule(ctx context.Context, logger *zap.Logger, module string) (context.Context, *zap.Logger) {
	return enrich(ctx, logger, func(s *Scope) { s.Module = module }, zap.String("module", module))
}

func enrich(ctx context.Context, logger *zap.Logger, set func(*Scope), field zap.Field) (context.Context, *zap.Logger) {
	s := ScopeFrom(ctx)
	set(&s)
	enriched := logger.With(field)
	return WithContext(context.WithValue(ctx, scopeKey{}, s), enriched), enriched
}

// ForRequest decorates a logger that was built outside the request (a
// long-lived component logger) with the scope and the active span of ctx.
func ForRequest(ctx context.Context, base *zap.Logger) *zap.Logger {
	if fields := ScopeFrom(ctx).Fields(); len(fields) > 0 {
		base = base.With(fields...)
	}
	return withSpan(ctx, base)
}

// withSpan adds the active span of ctx to logger
func withSpan(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
