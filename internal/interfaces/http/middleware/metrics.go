package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/restaurant/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// HTTPMetricsConfig holds configuration for HTTP metrics middleware.
type HTTPMetricsConfig struct {
	// Sink receives the request counter and latency histogram.
	Sink telemetry.MetricsSink
	// Enabled controls whether metrics collection is active.
	Enabled bool
	// SkipPaths are not measured (health checks).
	SkipPaths []string
	// now is overridden in tests.
	now func() time.Time
}

// DefaultHTTPMetricsConfig returns default HTTP metrics configuration.
func DefaultHTTPMetricsConfig(sink telemetry.MetricsSink) HTTPMetricsConfig {
	return HTTPMetricsConfig{
		Sink:      sink,
		Enabled:   true,
		SkipPaths: []string{"/health", "/healthz", "/ready"},
	}
}

// HTTPMetrics returns a Gin middleware that records, per route pattern:
//   - restaurant_http_requests_total with method, route and status_group
//   - restaurant_http_request_duration_seconds with method and route
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.Sink == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	now := cfg.now
	if now == nil {
		now = time.Now
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := now()
		c.Next()
		elapsed := now().Sub(start)

		ctx := c.Request.Context()
		base := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(getRoutePattern(c)),
		}
		cfg.Sink.RecordDuration(ctx, telemetry.MetricHTTPDuration, elapsed, base...)
		cfg.Sink.IncCounter(ctx, telemetry.MetricHTTPTotal,
			append(base, telemetry.AttrHTTPStatus.String(HTTPMetricsStatusGroup(c.Writer.Status())))...)
	}
}

// getRoutePattern returns the matched route pattern (e.g. "/api/v1/modules/:module/access")
// rather than the raw path to keep cardinality bounded.
func getRoutePattern(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "unknown"
	}
	return route
}

// HTTPMetricsStatusGroup groups status codes by class (2xx, 4xx, 5xx).
func HTTPMetricsStatusGroup(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other"
	}
}
