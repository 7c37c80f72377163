package telemetry

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader carries the request's trace id back to the caller
const TraceIDHeader = "X-Trace-ID"

// HTTPConfig configures HTTPMiddleware
type HTTPConfig struct {
	ServiceName string

	// SkipPaths are served without a span, typically the probes
	SkipPaths []string
}

// HTTPMiddleware opens a server span for each request, continuing any W3C
// trace context the caller sent, and records the request duration
func HTTPMiddleware(cfg HTTPConfig) gin.HandlerFunc {
	tracer := otel.Tracer(cfg.ServiceName)
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	// A meter failure leaves duration nil, which Record tolerates.
	duration, _ := NewHistogram(MetricOpts{
		Name:        "http_server_request_duration_ms",
		Description: "HTTP request latency",
		Unit:        "ms",
	})

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		parent := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(parent, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Request.Method),
				semconv.HTTPRoute(route),
				attribute.String("http.client_ip", c.ClientIP()),
			),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			id := sc.TraceID().String()
			c.Header(TraceIDHeader, id)
			c.Set("trace_id", id)
		}

		start := time.Now()
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}

		duration.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", status),
		)
	}
}
