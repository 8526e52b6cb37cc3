package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Request headers understood by the API surface.
const (
	// TenantIDHeader selects the tenant on feed routes. Control-plane
	// routes ignore it.
	TenantIDHeader = "X-Tenant-ID"

	requestIDHeader = "X-Request-ID"
	traceIDHeader   = "X-Trace-ID"
)

type ctxKey int

const (
	ctxKeyTenantID ctxKey = iota
	ctxKeyRequestID
	ctxKeyTraceID
)

var tracer = otel.Tracer("harrier-api")

// TenantMiddleware requires X-Tenant-ID and stashes it in the request
// context for the feed handlers. Mounted only on the tenant-scoped
// route group.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantIDHeader)
		if tenantID == "" {
			http.Error(w, `{"error":"X-Tenant-ID header is required"}`, http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), ctxKeyTenantID, tenantID)))
	})
}

// TracingMiddleware opens a span per request and echoes the request and
// trace IDs back to the caller. Callers that send their own X-Request-ID
// keep it; everyone else gets a fresh one.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		// Without a configured trace provider the span carries no valid
		// trace ID; fall back to the request ID so log correlation still
		// works.
		traceID := requestID
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			traceID = sc.TraceID().String()
		}

		ctx = context.WithValue(ctx, ctxKeyRequestID, requestID)
		ctx = context.WithValue(ctx, ctxKeyTraceID, traceID)

		w.Header().Set(requestIDHeader, requestID)
		w.Header().Set(traceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware emits one structured line per request. Probe
// endpoints are skipped to keep the log readable under frequent
// liveness polling.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/ready" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Tenant resolution happens further down the chain, so read the
		// header rather than the context here.
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"tenant_id", r.Header.Get(TenantIDHeader),
			"request_id", ctxString(r.Context(), ctxKeyRequestID),
			"trace_id", ctxString(r.Context(), ctxKeyTraceID),
		)
	})
}

// CORSMiddleware answers preflight requests and marks responses for
// browser clients.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Tenant-ID, X-Request-ID, X-Trace-ID, Authorization")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Trace-ID")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware converts handler panics into a 500 so one bad
// request cannot take the server down.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				slog.Error("panic recovered",
					"error", v,
					"method", r.Method,
					"path", r.URL.Path,
				)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status and body size for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

// GetTenantID returns the tenant set by TenantMiddleware, or "" outside
// the tenant-scoped routes.
func GetTenantID(ctx context.Context) string {
	return ctxString(ctx, ctxKeyTenantID)
}

func ctxString(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}
