package main

import (
    "context"
    "log/slog"
    "net/http"
    "runtime/debug"
    "strconv"
    "time"

    "github.com/go-chi/chi/v5"
    chimw "github.com/go-chi/chi/v5/middleware"
    "github.com/google/uuid"
    "github.com/prometheus/client_golang/prometheus"
)

type ctxKey string

const requestIDKey ctxKey = "request-id"

var (
    httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "onvista",
        Name:      "http_requests_total",
        Help:      "Total HTTP requests by route and status.",
    }, []string{"method", "route", "status"})
    httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "onvista",
        Name:      "http_request_duration_seconds",
        Help:      "HTTP request duration in seconds.",
        Buckets:   prometheus.DefBuckets,
    }, []string{"method", "route"})
)

func init() {
    prometheus.MustRegister(httpRequestsTotal, httpRequestDuration)
}

// requestID tags each request with a UUID, honoring one supplied by the
// caller, and echoes it in the X-Request-ID response header.
func requestID(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        id := r.Header.Get("X-Request-ID")
        if id == "" { id = uuid.New().String() }
        w.Header().Set("X-Request-ID", id)
        ctx := context.WithValue(r.Context(), requestIDKey, id)
        next.ServeHTTP(w, r.WithContext(ctx))
    })
}

func reqID(ctx context.Context) string {
    id, _ := ctx.Value(requestIDKey).(string)
    return id
}

// structuredLogger logs one line per request with status, size and duration.
func structuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            start := time.Now()
            ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

            next.ServeHTTP(ww, r)

            logger.InfoContext(r.Context(), "request",
                "request_id", reqID(r.Context()),
                "method", r.Method,
                "path", r.URL.Path,
                "status", ww.Status(),
                "bytes", ww.BytesWritten(),
                "duration", time.Since(start).String(),
            )
        })
    }
}

// recoverer turns handler panics into 500s instead of dropped connections.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            defer func() {
                if rec := recover(); rec != nil {
                    logger.ErrorContext(r.Context(), "panic recovered",
                        "request_id", reqID(r.Context()),
                        "panic", rec,
                        "stack", string(debug.Stack()),
                        "path", r.URL.Path,
                    )
                    w.Header().Set("Content-Type", "application/json; charset=utf-8")
                    w.WriteHeader(http.StatusInternalServerError)
                    _, _ = w.Write([]byte(`{"error":"internal server error"}`))
                }
            }()
            next.ServeHTTP(w, r)
        })
    }
}

// metrics records the prometheus counters per routed pattern.
func metrics(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

        next.ServeHTTP(ww, r)

        route := chi.RouteContext(r.Context()).RoutePattern()
        if route == "" { route = "unmatched" }
        httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
        httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
    })
}
