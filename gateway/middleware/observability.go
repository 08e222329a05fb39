package middleware

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservabilityConfig struct {
	MetricsPrefix string
	LogRequests   bool
	Metrics       bool
	Tracing       bool
}

// Observability records per-route request metrics and spans. Its registry is
// private to the gateway; MetricsHandler also exposes the process-wide
// default registry.
type Observability struct {
	cfg       ObservabilityConfig
	logger    *slog.Logger
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	durations *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	registry  *prometheus.Registry
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "gateway"
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "requests_total",
		Help:      "HTTP requests segmented by route, method and outcome.",
	}, []string{"route", "method", "outcome"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "errors_total",
		Help:      "HTTP error responses segmented by route, method and status code.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	throttles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "throttles_total",
		Help:      "Requests rejected by throttling, segmented by route and reason.",
	}, []string{"route", "reason"})
	registry.MustRegister(requests, errs, durations, throttles)
	return &Observability{
		cfg:       cfg,
		logger:    logger.With("component", "gateway"),
		requests:  requests,
		errors:    errs,
		durations: durations,
		throttles: throttles,
		registry:  registry,
	}
}

// Middleware wraps every request. The route label is the chi pattern once
// routing has completed, so path parameters never reach label values. With
// tracing on it names the server span started by otelhttp after the route.
func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !o.cfg.Metrics && !o.cfg.Tracing && !o.cfg.LogRequests {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := RoutePattern(r)
		duration := time.Since(start)
		if o.cfg.Tracing {
			span := trace.SpanFromContext(r.Context())
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
			if recorder.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(recorder.status))
			}
		}
		if o.cfg.Metrics {
			outcome := "success"
			if recorder.status >= http.StatusBadRequest {
				outcome = "error"
				o.errors.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			}
			o.requests.WithLabelValues(route, r.Method, outcome).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(duration.Seconds())
		}
		if o.cfg.LogRequests {
			o.logger.Info("request",
				"method", r.Method,
				"path", route,
				"status", recorder.status,
				"duration_ms", float64(duration.Microseconds())/1000)
		}
	})
}

// RecordThrottle counts a rejected request.
func (o *Observability) RecordThrottle(route, reason string) {
	if o == nil || !o.cfg.Metrics {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	o.throttles.WithLabelValues(route, reason).Inc()
}

func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{o.registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

// RoutePattern returns the matched chi pattern, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(p)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack hands the connection to the websocket upgrade.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	s.status = http.StatusSwitchingProtocols
	s.wroteHeader = true
	return http.NewResponseController(s.ResponseWriter).Hijack()
}
