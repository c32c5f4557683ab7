package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal       *prometheus.CounterVec
	uploadBytes        *prometheus.HistogramVec
	batchSize          *prometheus.HistogramVec
	duplicatesTotal    *prometheus.CounterVec
	validationsTotal   *prometheus.CounterVec
	rateLimitedTotal   *prometheus.CounterVec
	overloadShedsTotal *prometheus.CounterVec
	unauthorizedTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surgiscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surgiscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "surgiscan",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surgiscan",
			Subsystem: "intake",
			Name:      "uploads_total",
			Help:      "Total accepted document uploads by processing mode.",
		},
		[]string{"service", "mode"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surgiscan",
			Subsystem: "intake",
			Name:      "upload_bytes",
			Help:      "Distribution of uploaded payload sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"service"},
	)
	batchSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surgiscan",
			Subsystem: "intake",
			Name:      "batch_size",
			Help:      "Distribution of files per batch upload.",
			Buckets:   []float64{1, 2, 3, 5, 8, 10},
		},
		[]string{"service"},
	)
	duplicatesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surgiscan",
			Subsystem: "intake",
			Name:      "duplicate_uploads_total",
			Help:      "Total uploads answered with an existing record.",
		},
		[]string{"service"},
	)
	validationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surgiscan",
			Subsystem: "intake",
			Name:      "validations_total",
			Help:      "Total completed manual validations.",
		},
		[]string{"service"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surgiscan",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter.",
		},
		[]string{"service"},
	)
	overloadShedsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surgiscan",
			Subsystem: "http",
			Name:      "overload_sheds_total",
			Help:      "Total requests shed by the backpressure gate.",
		},
		[]string{"service"},
	)
	unauthorizedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surgiscan",
			Subsystem: "http",
			Name:      "unauthorized_total",
			Help:      "Total requests rejected for missing or bad credentials.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		uploadBytes,
		batchSize,
		duplicatesTotal,
		validationsTotal,
		rateLimitedTotal,
		overloadShedsTotal,
		unauthorizedTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		uploadsTotal:       uploadsTotal,
		uploadBytes:        uploadBytes,
		batchSize:          batchSize,
		duplicatesTotal:    duplicatesTotal,
		validationsTotal:   validationsTotal,
		rateLimitedTotal:   rateLimitedTotal,
		overloadShedsTotal: overloadShedsTotal,
		unauthorizedTotal:  unauthorizedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	const prefix = "/api/v1/historic-documents/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	switch rest {
	case "upload", "batch-upload":
		return path
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return prefix + "{document_id}/" + rest[idx+1:]
	}
	return prefix + "{document_id}"
}

func (m *HTTPServerMetrics) RecordUpload(service, mode string, sizeBytes int64) {
	if mode == "" {
		mode = "unknown"
	}
	m.uploadsTotal.WithLabelValues(service, mode).Inc()
	if sizeBytes > 0 {
		m.uploadBytes.WithLabelValues(service).Observe(float64(sizeBytes))
	}
}

func (m *HTTPServerMetrics) RecordBatch(service string, files int) {
	m.batchSize.WithLabelValues(service).Observe(float64(files))
}

func (m *HTTPServerMetrics) RecordDuplicate(service string) {
	m.duplicatesTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordValidation(service string) {
	m.validationsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordRateLimited(service string) {
	m.rateLimitedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordOverloadShed(service string) {
	m.overloadShedsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordUnauthorized(service string) {
	m.unauthorizedTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
