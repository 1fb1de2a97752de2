// Package metrics owns the Prometheus registry of the service.
//
// A nil *Recorder is valid and records nothing, so components take one
// unconditionally and metrics can be disabled by configuration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatkeeper"

// Recorder holds every collector of the service.
type Recorder struct {
	registry *prometheus.Registry

	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	tokens             *prometheus.CounterVec
	turns              *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New returns a Recorder on a fresh registry, with Go runtime and process
// collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Generation calls by model and outcome.",
		}, []string{"model", "outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of generation calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_tokens_total",
			Help:      "Tokens reported by the generation capability.",
		}, []string{"model", "kind"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by reply status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.generations,
		r.generationDuration,
		r.tokens,
		r.turns,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveGeneration records one generation call.
func (r *Recorder) ObserveGeneration(model, outcome string, elapsed time.Duration, promptTokens, completionTokens int) {
	if r == nil {
		return
	}
	r.generations.WithLabelValues(model, outcome).Inc()
	r.generationDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	if promptTokens > 0 {
		r.tokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		r.tokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// ObserveTurn records the status of one finished turn.
func (r *Recorder) ObserveTurn(status string) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(status).Inc()
}

// ObserveHTTP records one served HTTP request.
func (r *Recorder) ObserveHTTP(method, route, code string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, code).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
