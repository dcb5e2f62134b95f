// Package metrics provides a Prometheus metrics registry for the service.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// sitewarden_inflight_requests
	inFlight prometheus.Gauge

	// sitewarden_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// sitewarden_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// sitewarden_dispatch_total{outcome,provider,cached}
	dispatchTotal *prometheus.CounterVec

	// sitewarden_upstream_duration_seconds{provider,outcome}
	upstreamDuration *prometheus.HistogramVec

	// sitewarden_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// sitewarden_quota_blocked_total
	quotaBlocked prometheus.Counter

	// sitewarden_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

// New creates a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitewarden_inflight_requests",
			Help: "Number of HTTP requests currently being served.",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewarden_http_requests_total",
			Help: "Total HTTP requests by route and status code.",
		}, []string{"route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitewarden_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewarden_dispatch_total",
			Help: "AI dispatch outcomes by result kind, provider, and cache status.",
		}, []string{"outcome", "provider", "cached"}),

		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitewarden_upstream_duration_seconds",
			Help:    "Upstream provider call duration by provider and outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider", "outcome"}),

		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewarden_cache_operations_total",
			Help: "Response cache operations by op (get/set) and result.",
		}, []string{"op", "result"}),

		quotaBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitewarden_quota_blocked_total",
			Help: "Dispatches blocked by the free-tier daily quota.",
		}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sitewarden_build_info",
			Help: "Build information. Always 1.",
		}, []string{"version"}),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.dispatchTotal,
		r.upstreamDuration,
		r.cacheOps,
		r.quotaBlocked,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(
		http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			h.ServeHTTP(w, req)
		}),
	)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records one served HTTP request.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// RecordDispatch records the outcome of one Generate call.
func (r *Registry) RecordDispatch(outcome, provider string, cached bool) {
	r.dispatchTotal.WithLabelValues(outcome, provider, strconv.FormatBool(cached)).Inc()
}

// ObserveUpstream records one upstream provider attempt.
func (r *Registry) ObserveUpstream(provider, outcome string, dur time.Duration) {
	r.upstreamDuration.WithLabelValues(provider, outcome).Observe(dur.Seconds())
}

func (r *Registry) CacheGetHit()   { r.cacheOps.WithLabelValues("get", "hit").Inc() }
func (r *Registry) CacheGetMiss()  { r.cacheOps.WithLabelValues("get", "miss").Inc() }
func (r *Registry) CacheSetOK()    { r.cacheOps.WithLabelValues("set", "ok").Inc() }
func (r *Registry) CacheSetError() { r.cacheOps.WithLabelValues("set", "error").Inc() }

func (r *Registry) RecordQuotaBlocked() { r.quotaBlocked.Inc() }

// SetBuildInfo publishes the build version label.
func (r *Registry) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}

// Handler returns the fasthttp handler serving the /metrics endpoint.
func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

// PromRegistry exposes the underlying registry for tests.
func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
