package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	permissionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_checks_total",
			Help: "Permission decisions by permission and result.",
		},
		[]string{"permission", "result"},
	)

	roleCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_cache_lookups_total",
			Help: "Role cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	approvalCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_callbacks_total",
			Help: "Approval link callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when dependencies answer readiness checks.",
	})

	approvalEmails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_emails_total",
			Help: "Approval emails by delivery result.",
		},
		[]string{"result"},
	)
)

// Init registers the collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			permissionChecks, roleCacheLookups, approvalCallbacks, approvalEmails, ready,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePermission counts a permission decision.
func ObservePermission(permission string, allowed bool) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	permissionChecks.WithLabelValues(permission, result).Inc()
}

// ObserveRoleCache counts a role cache lookup.
func ObserveRoleCache(hit bool) {
	if hit {
		roleCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	roleCacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCallback counts an approval callback outcome.
func ObserveCallback(outcome string) {
	approvalCallbacks.WithLabelValues(outcome).Inc()
}

// ObserveEmail counts an approval email delivery attempt.
func ObserveEmail(ok bool) {
	if ok {
		approvalEmails.WithLabelValues("sent").Inc()
		return
	}
	approvalEmails.WithLabelValues("failed").Inc()
}

// SetReady records the latest readiness result.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument measures request rate, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers so metric label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "documents" && parts[3] == "approvals":
		return "/v1/documents/:id/approvals"
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "approvals":
		return "/v1/approvals/:id"
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "permissions":
		return "/v1/permissions/:name"
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
