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

	loginOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_login_outcomes_total",
			Help: "Login attempts by auth provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "learnhub_active_sessions",
		Help: "Signed-on sessions counted by the session registry.",
	})

	invitationsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "learnhub_invitations_swept_total",
		Help: "Abandoned invitations removed by the cleanup sweep.",
	})

	identitiesReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "learnhub_identities_reclaimed_total",
		Help: "Invitee identities deleted by the cleanup sweep.",
	})
)

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			loginOutcomes, activeSessions, invitationsSwept, identitiesReclaimed,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin counts one login attempt.
func ObserveLogin(provider, outcome string) {
	loginOutcomes.WithLabelValues(provider, outcome).Inc()
}

// SetActiveSessions publishes the registry's active session count.
func SetActiveSessions(n int64) {
	activeSessions.Set(float64(n))
}

// ObserveSweep records the result of one cleanup sweep run.
func ObserveSweep(invitations, identities int) {
	invitationsSwept.Add(float64(invitations))
	identitiesReclaimed.Add(float64(identities))
}

// Instrument measures request rate, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifier segments so metric labels stay bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "groups", "members", "identities":
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
