package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	codesIssued   *prometheus.CounterVec
	logins        *prometheus.CounterVec
	registrations prometheus.Counter
	imports       prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "method", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "accountd",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		codesIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "codes_issued_total",
			Help:      "One-time codes issued, by purpose.",
		}, []string{"purpose"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "registrations_total",
			Help:      "Accounts created through OTP registration.",
		}),
		imports: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "imported_users_total",
			Help:      "Accounts created through spreadsheet import.",
		}),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records count and latency per chi route pattern, so path
// parameters do not explode label cardinality.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
