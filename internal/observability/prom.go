package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Credential hashing
	HashDuration *prometheus.HistogramVec
	HashSlots    prometheus.Gauge

	// Auth outcomes
	AuthResults *prometheus.CounterVec
	SearchCache *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "identityhub",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "identityhub",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "identityhub",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "identityhub",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "identityhub",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "identityhub",
				Subsystem: "credentials",
				Name:      "hash_duration_seconds",
				Help:      "bcrypt hash/compare duration by op and result.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"op", "result"}, // result=ok|mismatch|error
		),
		HashSlots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "identityhub",
				Subsystem: "credentials",
				Name:      "hash_slots_in_use",
				Help:      "Hashing slots currently held.",
			},
		),
		AuthResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "identityhub",
				Subsystem: "auth",
				Name:      "results_total",
				Help:      "Authentication outcomes by flow and result.",
			},
			[]string{"flow", "result"},
		),
		SearchCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "identityhub",
				Subsystem: "search",
				Name:      "cache_total",
				Help:      "Profile cache lookups by result.",
			},
			[]string{"result"}, // result=hit|miss
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.HashDuration, p.HashSlots,
		p.AuthResults, p.SearchCache,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

func (p *Prom) ObserveHash(op string, d time.Duration, err error) {
	result := "ok"

	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		result = "mismatch"
	case err != nil:
		result = "error"
	}

	p.HashDuration.WithLabelValues(op, result).Observe(d.Seconds())
}

func (p *Prom) HashSlotsInUse(delta float64) {
	p.HashSlots.Add(delta)
}

func (p *Prom) ObserveAuth(flow, result string) {
	p.AuthResults.WithLabelValues(flow, result).Inc()
}

func (p *Prom) ObserveCache(hit bool) {
	if hit {
		p.SearchCache.WithLabelValues("hit").Inc()
		return
	}
	p.SearchCache.WithLabelValues("miss").Inc()
}
