// Package metrics содержит Prometheus-коллекторы сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы перехода для shortener_resolves_total
const (
	OutcomeRedirected        = "redirected"
	OutcomeNotFound          = "not_found"
	OutcomeExpired           = "expired"
	OutcomePasswordRequired  = "password_required"
	OutcomePasswordIncorrect = "password_incorrect"
	OutcomeError             = "error"
)

type Metrics struct {
	LinksCreated        *prometheus.CounterVec
	Resolves            *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ClickEventsDropped  prometheus.Counter
	ClickEventsEnriched prometheus.Counter
}

// New регистрирует коллекторы в reg. В тестах передаётся prometheus.NewRegistry(),
// чтобы не конфликтовать с глобальным реестром.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LinksCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_links_created_total",
			Help: "Short links minted, by code mode (random or custom).",
		}, []string{"mode"}),
		Resolves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_resolves_total",
			Help: "Short link resolutions, by outcome.",
		}, []string{"outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shortener_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		ClickEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortener_click_events_dropped_total",
			Help: "Click enrichment events dropped because the buffer was full.",
		}),
		ClickEventsEnriched: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortener_click_events_enriched_total",
			Help: "Click events enriched with a country.",
		}),
	}
}

// NewNop коллекторы без регистрации
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
