// Package metrics counts lifecycle activity for Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	transitions *prometheus.CounterVec
	lookups     *prometheus.CounterVec
	deletions   prometheus.Counter
	reminders   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiche",
			Name:      "transitions_total",
			Help:      "Fiche status transitions applied.",
		}, []string{"from", "to"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiche",
			Name:      "guardian_lookups_total",
			Help:      "Guardian code lookups by outcome.",
		}, []string{"granted"}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fiche",
			Name:      "deletions_total",
			Help:      "Fiches deleted by operators.",
		}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiche",
			Name:      "reminders_total",
			Help:      "Reminder emails by delivery channel.",
		}, []string{"channel"}),
	}
	reg.MustRegister(m.transitions, m.lookups, m.deletions, m.reminders)
	return m
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Lookup(granted bool) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(strconv.FormatBool(granted)).Inc()
}

func (m *Metrics) Deleted() {
	if m == nil {
		return
	}
	m.deletions.Inc()
}

// Reminder records one reminder; channel is "api" or "mailto".
func (m *Metrics) Reminder(channel string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(channel).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
