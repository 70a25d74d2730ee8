package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the generation instruments. A nil *Metrics records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	finished    *prometheus.CounterVec
	duration    prometheus.Histogram
	cards       prometheus.Counter
	truncated   prometheus.Counter
	inFlight    prometheus.Gauge
	httpReqs    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenx_cards",
			Name:      "generation_submissions_total",
			Help:      "Generation submissions by admission outcome.",
		}, []string{"outcome"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenx_cards",
			Name:      "generation_sessions_finished_total",
			Help:      "Generation sessions reaching a terminal state.",
		}, []string{"status", "error_code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tenx_cards",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of background generations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 300},
		}),
		cards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tenx_cards",
			Name:      "generated_cards_total",
			Help:      "Cards persisted by completed generations.",
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tenx_cards",
			Name:      "generated_cards_truncated_total",
			Help:      "AI cards dropped for exceeding the per-deck cap.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tenx_cards",
			Name:      "generations_in_flight",
			Help:      "Background generations currently running in this process.",
		}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenx_cards",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.submissions, m.finished, m.duration, m.cards, m.truncated, m.inFlight, m.httpReqs)
	return m
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) Finished(status, errorCode string, took time.Duration, cards, truncated int) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.finished.WithLabelValues(status, errorCode).Inc()
	m.duration.Observe(took.Seconds())
	m.cards.Add(float64(cards))
	m.truncated.Add(float64(truncated))
}

func (m *Metrics) HTTPRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.httpReqs.WithLabelValues(method, route, status).Inc()
}
