package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Batch outcomes
const (
	OutcomeProcessed = "processed"
	OutcomeEmpty     = "empty"
	OutcomeBusy      = "busy"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	reg *prometheus.Registry

	intentsSubmitted *prometheus.CounterVec
	batches          *prometheus.CounterVec
	batchDuration    prometheus.Histogram
	nettedAmount     prometheus.Counter
	poolAmount       prometheus.Counter
	batchIntents     prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		intentsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchor_intents_submitted_total",
			Help: "Swap intents accepted into the queue, by source.",
		}, []string{"source"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anchor_batches_total",
			Help: "Batch cycles by outcome.",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "anchor_batch_duration_seconds",
			Help:    "Wall time of processed batch cycles.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		nettedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anchor_netted_amount_total",
			Help: "Volume settled peer-to-peer, in token units.",
		}),
		poolAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anchor_pool_filled_amount_total",
			Help: "Volume routed to the liquidity pool, in token units.",
		}),
		batchIntents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "anchor_batch_intents",
			Help:    "Intents per processed batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	reg.MustRegister(m.intentsSubmitted, m.batches, m.batchDuration, m.nettedAmount, m.poolAmount, m.batchIntents)
	return m
}

func (m *Metrics) IntentSubmitted(source string) {
	m.intentsSubmitted.WithLabelValues(source).Inc()
}

func (m *Metrics) BatchOutcome(outcome string) {
	m.batches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BatchProcessed(d time.Duration, intents int, netted, pool decimal.Decimal) {
	m.batches.WithLabelValues(OutcomeProcessed).Inc()
	m.batchDuration.Observe(d.Seconds())
	m.batchIntents.Observe(float64(intents))
	m.nettedAmount.Add(netted.InexactFloat64())
	m.poolAmount.Add(pool.InexactFloat64())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
