package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "payroll"

// Collector groups the engine's Prometheus instruments. A nil *Collector is valid and records nothing.
type Collector struct {
	calculations  *prometheus.CounterVec
	batchItems    *prometheus.CounterVec
	batchDuration prometheus.Histogram
	approvals     *prometheus.CounterVec
	transfers     *prometheus.CounterVec
	transferred   prometheus.Counter
}

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Payroll calculations by outcome.",
		}, []string{"outcome"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch items by outcome (success, failed, skipped).",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of batch runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approval attempts by outcome.",
		}, []string{"outcome"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer items by outcome.",
		}, []string{"outcome"}),
		transferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transferred_amount",
			Help:      "Sum of net salaries moved to transferred.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.calculations, c.batchItems, c.batchDuration, c.approvals, c.transfers, c.transferred)
	}
	return c
}

func (c *Collector) Calculation(outcome string) {
	if c == nil {
		return
	}
	c.calculations.WithLabelValues(outcome).Inc()
}

func (c *Collector) BatchItems(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.batchItems.WithLabelValues(outcome).Add(float64(n))
}

func (c *Collector) BatchDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.batchDuration.Observe(d.Seconds())
}

func (c *Collector) Approval(outcome string) {
	if c == nil {
		return
	}
	c.approvals.WithLabelValues(outcome).Inc()
}

func (c *Collector) Transfer(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.transfers.WithLabelValues(outcome).Add(float64(n))
}

func (c *Collector) TransferredAmount(amount decimal.Decimal) {
	if c == nil || !amount.IsPositive() {
		return
	}
	c.transferred.Add(amount.InexactFloat64())
}
