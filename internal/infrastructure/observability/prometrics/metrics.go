package prometrics

import (
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Definition describes one storefront metric: its help text, the label set
// every observation is projected onto, and histogram buckets.
type Definition struct {
	Key     observability.MetricKey
	Help    string
	Labels  []string
	Buckets []float64
}

var (
	// requestBuckets covers in-process handling and database round trips.
	requestBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	// providerBuckets reaches past the 15s default provider timeout.
	providerBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30}
)

// Counters is the storefront counter catalog.
var Counters = []Definition{
	{Key: observability.MUsecaseRequests, Help: "Use case invocations by outcome.", Labels: []string{"use_case", "outcome"}},
	{Key: observability.MHTTPRequests, Help: "HTTP requests by route and status.", Labels: []string{"method", "route", "status"}},
	{Key: observability.MExternalRequests, Help: "Calls to payment providers by outcome.", Labels: []string{"peer", "endpoint", "outcome"}},
	{Key: observability.MPaymentReconciliations, Help: "Payment events applied, by provider and resulting status.", Labels: []string{"provider", "status", "outcome"}},
	{Key: observability.MInventoryLowStock, Help: "Variants observed below the low-stock threshold after an order."},
	{Key: observability.MOutboxRelayed, Help: "Outbox messages handed to the broker.", Labels: []string{"event", "outcome"}},
}

// Histograms is the storefront histogram catalog.
var Histograms = []Definition{
	{Key: observability.MUsecaseDuration, Help: "Use case duration in seconds.", Labels: []string{"use_case"}, Buckets: requestBuckets},
	{Key: observability.MHTTPRequestDuration, Help: "HTTP request duration in seconds.", Labels: []string{"method", "route", "status"}, Buckets: requestBuckets},
	{Key: observability.MExternalRequestDuration, Help: "Payment provider call duration in seconds.", Labels: []string{"peer", "endpoint"}, Buckets: providerBuckets},
}

// Metrics serves the catalog through the observability port. Keys outside the
// catalog resolve to no-op instruments.
type Metrics struct {
	counters   map[observability.MetricKey]*counter
	histograms map[observability.MetricKey]*histogram
}

var _ observability.Metrics = (*Metrics)(nil)

// Register creates every catalog vector on reg. Vectors already registered
// by an earlier call are reused. A nil reg falls back to the default registerer.
func Register(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		counters:   make(map[observability.MetricKey]*counter, len(Counters)),
		histograms: make(map[observability.MetricKey]*histogram, len(Histograms)),
	}
	for _, d := range Counters {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: string(d.Key), Help: d.Help,
		}, d.Labels)
		if err := register(reg, &cv); err != nil {
			return nil, fmt.Errorf("prometrics: register %s: %w", d.Key, err)
		}
		m.counters[d.Key] = &counter{v: cv, keys: d.Labels}
	}
	for _, d := range Histograms {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: string(d.Key), Help: d.Help, Buckets: d.Buckets,
		}, d.Labels)
		if err := register(reg, &hv); err != nil {
			return nil, fmt.Errorf("prometrics: register %s: %w", d.Key, err)
		}
		m.histograms[d.Key] = &histogram{v: hv, keys: d.Labels}
	}
	return m, nil
}

func register[V prometheus.Collector](reg prometheus.Registerer, v *V) error {
	err := reg.Register(*v)
	var dup prometheus.AlreadyRegisteredError
	if errors.As(err, &dup) {
		existing, ok := dup.ExistingCollector.(V)
		if !ok {
			return err
		}
		*v = existing
		return nil
	}
	return err
}

func (m *Metrics) Counter(key observability.MetricKey) observability.Counter {
	if c, ok := m.counters[key]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m *Metrics) Histogram(key observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[key]; ok {
		return h
	}
	return observability.NopHistogram()
}

// values projects labels onto the declared keys. Undeclared labels are
// dropped and missing ones become "unknown".
func values(keys []string, labels []observability.Label) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = "unknown"
		for _, l := range labels {
			if l.Key == k {
				out[i] = l.Value
				break
			}
		}
	}
	return out
}

type counter struct {
	v    *prometheus.CounterVec
	keys []string
}

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.WithLabelValues(values(c.keys, labels)...).Add(d)
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return c.v.WithLabelValues(values(c.keys, labels)...)
}

type histogram struct {
	v    *prometheus.HistogramVec
	keys []string
}

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.WithLabelValues(values(h.keys, labels)...).Observe(v)
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return h.v.WithLabelValues(values(h.keys, labels)...)
}
