package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Allocations        *prometheus.CounterVec
	SharesGranted      prometheus.Counter
	BucketsCreated     prometheus.Counter
	AnimalsRegistered  *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	LedgerPosts        *prometheus.CounterVec
	Discrepancies      *prometheus.CounterVec
	DiscrepantProducts prometheus.Gauge
	Distributions      prometheus.Counter
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qurban_allocations_total",
			Help: "Collective purchase allocations by outcome",
		}, []string{"outcome"}),
		SharesGranted: f.NewCounter(prometheus.CounterOpts{
			Name: "qurban_shares_granted_total",
			Help: "Total collective shares granted to purchases",
		}),
		BucketsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "qurban_shared_animals_created_total",
			Help: "Shared animals created because no open bucket had room",
		}),
		AnimalsRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qurban_animals_registered_total",
			Help: "Animal instances created, by animal type",
		}, []string{"type"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qurban_status_transitions_total",
			Help: "Lifecycle transitions by target status and mode",
		}, []string{"status", "mode"}),
		LedgerPosts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qurban_ledger_posts_total",
			Help: "Ledger events appended, by direction and location",
		}, []string{"direction", "location"}),
		Discrepancies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qurban_conservation_discrepancies_total",
			Help: "Error log rows appended, by discrepancy kind",
		}, []string{"kind"}),
		DiscrepantProducts: f.NewGauge(prometheus.GaugeOpts{
			Name: "qurban_discrepant_products",
			Help: "Products whose counters violate conservation at the last sweep",
		}),
		Distributions: f.NewCounter(prometheus.CounterOpts{
			Name: "qurban_distributions_total",
			Help: "Distribution records created",
		}),
	}
}

func (m *Metrics) ObserveAllocation(outcome string, shares, created int) {
	if m == nil {
		return
	}
	m.Allocations.WithLabelValues(outcome).Inc()
	m.SharesGranted.Add(float64(shares))
	m.BucketsCreated.Add(float64(created))
}

func (m *Metrics) ObserveRegistered(typeName string, n int) {
	if m == nil {
		return
	}
	m.AnimalsRegistered.WithLabelValues(typeName).Add(float64(n))
}

func (m *Metrics) ObserveTransition(status string, override bool) {
	if m == nil {
		return
	}
	mode := "advance"
	if override {
		mode = "override"
	}
	m.Transitions.WithLabelValues(status, mode).Inc()
}

func (m *Metrics) ObserveLedgerPost(direction, location string) {
	if m == nil {
		return
	}
	m.LedgerPosts.WithLabelValues(direction, location).Inc()
}

func (m *Metrics) ObserveDiscrepancy(kind string) {
	if m == nil {
		return
	}
	m.Discrepancies.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetDiscrepantProducts(n int) {
	if m == nil {
		return
	}
	m.DiscrepantProducts.Set(float64(n))
}

func (m *Metrics) ObserveDistribution() {
	if m == nil {
		return
	}
	m.Distributions.Inc()
}
