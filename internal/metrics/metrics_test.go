package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveAllocation("ok", 3, 1)
	m.ObserveAllocation("ok", 2, 0)
	m.ObserveDiscrepancy("RECEIVED_EXCEEDS_PRODUCED")
	m.SetDiscrepantProducts(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Allocations.WithLabelValues("ok")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.SharesGranted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BucketsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Discrepancies.WithLabelValues("RECEIVED_EXCEEDS_PRODUCED")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.DiscrepantProducts))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAllocation("ok", 1, 1)
		m.ObserveTransition("ARRIVED", false)
		m.SetDiscrepantProducts(1)
	})
}
