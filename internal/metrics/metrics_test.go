package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistryCountersIncrement(t *testing.T) {
	r := New()

	r.ConnectionsTotal.Inc()
	r.ConnectionsActive.Set(3)
	r.FramesRead.WithLabelValues("tokenized_inline").Inc()
	r.BytesRead.Add(128)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.ConnectionsTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(r.ConnectionsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.FramesRead.WithLabelValues("tokenized_inline")))
	assert.Equal(t, float64(128), testutil.ToFloat64(r.BytesRead))
}

func TestGathererReportsRegisteredMetrics(t *testing.T) {
	r := New()
	r.HandlerErrors.Inc()

	families, err := r.Gatherer().Gather()
	assert.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "httpbridge_handler_errors_total" {
			found = true
		}
	}
	assert.True(t, found, "expected httpbridge_handler_errors_total in gathered metrics")
}
