package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Broadcasts.Inc()
	m.Deliveries.WithLabelValues(DeliveryDropped).Add(2)
	m.Decrypts.WithLabelValues(DecryptFailed).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(DeliveryDropped)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "relay_broadcasts_total")
	assert.Contains(t, names, "relay_deliveries_total")
	assert.Contains(t, names, "relay_decrypts_total")
}

func TestNewWithoutRegistry(t *testing.T) {
	a := New(nil)
	b := New(nil)

	a.Connections.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.Connections))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Connections))
}
