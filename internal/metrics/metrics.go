// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

// Delivery results.
const (
	DeliveryQueued       = "queued"
	DeliveryDropped      = "dropped"
	DeliveryDisconnected = "disconnected"
)

// Decrypt results.
const (
	DecryptOK        = "ok"
	DecryptMalformed = "malformed"
	DecryptFailed    = "auth_failed"
)

type Metrics struct {
	Connections    prometheus.Gauge
	Broadcasts     prometheus.Counter
	BytesEncrypted prometheus.Counter
	ChunksRelayed  prometheus.Counter
	Deliveries     *prometheus.CounterVec
	Decrypts       *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg leaves them
// unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Currently registered participant connections.",
		}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Uploads encrypted and handed to the registry.",
		}),
		BytesEncrypted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encrypted_bytes_total",
			Help:      "Plaintext bytes encrypted on the upload path.",
		}),
		ChunksRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Stream chunks accepted for relay.",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-recipient delivery attempts by result.",
		}, []string{"result"}),
		Decrypts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypts_total",
			Help:      "On-demand decrypt requests by result.",
		}, []string{"result"}),
	}
}
