package services

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secure-relay-backend/internal/crypto"
	"secure-relay-backend/internal/keystore"
	"secure-relay-backend/internal/logging"
	"secure-relay-backend/internal/metrics"
	"secure-relay-backend/internal/models"
)

func newTestRegistry(queueSize int, policy string) (*ConnectionRegistry, *metrics.Metrics) {
	m := metrics.New(nil)
	return NewConnectionRegistry(queueSize, policy, logging.Discard(), m), m
}

func newTestCodec(t *testing.T) *crypto.Codec {
	t.Helper()
	key, err := keystore.FromBytes(bytes.Repeat([]byte{0xab}, keystore.KeySize))
	require.NoError(t, err)
	t.Cleanup(key.Destroy)

	c, err := crypto.NewCodec(key, crypto.AES256GCM)
	require.NoError(t, err)
	return c
}

func receiveFrame(t *testing.T, p *Participant) models.Frame {
	t.Helper()
	select {
	case data, ok := <-p.Send():
		require.True(t, ok, "queue closed")
		var f models.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for frame on %s", p.ID)
		return models.Frame{}
	}
}

func assertNoFrame(t *testing.T, p *Participant) {
	t.Helper()
	select {
	case data := <-p.Send():
		t.Fatalf("unexpected frame for %s: %s", p.ID, data)
	default:
	}
}
