package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-relay-backend/config"
	"secure-relay-backend/internal/crypto"
	"secure-relay-backend/internal/logging"
	"secure-relay-backend/internal/models"
)

type failingEncrypter struct{}

func (failingEncrypter) Encrypt([]byte) (*models.Envelope, error) {
	return nil, errors.New("entropy exhausted")
}

type recordingHub struct {
	senders []string
	frames  [][]byte
}

func (h *recordingHub) BroadcastExceptSender(senderID string, frame []byte) int {
	h.senders = append(h.senders, senderID)
	h.frames = append(h.frames, frame)
	return 0
}

func TestBroadcast_HelloReachesEveryParticipant(t *testing.T) {
	r, m := newTestRegistry(4, config.PolicyDrop)
	codec := newTestCodec(t)
	svc := NewBroadcastService(codec, r, logging.Discard(), m)

	a := r.Register("a")
	b := r.Register("b")

	require.NoError(t, svc.Broadcast("note.txt", "text/plain", []byte("hello")))

	for _, p := range []*Participant{a, b} {
		f := receiveFrame(t, p)
		assert.Equal(t, models.EventEncryptedBroadcast, f.Event)

		var msg models.BroadcastMessage
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		assert.Equal(t, "note.txt", msg.Filename)
		assert.Equal(t, "text/plain", msg.Filetype)
		assert.NotContains(t, string(f.Data), "hello")

		env, err := crypto.DecodeWire(models.WireEnvelope{IV: msg.IV, AuthTag: msg.AuthTag, Content: &msg.Content})
		require.NoError(t, err)
		pt, err := codec.Decrypt(env)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(pt))
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Broadcasts))
}

func TestBroadcast_UsesNoSender(t *testing.T) {
	hub := &recordingHub{}
	_, m := newTestRegistry(1, config.PolicyDrop)
	svc := NewBroadcastService(newTestCodec(t), hub, logging.Discard(), m)

	require.NoError(t, svc.Broadcast("a.bin", "", []byte{1, 2, 3}))
	assert.Equal(t, []string{NoSender}, hub.senders)
}

func TestBroadcast_EncryptionError(t *testing.T) {
	hub := &recordingHub{}
	_, m := newTestRegistry(1, config.PolicyDrop)
	svc := NewBroadcastService(failingEncrypter{}, hub, logging.Discard(), m)

	err := svc.Broadcast("a.bin", "", []byte{1})
	require.ErrorIs(t, err, ErrEncryption)
	assert.Empty(t, hub.frames, "nothing is broadcast when encryption fails")
}

func TestRelayChunk_VerbatimExceptSender(t *testing.T) {
	r, m := newTestRegistry(4, config.PolicyDrop)
	svc := NewStreamService(r, logging.Discard(), m)

	sender := r.Register("sender")
	a := r.Register("a")
	b := r.Register("b")

	chunk := json.RawMessage(`{ "iv": "00ff", "ciphertext": "AAEC+/==", "meta": {"seq": 1, "name": "a<b>&c"}, "ts": 1700000000000, "extra": true }`)
	require.NoError(t, svc.RelayChunk("sender", chunk))

	for _, p := range []*Participant{a, b} {
		f := receiveFrame(t, p)
		assert.Equal(t, models.EventStreamChunk, f.Event)
		assert.Equal(t, string(chunk), string(f.Data), "chunk bytes are untouched")
	}
	assertNoFrame(t, sender)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChunksRelayed))
}

func TestRelayChunk_Empty(t *testing.T) {
	hub := &recordingHub{}
	_, m := newTestRegistry(1, config.PolicyDrop)
	svc := NewStreamService(hub, logging.Discard(), m)

	for _, c := range []string{"", "  ", "null"} {
		assert.ErrorIs(t, svc.RelayChunk("s", json.RawMessage(c)), ErrEmptyChunk)
	}
	assert.Empty(t, hub.frames)
}

func TestRelayChunk_PreservesSenderOrder(t *testing.T) {
	r, m := newTestRegistry(128, config.PolicyDrop)
	svc := NewStreamService(r, logging.Discard(), m)

	r.Register("sender")
	recv := r.Register("recv")

	for i := 0; i < 100; i++ {
		require.NoError(t, svc.RelayChunk("sender", json.RawMessage(fmt.Sprintf(`{"meta":{"seq":%d}}`, i))))
	}
	for i := 0; i < 100; i++ {
		f := receiveFrame(t, recv)
		var c struct {
			Meta struct{ Seq int } `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &c))
		require.Equal(t, i, c.Meta.Seq)
	}
}

func TestDecryptOnDemand(t *testing.T) {
	_, m := newTestRegistry(1, config.PolicyDrop)
	codec := newTestCodec(t)
	svc := NewDecryptService(codec, logging.Discard(), m)

	env, err := codec.Encrypt([]byte("hello"))
	require.NoError(t, err)

	pt, err := svc.DecryptOnDemand(env.ToWire())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))

	env.Tag[0] ^= 0x80
	pt, err = svc.DecryptOnDemand(env.ToWire())
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
	assert.Nil(t, pt)

	w := env.ToWire()
	w.IV = "zz"
	_, err = svc.DecryptOnDemand(w)
	require.ErrorIs(t, err, crypto.ErrMalformedEnvelope)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Decrypts.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Decrypts.WithLabelValues("auth_failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Decrypts.WithLabelValues("malformed")))
}
