package services

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"secure-relay-backend/config"
	"secure-relay-backend/internal/metrics"
)

// NoSender marks a frame that did not come from a registered connection.
const NoSender = ""

// Broadcaster fans a frame out to registered participants.
type Broadcaster interface {
	BroadcastExceptSender(senderID string, frame []byte) int
}

// Participant is one live connection. Frames queued for it arrive on
// Send; the channel is closed when the participant is unregistered.
type Participant struct {
	ID          string
	ConnectedAt time.Time
	send        chan []byte
}

func (p *Participant) Send() <-chan []byte {
	return p.send
}

// ConnectionRegistry tracks live participants. Membership changes take the
// write lock and broadcasts take the read lock, so a participant's queue
// is never written after Unregister returns.
type ConnectionRegistry struct {
	mu           sync.RWMutex
	participants map[string]*Participant
	queueSize    int
	policy       string

	logger  *slog.Logger
	metrics *metrics.Metrics

	delivered atomic.Int64
	dropped   atomic.Int64
	evicted   atomic.Int64
}

func NewConnectionRegistry(queueSize int, policy string, logger *slog.Logger, m *metrics.Metrics) *ConnectionRegistry {
	if queueSize <= 0 {
		queueSize = 64
	}
	if policy == "" {
		policy = config.PolicyDrop
	}
	return &ConnectionRegistry{
		participants: make(map[string]*Participant),
		queueSize:    queueSize,
		policy:       policy,
		logger:       logger,
		metrics:      m,
	}
}

// Register adds id, or returns the participant already registered under it.
func (r *ConnectionRegistry) Register(id string) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[id]; ok {
		return p
	}
	p := &Participant{
		ID:          id,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, r.queueSize),
	}
	r.participants[id] = p
	r.metrics.Connections.Inc()
	return p
}

// Unregister removes id. It reports whether id was registered.
func (r *ConnectionRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return false
	}
	r.removeLocked(p)
	return true
}

func (r *ConnectionRegistry) removeLocked(p *Participant) {
	delete(r.participants, p.ID)
	close(p.send)
	r.metrics.Connections.Dec()
}

// evict unregisters p only if it is still the participant under its ID.
func (r *ConnectionRegistry) evict(p *Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.participants[p.ID]; !ok || cur != p {
		return false
	}
	r.removeLocked(p)
	return true
}

// BroadcastExceptSender queues frame for every participant except
// senderID and returns how many accepted it. It never blocks: a recipient
// with a full queue loses the frame, or is disconnected under the
// disconnect policy.
func (r *ConnectionRegistry) BroadcastExceptSender(senderID string, frame []byte) int {
	var slow []*Participant
	queued := 0

	r.mu.RLock()
	for id, p := range r.participants {
		if senderID != NoSender && id == senderID {
			continue
		}
		select {
		case p.send <- frame:
			queued++
		default:
			slow = append(slow, p)
		}
	}
	r.mu.RUnlock()

	r.delivered.Add(int64(queued))
	r.metrics.Deliveries.WithLabelValues(metrics.DeliveryQueued).Add(float64(queued))

	for _, p := range slow {
		if r.policy == config.PolicyDisconnect {
			if r.evict(p) {
				r.evicted.Add(1)
				r.metrics.Deliveries.WithLabelValues(metrics.DeliveryDisconnected).Inc()
				r.logger.Warn("disconnecting slow participant", "conn", p.ID, "queue", r.queueSize)
			}
			continue
		}
		r.dropped.Add(1)
		r.metrics.Deliveries.WithLabelValues(metrics.DeliveryDropped).Inc()
		r.logger.Warn("participant queue full, frame dropped", "conn", p.ID)
	}
	return queued
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

func (r *ConnectionRegistry) GetStats() map[string]interface{} {
	r.mu.RLock()
	count := len(r.participants)
	backlog := 0
	for _, p := range r.participants {
		backlog += len(p.send)
	}
	r.mu.RUnlock()

	return map[string]interface{}{
		"connections":      count,
		"queued_frames":    backlog,
		"queue_size":       r.queueSize,
		"slow_policy":      r.policy,
		"frames_delivered": r.delivered.Load(),
		"frames_dropped":   r.dropped.Load(),
		"clients_evicted":  r.evicted.Load(),
	}
}
