package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter rate limits HTTP callers by client key.
type ClientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*ClientInfo
	rateLimit rate.Limit
	rateBurst int
}

type ClientInfo struct {
	ID           string
	FirstSeen    time.Time
	LastSeen     time.Time
	RequestCount int64
	limiter      *rate.Limiter
}

func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		clients:   make(map[string]*ClientInfo),
		rateLimit: rate.Limit(perSecond),
		rateBurst: burst,
	}
}

// Allow records a request from clientID and reports whether it is within
// the client's budget.
func (s *ClientLimiter) Allow(clientID string) bool {
	s.mu.Lock()
	now := time.Now()
	client, exists := s.clients[clientID]
	if !exists {
		client = &ClientInfo{
			ID:        clientID,
			FirstSeen: now,
			limiter:   rate.NewLimiter(s.rateLimit, s.rateBurst),
		}
		s.clients[clientID] = client
	}
	client.LastSeen = now
	client.RequestCount++
	limiter := client.limiter
	s.mu.Unlock()

	return limiter.Allow()
}

// CleanupOldClients forgets clients idle for longer than maxAge until ctx
// is done.
func (s *ClientLimiter) CleanupOldClients(ctx context.Context, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.prune(time.Now(), maxAge)
			}
		}
	}()
}

func (s *ClientLimiter) prune(now time.Time, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, client := range s.clients {
		if now.Sub(client.LastSeen) > maxAge {
			delete(s.clients, id)
			removed++
		}
	}
	return removed
}

func (s *ClientLimiter) GetClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
