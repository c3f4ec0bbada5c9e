package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"secure-relay-backend/internal/metrics"
	"secure-relay-backend/internal/models"
)

var ErrEmptyChunk = errors.New("stream chunk is empty")

// StreamService forwards ciphertext chunks between participants. It never
// looks inside a chunk.
type StreamService struct {
	hub     Broadcaster
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewStreamService(hub Broadcaster, logger *slog.Logger, m *metrics.Metrics) *StreamService {
	return &StreamService{hub: hub, logger: logger, metrics: m}
}

// RelayChunk sends chunk, byte for byte, to everyone but senderID.
func (s *StreamService) RelayChunk(senderID string, chunk json.RawMessage) error {
	trimmed := bytes.TrimSpace(chunk)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEmptyChunk
	}

	frame, err := models.EncodeFrame(models.EventStreamChunk, chunk)
	if err != nil {
		return fmt.Errorf("encode stream frame: %w", err)
	}

	recipients := s.hub.BroadcastExceptSender(senderID, frame)
	s.metrics.ChunksRelayed.Inc()
	s.logger.Debug("stream chunk relayed", "from", senderID, "bytes", len(chunk), "recipients", recipients)
	return nil
}
