package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"secure-relay-backend/internal/metrics"
	"secure-relay-backend/internal/models"
)

var ErrEncryption = errors.New("encryption failed")

type Encrypter interface {
	Encrypt(plaintext []byte) (*models.Envelope, error)
}

// BroadcastService encrypts uploads and hands them to the registry.
type BroadcastService struct {
	codec   Encrypter
	hub     Broadcaster
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewBroadcastService(codec Encrypter, hub Broadcaster, logger *slog.Logger, m *metrics.Metrics) *BroadcastService {
	return &BroadcastService{
		codec:   codec,
		hub:     hub,
		logger:  logger,
		metrics: m,
	}
}

// Broadcast returns once the frame is queued; delivery is not confirmed.
// Uploads come over plain HTTP, so every registered participant receives
// them.
func (s *BroadcastService) Broadcast(filename, filetype string, plaintext []byte) error {
	env, err := s.codec.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	data, err := json.Marshal(models.NewBroadcastMessage(filename, filetype, env))
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrEncryption, err)
	}
	frame, err := models.EncodeFrame(models.EventEncryptedBroadcast, data)
	if err != nil {
		return fmt.Errorf("%w: encode frame: %v", ErrEncryption, err)
	}

	recipients := s.hub.BroadcastExceptSender(NoSender, frame)

	s.metrics.Broadcasts.Inc()
	s.metrics.BytesEncrypted.Add(float64(len(plaintext)))
	s.logger.Info("encrypted and broadcast",
		"file", filename,
		"size", humanize.Bytes(uint64(len(plaintext))),
		"recipients", recipients)
	return nil
}
