package services

import (
	"errors"
	"log/slog"

	"secure-relay-backend/internal/crypto"
	"secure-relay-backend/internal/metrics"
	"secure-relay-backend/internal/models"
)

type Decrypter interface {
	Decrypt(env *models.Envelope) ([]byte, error)
}

// DecryptService opens envelopes for participants that lack the key.
// It keeps no state between calls.
type DecryptService struct {
	codec   Decrypter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDecryptService(codec Decrypter, logger *slog.Logger, m *metrics.Metrics) *DecryptService {
	return &DecryptService{codec: codec, logger: logger, metrics: m}
}

func (s *DecryptService) DecryptOnDemand(w models.WireEnvelope) ([]byte, error) {
	env, err := crypto.DecodeWire(w)
	if err != nil {
		s.metrics.Decrypts.WithLabelValues(metrics.DecryptMalformed).Inc()
		return nil, err
	}

	plaintext, err := s.codec.Decrypt(env)
	if err != nil {
		result := metrics.DecryptFailed
		if errors.Is(err, crypto.ErrMalformedEnvelope) {
			result = metrics.DecryptMalformed
		}
		s.metrics.Decrypts.WithLabelValues(result).Inc()
		return nil, err
	}

	s.metrics.Decrypts.WithLabelValues(metrics.DecryptOK).Inc()
	return plaintext, nil
}
