package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"secure-relay-backend/internal/models"
)

// DecodeWire parses the hex/base64 wire form. It does no cryptographic
// work; every failure is ErrMalformedEnvelope.
func DecodeWire(w models.WireEnvelope) (*models.Envelope, error) {
	if w.IV == "" || w.AuthTag == "" || w.Content == nil {
		return nil, fmt.Errorf("%w: iv, authTag and content are required", ErrMalformedEnvelope)
	}
	nonce, err := hex.DecodeString(w.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv hex: %v", ErrMalformedEnvelope, err)
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformedEnvelope, NonceSize, len(nonce))
	}
	tag, err := hex.DecodeString(w.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("%w: authTag hex: %v", ErrMalformedEnvelope, err)
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: authTag must be %d bytes, got %d", ErrMalformedEnvelope, TagSize, len(tag))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(*w.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: content base64: %v", ErrMalformedEnvelope, err)
	}
	return &models.Envelope{Nonce: nonce, Tag: tag, Ciphertext: ciphertext}, nil
}
