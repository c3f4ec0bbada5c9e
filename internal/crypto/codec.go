// Package crypto seals and opens relay envelopes with an AEAD cipher.
//
// Scheme:
//   - Key:    the 32-byte shared secret from the keystore
//   - Cipher: AES-256-GCM (default) or ChaCha20-Poly1305
//   - Nonce:  12 random bytes per encryption, never reused
//   - Tag:    16 bytes, kept separate from the ciphertext on the wire
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"secure-relay-backend/internal/keystore"
	"secure-relay-backend/internal/models"
)

type Algorithm string

const (
	AES256GCM        Algorithm = "aes-256-gcm"
	ChaCha20Poly1305 Algorithm = "chacha20-poly1305"
)

const (
	NonceSize = 12
	TagSize   = 16
)

var (
	ErrMalformedEnvelope    = errors.New("malformed envelope")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// Codec is stateless apart from the expanded key and is safe for
// concurrent use.
type Codec struct {
	aead      cipher.AEAD
	algorithm Algorithm
}

func NewCodec(key *keystore.Key, algorithm Algorithm) (*Codec, error) {
	if key == nil {
		return nil, keystore.ErrKeyMissing
	}
	aead, err := newAEAD(key.Bytes(), algorithm)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead, algorithm: algorithm}, nil
}

func newAEAD(key []byte, algorithm Algorithm) (cipher.AEAD, error) {
	if len(key) != keystore.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keystore.KeySize, len(key))
	}
	switch algorithm {
	case AES256GCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("unsupported cipher %q", algorithm)
	}
}

func (c *Codec) Algorithm() Algorithm {
	return c.algorithm
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Codec) Encrypt(plaintext []byte) (*models.Envelope, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.EncryptWithNonce(nonce, plaintext)
}

// EncryptWithNonce is deterministic in nonce. Outside tests, use Encrypt.
func (c *Codec) EncryptWithNonce(nonce, plaintext []byte) (*models.Envelope, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize
	return &models.Envelope{
		Nonce:      append([]byte(nil), nonce...),
		Tag:        sealed[split:],
		Ciphertext: sealed[:split:split],
	}, nil
}

// Decrypt verifies the tag before any plaintext is produced. On failure it
// returns nil and ErrAuthenticationFailed, whatever the cause.
func (c *Codec) Decrypt(env *models.Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrMalformedEnvelope)
	}
	if len(env.Nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrMalformedEnvelope, NonceSize, len(env.Nonce))
	}
	if len(env.Tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrMalformedEnvelope, TagSize, len(env.Tag))
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := c.aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
