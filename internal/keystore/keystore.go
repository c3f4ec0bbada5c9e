// Package keystore loads the relay's shared AES-256 secret.
//
// The key is read once at startup and kept in a frozen memguard buffer for
// the lifetime of the process. Nothing can modify it after Load returns, so
// a *Key may be shared by any number of goroutines.
package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/awnumar/memguard"
)

// KeySize is the only accepted key length.
const KeySize = 32

var (
	ErrKeyMissing       = errors.New("keystore: key material not provisioned")
	ErrKeyLengthInvalid = errors.New("keystore: key must be exactly 32 bytes")
)

// Key is the immutable shared secret.
type Key struct {
	buf *memguard.LockedBuffer
}

// Load reads the key file at path.
func Load(path string) (*Key, error) {
	if path == "" {
		return nil, ErrKeyMissing
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyMissing, path)
		}
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	defer f.Close()

	// One byte past KeySize is enough to reject an oversized file.
	raw, err := io.ReadAll(io.LimitReader(f, KeySize+1))
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	return FromBytes(raw)
}

// FromBytes moves raw into protected memory. raw is wiped on return.
func FromBytes(raw []byte) (*Key, error) {
	if len(raw) == 0 {
		return nil, ErrKeyMissing
	}
	if len(raw) != KeySize {
		n := len(raw)
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("%w, got %d", ErrKeyLengthInvalid, n)
	}

	buf := memguard.NewBufferFromBytes(raw)
	buf.Freeze()
	return &Key{buf: buf}, nil
}

// Bytes returns a read-only view of the key. Callers must not retain or
// modify it; writing to a frozen buffer faults.
func (k *Key) Bytes() []byte {
	return k.buf.Bytes()
}

// Fingerprint identifies the key in logs without revealing it.
func (k *Key) Fingerprint() string {
	sum := sha256.Sum256(k.buf.Bytes())
	return hex.EncodeToString(sum[:8])
}

// Destroy wipes the key. Only called on shutdown.
func (k *Key) Destroy() {
	k.buf.Destroy()
}
