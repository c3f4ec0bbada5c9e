// Command genkey writes a fresh 32-byte relay key. It never overwrites an
// existing key file.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"secure-relay-backend/internal/keystore"
)

func main() {
	out := flag.String("out", "secret.key", "Where to write the key")
	flag.Parse()

	if err := run(*out, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "genkey: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, w io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintln(w, "secret.key already exists. Path:", path)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	key := make([]byte, keystore.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Generated secret.key (%d bytes) at %s\n", keystore.KeySize, path)
	fmt.Fprintln(w, "Base64 key (for debugging/demo):", base64.StdEncoding.EncodeToString(key))
	return nil
}
