package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-relay-backend/config"
	"secure-relay-backend/internal/keystore"
	"secure-relay-backend/internal/logging"
)

func testConfig(t *testing.T, keyLen int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.KeyPath = filepath.Join(t.TempDir(), "secret.key")
	if keyLen >= 0 {
		require.NoError(t, os.WriteFile(cfg.KeyPath, bytes.Repeat([]byte{1}, keyLen), 0o600))
	}
	return cfg
}

func TestNewServer_RefusesShortKey(t *testing.T) {
	_, err := NewServer(testConfig(t, 16), logging.Discard())
	require.ErrorIs(t, err, keystore.ErrKeyLengthInvalid)
}

func TestNewServer_RefusesMissingKey(t *testing.T) {
	_, err := NewServer(testConfig(t, -1), logging.Discard())
	require.ErrorIs(t, err, keystore.ErrKeyMissing)
}

func TestNewServer_RefusesUnknownCipher(t *testing.T) {
	cfg := testConfig(t, keystore.KeySize)
	cfg.Cipher = "rot13"
	_, err := NewServer(cfg, logging.Discard())
	require.Error(t, err)
}

func TestServer_Routes(t *testing.T) {
	srv, err := NewServer(testConfig(t, keystore.KeySize), logging.Discard())
	require.NoError(t, err)
	defer srv.key.Destroy()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := get(t, ts.URL+"/health", http.StatusOK)
	assert.Equal(t, "OK", body)

	body = get(t, ts.URL+"/get_key", http.StatusOK)
	assert.Contains(t, body, "key_base64")

	body = get(t, ts.URL+"/metrics", http.StatusOK)
	assert.Contains(t, body, "relay_connections")
}

func TestServer_KeyExportDisabled(t *testing.T) {
	cfg := testConfig(t, keystore.KeySize)
	cfg.ExposeKey = false
	srv, err := NewServer(cfg, logging.Discard())
	require.NoError(t, err)
	defer srv.key.Destroy()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	get(t, ts.URL+"/get_key", http.StatusNotFound)
}

func TestServer_StaticDir(t *testing.T) {
	cfg := testConfig(t, keystore.KeySize)
	cfg.StaticDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StaticDir, "index.html"), []byte("<h1>relay</h1>"), 0o644))

	srv, err := NewServer(cfg, logging.Discard())
	require.NoError(t, err)
	defer srv.key.Destroy()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	assert.True(t, strings.Contains(get(t, ts.URL+"/", http.StatusOK), "relay"))
}

func get(t *testing.T, url string, wantStatus int) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, string(data))
	return string(data)
}
