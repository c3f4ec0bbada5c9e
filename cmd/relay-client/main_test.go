package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSaveFileKeepsBaseName(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		want string
	}{
		{"note.txt", "note.txt"},
		{"../../etc/passwd", "passwd"},
		{"/abs/path/report.pdf", "report.pdf"},
		{"", "download"},
		{"..", "download"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := saveFile(dir, tt.name, []byte("x"))
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), path)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "x", string(data))
		})
	}
}

func TestFileType(t *testing.T) {
	assert.Equal(t, "text/plain; charset=utf-8", fileType("a.txt"))
	assert.Equal(t, "application/octet-stream", fileType("blob"))
}

func TestUploadRequiresOneFile(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"relay-client", "upload"})
	assert.ErrorIs(t, err, errUsage)
}

func TestUploadUnreadableFile(t *testing.T) {
	var out bytes.Buffer
	missing := filepath.Join(t.TempDir(), "nope.txt")
	err := newApp(&out).Run([]string{"relay-client", "upload", missing})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUploadUnreachableServer(t *testing.T) {
	var out bytes.Buffer
	file := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o600))

	err := newApp(&out).Run([]string{"relay-client", "--server", "http://127.0.0.1:1", "upload", file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestUploadSendsFile(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/upload-and-broadcast", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o600))

	var out bytes.Buffer
	require.NoError(t, newApp(&out).Run([]string{"relay-client", "--server", srv.URL, "upload", file}))

	assert.Equal(t, "note.txt", got["filename"])
	assert.Equal(t, "text/plain; charset=utf-8", got["filetype"])
	assert.Equal(t, "aGVsbG8=", got["filedata"])
	assert.Contains(t, out.String(), "sent note.txt")
}

func TestConnectSharesLoggerWithCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	app := newApp(&out)
	app.ErrWriter = &errOut
	app.Commands = append(app.Commands, &cli.Command{
		Name: "log-check",
		Action: func(c *cli.Context) error {
			rc, logger, err := connect(c)
			require.NoError(t, err)
			require.NotNil(t, rc)
			logger.Warn("relay log line")
			return nil
		},
	})

	require.NoError(t, app.Run([]string{"relay-client", "--server", srv.URL, "log-check"}))
	assert.Contains(t, errOut.String(), "relay log line")
}
