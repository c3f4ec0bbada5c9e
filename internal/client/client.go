// Package client talks to a relay server: it uploads files, listens on the
// participant channel, streams chunks and asks the server to decrypt
// broadcasts.
//
// Concurrency:
//   - Upload, DecryptFile and GetKey are safe from any goroutine.
//   - Listen owns the websocket read side and reconnects with backoff
//     until its context is done.
//   - SendChunk may be called from any goroutine while Listen is running.
//   - Handlers run on the Listen goroutine and must not block for long.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"secure-relay-backend/internal/models"
)

var ErrNotConnected = errors.New("client: not connected to relay")

const (
	reconnectInitial = 1 * time.Second
	reconnectMax     = 30 * time.Second
)

type Handlers struct {
	OnBroadcast func(msg *models.BroadcastMessage)
	OnChunk     func(chunk json.RawMessage)
	OnStatus    func(connected bool, msg string)
}

type RelayClient struct {
	serverURL  string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger

	// first reconnect delay; tests shorten it
	initialBackoff time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	connID string
}

func New(serverURL string, logger *slog.Logger) *RelayClient {
	return &RelayClient{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger,

		initialBackoff: reconnectInitial,
	}
}

// ConnectionID is the ID the relay assigned to the current channel, or ""
// when disconnected.
func (c *RelayClient) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// ── HTTP ───────────────────────────────────────────────────────────────────────

func (c *RelayClient) Upload(ctx context.Context, filename, filetype string, data []byte) error {
	body := map[string]string{
		"filename": filename,
		"filetype": filetype,
		"filedata": base64.StdEncoding.EncodeToString(data),
	}
	resp, err := c.postJSON(ctx, "/upload-and-broadcast", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("upload", resp)
	}
	return nil
}

// DecryptFile asks the relay to open a broadcast it delivered earlier.
func (c *RelayClient) DecryptFile(ctx context.Context, msg *models.BroadcastMessage) ([]byte, error) {
	resp, err := c.postJSON(ctx, "/decrypt-file", msg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus("decrypt", resp)
	}
	return io.ReadAll(resp.Body)
}

// GetKey fetches the shared key from a relay running in demo mode.
func (c *RelayClient) GetKey(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/get_key", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus("get key", resp)
	}
	var kr struct {
		KeyBase64 string `json:"key_base64"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return nil, fmt.Errorf("parse key response: %w", err)
	}
	return base64.StdEncoding.DecodeString(kr.KeyBase64)
}

func (c *RelayClient) postJSON(ctx context.Context, path string, v any) (*http.Response, error) {
	bodyJSON, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func unexpectedStatus(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: HTTP %d: %.120s", op, resp.StatusCode, bytes.TrimSpace(body))
}

// ── Participant channel ────────────────────────────────────────────────────────

// Listen keeps a participant channel open until ctx is done. Every retry,
// after a failed dial or a closed channel, waits out the next backoff; the
// backoff restarts only once the relay has acknowledged a connection.
func (c *RelayClient) Listen(ctx context.Context, h Handlers) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = reconnectMax
	wsURL := "ws" + strings.TrimPrefix(c.serverURL, "http") + "/ws"

	for {
		conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("relay unreachable", "url", wsURL, "err", err)
		} else {
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			acked, err := c.readLoop(conn, h)
			stop()
			_ = conn.Close()

			c.mu.Lock()
			c.conn, c.connID = nil, ""
			c.mu.Unlock()

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if acked {
				bo.Reset()
			}
			c.logger.Warn("relay channel closed", "err", err)
		}

		wait := bo.NextBackOff()
		notify(h, false, fmt.Sprintf("Connection lost, reconnecting in %v", wait.Round(time.Millisecond)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// readLoop dispatches frames until the channel fails. acked reports whether
// the relay sent its connected frame.
func (c *RelayClient) readLoop(conn *websocket.Conn, h Handlers) (acked bool, err error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return acked, err
		}

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("skipping malformed frame", "err", err)
			continue
		}

		switch frame.Event {
		case models.EventConnected:
			var hello struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(frame.Data, &hello)
			c.mu.Lock()
			c.conn, c.connID = conn, hello.ID
			c.mu.Unlock()
			acked = true
			notify(h, true, "Connected to relay at "+c.serverURL)

		case models.EventEncryptedBroadcast:
			var msg models.BroadcastMessage
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				c.logger.Debug("skipping malformed broadcast", "err", err)
				continue
			}
			if h.OnBroadcast != nil {
				h.OnBroadcast(&msg)
			}

		case models.EventStreamChunk:
			if h.OnChunk != nil {
				h.OnChunk(frame.Data)
			}
		}
	}
}

// SendChunk streams one chunk to every other participant.
func (c *RelayClient) SendChunk(chunk models.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	frame, err := models.EncodeFrame(models.EventStreamChunk, data)
	if err != nil {
		return err
	}

	// Holding mu also serialises writers, as gorilla/websocket requires.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func notify(h Handlers, connected bool, msg string) {
	if h.OnStatus != nil {
		h.OnStatus(connected, msg)
	}
}

// CheckServerConnectivity probes GET /health with a short timeout.
func CheckServerConnectivity(serverURL string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/health")
	if err != nil {
		return fmt.Errorf("relay server not available at %s: %w", serverURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("relay server returned HTTP %d", resp.StatusCode)
	}
	return nil
}
