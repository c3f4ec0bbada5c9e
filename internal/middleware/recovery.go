package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
)

type RecoveryMiddleware struct {
	logger *slog.Logger
}

func NewRecoveryMiddleware(logger *slog.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger}
}

func (m *RecoveryMiddleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hw := &hijackWatcher{ResponseWriter: w}
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("panic in handler", "panic", err, "path", r.URL.Path, "stack", string(debug.Stack()))
				// A hijacked connection belongs to the handler; no HTTP reply is possible.
				if !hw.hijacked {
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}
		}()

		next(hw, r)
	}
}

// hijackWatcher remembers whether the handler took over the connection.
type hijackWatcher struct {
	http.ResponseWriter
	hijacked bool
}

func (hw *hijackWatcher) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := hw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		hw.hijacked = true
	}
	return conn, rw, err
}

func (hw *hijackWatcher) Flush() {
	if f, ok := hw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
