package controllers

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"secure-relay-backend/internal/keystore"
)

// KeyController exports the shared key so browser clients can decrypt
// locally. This defeats the point of server-side encryption and exists for
// demos only.
type KeyController struct {
	key    *keystore.Key
	logger *slog.Logger
}

type KeyResponse struct {
	KeyBase64 string `json:"key_base64"`
}

func NewKeyController(key *keystore.Key, logger *slog.Logger) *KeyController {
	return &KeyController{key: key, logger: logger}
}

func (c *KeyController) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c.logger.Warn("shared key exported", "remote", r.RemoteAddr)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, KeyResponse{
		KeyBase64: base64.StdEncoding.EncodeToString(c.key.Bytes()),
	})
}
