package controllers

import (
	"log/slog"
	"net/http"
	"strconv"

	"secure-relay-backend/internal/models"
	"secure-relay-backend/internal/services"
	"secure-relay-backend/internal/utils"
)

const decryptFailed = "decrypt failed"

// DecryptController returns the plaintext of an envelope as a download.
type DecryptController struct {
	decrypt      *services.DecryptService
	limiter      *services.ClientLimiter
	maxBodyBytes int64
	logger       *slog.Logger
}

type DecryptRequest struct {
	Filename string `json:"filename"`
	Filetype string `json:"filetype"`
	models.WireEnvelope
}

func NewDecryptController(decrypt *services.DecryptService, limiter *services.ClientLimiter, maxBodyBytes int64, logger *slog.Logger) *DecryptController {
	return &DecryptController{
		decrypt:      decrypt,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

func (c *DecryptController) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !c.limiter.Allow(utils.ClientIP(r)) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	var req DecryptRequest
	if status, err := decodeBody(w, r, c.maxBodyBytes, &req); err != nil {
		c.logger.Debug("decrypt body rejected", "err", err)
		http.Error(w, "invalid request body", status)
		return
	}

	plaintext, err := c.decrypt.DecryptOnDemand(req.WireEnvelope)
	if err != nil {
		// The caller only learns that decryption failed, not why.
		c.logger.Warn("decrypt-file error", "file", req.Filename, "err", err)
		http.Error(w, decryptFailed, http.StatusInternalServerError)
		return
	}

	contentType := req.Filetype
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", utils.ContentDisposition(req.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(plaintext)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(plaintext)
}
