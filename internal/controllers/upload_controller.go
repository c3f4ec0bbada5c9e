package controllers

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"secure-relay-backend/internal/services"
	"secure-relay-backend/internal/utils"
)

// UploadController accepts plaintext files and broadcasts them encrypted.
type UploadController struct {
	broadcast    *services.BroadcastService
	limiter      *services.ClientLimiter
	maxBodyBytes int64
	logger       *slog.Logger
}

type UploadRequest struct {
	Filename string `json:"filename"`
	Filetype string `json:"filetype"`
	Filedata string `json:"filedata"` // base64
}

type UploadResponse struct {
	Status string `json:"status"`
}

func NewUploadController(broadcast *services.BroadcastService, limiter *services.ClientLimiter, maxBodyBytes int64, logger *slog.Logger) *UploadController {
	return &UploadController{
		broadcast:    broadcast,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

func (c *UploadController) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !c.limiter.Allow(utils.ClientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "too many requests"})
		return
	}

	var req UploadRequest
	if status, err := decodeBody(w, r, c.maxBodyBytes, &req); err != nil {
		c.logger.Debug("upload body rejected", "err", err)
		writeJSON(w, status, errorResponse{Message: "invalid request body"})
		return
	}

	if req.Filedata == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "no filedata"})
		return
	}

	plaintext, err := base64.StdEncoding.DecodeString(req.Filedata)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "filedata is not valid base64"})
		return
	}

	if err := c.broadcast.Broadcast(req.Filename, req.Filetype, plaintext); err != nil {
		c.logger.Error("upload error", "file", req.Filename, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "server error"})
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{Status: "ok"})
}
