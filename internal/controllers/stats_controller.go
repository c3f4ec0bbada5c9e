package controllers

import (
	"net/http"

	"secure-relay-backend/internal/services"
)

type StatsController struct {
	registry *services.ConnectionRegistry
	limiter  *services.ClientLimiter
	cipher   string
}

func NewStatsController(registry *services.ConnectionRegistry, limiter *services.ClientLimiter, cipher string) *StatsController {
	return &StatsController{
		registry: registry,
		limiter:  limiter,
		cipher:   cipher,
	}
}

func (c *StatsController) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"relay_stats":    c.registry.GetStats(),
		"active_clients": c.limiter.GetClientCount(),
		"cipher":         c.cipher,
		"status":         "running",
	})
}
