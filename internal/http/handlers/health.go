package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/trustgate/internal/cache"
	httperrors "github.com/dropDatabas3/trustgate/internal/http/errors"
)

// Health responde los health checks del servicio.
type Health struct {
	cache cache.Client
}

func NewHealth(c cache.Client) *Health {
	return &Health{cache: c}
}

// Healthz maneja GET /healthz: liveness más un ping al cache. Cache caído
// reporta degraded pero mantiene 200: el servicio sigue pudiendo rechazar
// requests de forma controlada.
func (h *Health) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "ok"
	components := map[string]string{}

	if h.cache != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.cache.Ping(pingCtx); err != nil {
			status = "degraded"
			components["cache"] = "unavailable"
		} else {
			components["cache"] = "ok"
		}
	}

	httperrors.WriteJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
	})
}
