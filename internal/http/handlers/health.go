package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is any dependency the service cannot answer requests without.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	deps []Pinger
}

// create a new instance of the health handler
func NewHealthHandler(deps ...Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 1*time.Second)
	defer cancel()

	for _, d := range h.deps {
		if err := d.Ping(cctx); err != nil {
			RespondUnavailable(ctx, "dependency not ready")
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
