package reconciliation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/p2pescrow/internal/ledger"
)

// Handler exposes reconciliation to admins
type Handler struct {
	runner *Runner
	logger *slog.Logger
}

// NewHandler creates a new reconciliation handler
func NewHandler(runner *Runner, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, logger: logger}
}

// RegisterAdminRoutes sets up reconciliation routes. The group must
// already require an admin caller.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/reconcile", h.Reconcile)
}

// Reconcile handles GET /admin/reconcile. It runs the checks on demand.
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.runner.RunAll(c.Request.Context())
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": "Storage temporarily unavailable"})
			return
		}
		h.logger.Error("reconciliation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"healthy": report.Healthy(), "report": report})
}
