package dispute

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/p2pescrow/internal/auth"
	"github.com/mbd888/p2pescrow/internal/trade"
	"github.com/mbd888/p2pescrow/internal/validation"
)

// Handler provides admin endpoints for disputes
type Handler struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewHandler creates a new dispute handler
func NewHandler(resolver *Resolver, logger *slog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// RegisterAdminRoutes sets up dispute routes. The group must already
// require an admin caller.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/disputes/:id/resolve", h.ResolveDispute)
}

// ResolveRequest carries an admin verdict. Recommendation is advisory
// output from an external analysis step and is only logged.
type ResolveRequest struct {
	Verdict        string `json:"verdict" binding:"required"`
	Note           string `json:"note"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ResolveDispute handles POST /admin/disputes/:id/resolve
func (h *Handler) ResolveDispute(c *gin.Context) {
	id := c.Param("id")

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "verdict is required (buyer-wins or seller-wins)",
		})
		return
	}

	if errs := validation.Validate(
		validation.MaxLength("note", req.Note, validation.MaxReasonLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": errs.Error()})
		return
	}

	adminID := auth.UserID(c)
	if adminID == "" {
		adminID = "admin"
	}
	if recommendationDiffers(req.Verdict, req.Recommendation) {
		h.logger.Warn("verdict differs from recommendation",
			"tradeId", id, "verdict", req.Verdict, "recommendation", req.Recommendation, "admin", adminID)
	}

	t, err := h.resolver.Resolve(c.Request.Context(), id, req.Verdict, req.Note, trade.Admin(adminID))
	if err != nil {
		if errors.Is(err, ErrInvalidVerdict) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_verdict", "message": err.Error()})
			return
		}
		trade.WriteError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trade": t})
}
