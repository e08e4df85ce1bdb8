package trade

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/p2pescrow/internal/auth"
	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/offer"
	"github.com/mbd888/p2pescrow/internal/validation"
)

// Handler provides HTTP endpoints for trades
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new trade handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up trade routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/trades", h.CreateTrade)
	r.GET("/trades", h.ListTrades)
	r.GET("/trades/:id", h.GetTrade)
	r.POST("/trades/:id/paid", h.MarkPaid)
	r.POST("/trades/:id/release", h.Release)
	r.POST("/trades/:id/cancel", h.Cancel)
	r.POST("/trades/:id/dispute", h.OpenDispute)
}

// actorFrom maps the gateway identity to an actor. A valid admin secret
// makes the caller an admin.
func actorFrom(c *gin.Context) Actor {
	id := auth.UserID(c)
	if auth.IsAdmin(c) {
		if id == "" {
			id = "admin"
		}
		return Admin(id)
	}
	return User(id)
}

// CreateTrade handles POST /trades
func (h *Handler) CreateTrade(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.TakerID = auth.UserID(c)

	t, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trade": t})
}

// GetTrade handles GET /trades/:id
func (h *Handler) GetTrade(c *gin.Context) {
	t, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !auth.IsAdmin(c) && !t.IsParty(auth.UserID(c)) {
		h.writeError(c, ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": t})
}

// ListTrades handles GET /trades?limit=
func (h *Handler) ListTrades(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and 200",
			})
			return
		}
		limit = n
	}

	trades, err := h.service.ListByUser(c.Request.Context(), auth.UserID(c), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// MarkPaid handles POST /trades/:id/paid
func (h *Handler) MarkPaid(c *gin.Context) {
	t, err := h.service.MarkPaid(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": t})
}

// Release handles POST /trades/:id/release
func (h *Handler) Release(c *gin.Context) {
	t, err := h.service.Release(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": t})
}

// Cancel handles POST /trades/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	t, err := h.service.Cancel(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": t})
}

// DisputeRequest contains the parameters for disputing a trade.
type DisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// OpenDispute handles POST /trades/:id/dispute
func (h *Handler) OpenDispute(c *gin.Context) {
	var req DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}
	if errs := validation.Validate(
		validation.MaxLength("reason", req.Reason, validation.MaxReasonLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": errs.Error()})
		return
	}
	req.Reason = validation.SanitizeString(req.Reason, validation.MaxReasonLength)

	t, err := h.service.OpenDispute(c.Request.Context(), c.Param("id"), actorFrom(c), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": t})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	WriteError(c, h.logger, err)
}

// WriteError maps trade, offer and ledger errors to HTTP responses.
func WriteError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrTradeNotFound), errors.Is(err, offer.ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, ErrInvalidStateTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_funds", "message": err.Error()})
	case errors.Is(err, offer.ErrOfferInactive), errors.Is(err, offer.ErrInsufficientOfferLiquidity):
		c.JSON(http.StatusConflict, gin.H{"error": "offer_unavailable", "message": err.Error()})
	case errors.Is(err, ErrConcurrentUpdate), errors.Is(err, ledger.ErrConcurrentUpdate),
		errors.Is(err, offer.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, ErrAmountOutOfRange), errors.Is(err, ErrSelfTrade),
		errors.Is(err, ErrReasonRequired), errors.Is(err, ErrInvalidWinner),
		errors.Is(err, ledger.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, ledger.ErrUnavailable):
		logger.Error("trade storage unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": "Trading temporarily unavailable"})
	default:
		// ErrInvalidLockState lands here: it means escrow and ledger disagree.
		logger.Error("trade request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal error"})
	}
}
