package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/p2pescrow/internal/auth"
)

// Handler provides HTTP endpoints for wallet operations
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up caller-scoped wallet routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets", h.ListWallets)
	r.GET("/wallets/history", h.GetHistory)
	r.GET("/wallets/:asset", h.GetWallet)
	r.POST("/wallets/transfer", h.Transfer)
	r.POST("/wallets/withdraw", h.Withdraw)
}

// RegisterAdminRoutes sets up admin-only ledger routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/deposits", h.RecordDeposit)
}

// ListWallets handles GET /wallets
func (h *Handler) ListWallets(c *gin.Context) {
	wallets, err := h.ledger.ListWallets(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

// GetWallet handles GET /wallets/:asset?network=&account=
func (h *Handler) GetWallet(c *gin.Context) {
	account := AccountSpot
	if raw := c.Query("account"); raw != "" {
		parsed, err := ParseAccountType(raw)
		if err != nil {
			h.writeError(c, err)
			return
		}
		account = parsed
	}

	key := NewWalletKey(auth.UserID(c), c.Param("asset"), c.Query("network"), account)
	w, err := h.ledger.GetWallet(c.Request.Context(), key)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

// GetHistory handles GET /wallets/history?limit=
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and 500",
			})
			return
		}
		limit = n
	}

	entries, err := h.ledger.GetHistory(c.Request.Context(), auth.UserID(c), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Transfer handles POST /wallets/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.UserID = auth.UserID(c)

	res, err := h.ledger.Transfer(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Withdraw handles POST /wallets/withdraw. The on-chain payout happens
// downstream; this only debits the ledger.
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	req.UserID = auth.UserID(c)

	w, err := h.ledger.Withdraw(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "debited", "wallet": w})
}

// RecordDeposit handles POST /admin/deposits
func (h *Handler) RecordDeposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	w, err := h.ledger.Deposit(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "credited", "wallet": w})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidAccountType),
		errors.Is(err, ErrMissingReference), errors.Is(err, ErrSameAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, ErrInsufficientFunds):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_funds", "message": err.Error()})
	case errors.Is(err, ErrDuplicateDeposit):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_deposit", "message": "Deposit already processed"})
	case errors.Is(err, ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, ErrUnavailable):
		h.logger.Error("ledger storage unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": "Ledger temporarily unavailable"})
	default:
		h.logger.Error("ledger request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal error"})
	}
}
