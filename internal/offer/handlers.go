package offer

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/p2pescrow/internal/auth"
	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/validation"
)

// Handler provides HTTP endpoints for offers
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new offer handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up offer routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/offers", h.CreateOffer)
	r.GET("/offers", h.ListOffers)
	r.GET("/offers/:id", h.GetOffer)
	r.POST("/offers/:id/deactivate", h.DeactivateOffer)
}

// CreateOffer handles POST /offers
func (h *Handler) CreateOffer(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.ValidCode("asset", req.Asset),
		validation.ValidCode("network", req.Network),
		validation.ValidCurrency("fiatCurrency", req.FiatCurrency),
		validation.ValidAmount("price", req.Price),
		validation.ValidAmount("amount", req.Amount),
		validation.ValidAmount("minLimit", req.MinLimit),
		validation.ValidAmount("maxLimit", req.MaxLimit),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
		})
		return
	}
	req.MakerID = auth.UserID(c)

	o, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"offer": o})
}

// GetOffer handles GET /offers/:id
func (h *Handler) GetOffer(c *gin.Context) {
	o, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer": o})
}

// ListOffers handles GET /offers?maker=. Defaults to the caller's offers.
func (h *Handler) ListOffers(c *gin.Context) {
	maker := c.Query("maker")
	if maker == "" {
		maker = auth.UserID(c)
	}
	offers, err := h.service.ListByMaker(c.Request.Context(), maker)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers, "count": len(offers)})
}

// DeactivateOffer handles POST /offers/:id/deactivate
func (h *Handler) DeactivateOffer(c *gin.Context) {
	o, err := h.service.Deactivate(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offer": o})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrNotMaker):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, ErrInvalidOffer), errors.Is(err, ledger.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, ledger.ErrUnavailable):
		h.logger.Error("offer storage unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": "Offers temporarily unavailable"})
	default:
		h.logger.Error("offer request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal error"})
	}
}
