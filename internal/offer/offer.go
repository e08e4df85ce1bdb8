// Package offer holds the maker-side inventory that trades draw from.
//
// An offer advertises an asset at a fixed fiat price with per-trade limits.
// Its Available amount shrinks when a trade reserves liquidity and grows back
// when a cancelled trade restores it.
package offer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/p2pescrow/internal/amount"
	"github.com/mbd888/p2pescrow/internal/idgen"
)

var (
	ErrOfferNotFound              = errors.New("offer not found")
	ErrOfferInactive              = errors.New("offer is not active")
	ErrInsufficientOfferLiquidity = errors.New("offer has insufficient available amount")
	ErrInvalidOffer               = errors.New("invalid offer")
	ErrNotMaker                   = errors.New("only the maker can modify this offer")
	ErrConcurrentUpdate           = errors.New("offer was modified concurrently")
)

// Side is the maker's side of the trade.
type Side string

const (
	SideBuy  Side = "BUY"  // maker buys the asset, taker sells
	SideSell Side = "SELL" // maker sells the asset, taker buys
)

// Offer is a maker's standing order.
type Offer struct {
	ID           string          `json:"id"`
	MakerID      string          `json:"makerId"`
	Side         Side            `json:"side"`
	Asset        string          `json:"asset"`
	Network      string          `json:"network"`
	FiatCurrency string          `json:"fiatCurrency"`
	Price        decimal.Decimal `json:"price"`
	Available    decimal.Decimal `json:"available"`
	MinLimit     decimal.Decimal `json:"minLimit"`
	MaxLimit     decimal.Decimal `json:"maxLimit"`
	Active       bool            `json:"active"`
	Version      int64           `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// TradeCeiling is the largest amount a single trade may take right now.
func (o *Offer) TradeCeiling() decimal.Decimal {
	return decimal.Min(o.MaxLimit, o.Available)
}

// Tx is the offer half of a store transaction.
type Tx interface {
	// GetOfferForUpdate returns ErrOfferNotFound for unknown IDs. The offer
	// stays locked until the transaction ends.
	GetOfferForUpdate(ctx context.Context, id string) (*Offer, error)
	UpdateOffer(ctx context.Context, o *Offer) error
}

// Store persists offers.
type Store interface {
	CreateOffer(ctx context.Context, o *Offer) error
	GetOffer(ctx context.Context, id string) (*Offer, error)
	ListOffersByMaker(ctx context.Context, makerID string) ([]*Offer, error)
	WithOfferTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reserve takes amt out of the offer's available inventory.
func Reserve(ctx context.Context, tx Tx, offerID string, amt decimal.Decimal) (*Offer, error) {
	o, err := tx.GetOfferForUpdate(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !o.Active {
		return nil, ErrOfferInactive
	}
	if o.Available.LessThan(amt) {
		return nil, fmt.Errorf("%w: %s available, %s requested", ErrInsufficientOfferLiquidity, o.Available, amt)
	}
	o.Available = o.Available.Sub(amt)
	o.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateOffer(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Restore returns amt to the offer. A missing or deactivated offer is left
// alone and no error is reported: the trade being unwound must still settle.
func Restore(ctx context.Context, tx Tx, offerID string, amt decimal.Decimal) error {
	o, err := tx.GetOfferForUpdate(ctx, offerID)
	if errors.Is(err, ErrOfferNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !o.Active {
		return nil
	}
	o.Available = o.Available.Add(amt)
	o.UpdatedAt = time.Now().UTC()
	return tx.UpdateOffer(ctx, o)
}

// CreateRequest contains the parameters for publishing an offer.
type CreateRequest struct {
	MakerID      string `json:"-"`
	Side         Side   `json:"side" binding:"required"`
	Asset        string `json:"asset" binding:"required"`
	Network      string `json:"network"`
	FiatCurrency string `json:"fiatCurrency" binding:"required"`
	Price        string `json:"price" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	MinLimit     string `json:"minLimit" binding:"required"`
	MaxLimit     string `json:"maxLimit" binding:"required"`
}

// Service manages offers outside of trade settlement.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new offer service.
func NewService(store Store) *Service {
	return &Service{store: store, logger: slog.Default()}
}

// WithLogger sets a structured logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// Create validates and publishes a new active offer.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Offer, error) {
	side := Side(strings.ToUpper(strings.TrimSpace(string(req.Side))))
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOffer)
	}
	if req.MakerID == "" {
		return nil, fmt.Errorf("%w: maker is required", ErrInvalidOffer)
	}

	price, err := amount.ParsePositive(req.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: price: %v", ErrInvalidOffer, err)
	}
	total, err := amount.ParsePositive(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrInvalidOffer, err)
	}
	minLimit, err := amount.ParsePositive(req.MinLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: minLimit: %v", ErrInvalidOffer, err)
	}
	maxLimit, err := amount.ParsePositive(req.MaxLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: maxLimit: %v", ErrInvalidOffer, err)
	}
	if minLimit.GreaterThan(maxLimit) {
		return nil, fmt.Errorf("%w: minLimit exceeds maxLimit", ErrInvalidOffer)
	}
	if minLimit.GreaterThan(total) {
		return nil, fmt.Errorf("%w: minLimit exceeds amount", ErrInvalidOffer)
	}

	now := time.Now().UTC()
	o := &Offer{
		ID:           idgen.WithPrefix("ofr_"),
		MakerID:      req.MakerID,
		Side:         side,
		Asset:        strings.ToUpper(strings.TrimSpace(req.Asset)),
		Network:      strings.ToUpper(strings.TrimSpace(req.Network)),
		FiatCurrency: strings.ToUpper(strings.TrimSpace(req.FiatCurrency)),
		Price:        price,
		Available:    total,
		MinLimit:     minLimit,
		MaxLimit:     maxLimit,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateOffer(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	s.logger.Info("offer created",
		"offerId", o.ID, "maker", o.MakerID, "side", o.Side,
		"asset", o.Asset, "available", o.Available.String(), "price", o.Price.String())
	return o, nil
}

// Get returns an offer by ID.
func (s *Service) Get(ctx context.Context, id string) (*Offer, error) {
	return s.store.GetOffer(ctx, id)
}

// ListByMaker returns a maker's offers, newest first.
func (s *Service) ListByMaker(ctx context.Context, makerID string) ([]*Offer, error) {
	return s.store.ListOffersByMaker(ctx, makerID)
}

// Deactivate stops new trades against the offer. Open trades are unaffected,
// but their cancellation no longer restores liquidity.
func (s *Service) Deactivate(ctx context.Context, id, callerID string) (*Offer, error) {
	var result *Offer
	err := s.store.WithOfferTx(ctx, func(tx Tx) error {
		o, err := tx.GetOfferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.MakerID != callerID {
			return ErrNotMaker
		}
		if !o.Active {
			result = o
			return nil
		}
		o.Active = false
		o.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOffer(ctx, o); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("offer deactivated", "offerId", id, "maker", callerID)
	return result, nil
}
