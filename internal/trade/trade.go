// Package trade runs the P2P trade lifecycle.
//
// Flow:
//  1. Taker opens a trade on an offer → seller funds: available → locked
//  2. Buyer sends fiat off-platform and marks the trade paid
//  3. Seller (or admin) releases → seller locked → buyer available
//  4. Buyer, admin or the expiry timer cancels an unpaid trade → locked → available
//  5. Either party disputes; an admin verdict settles it through 3 or 4
//
// Every transition loads the trade with a row lock, checks the move with
// Next, moves funds and saves the new status in one store transaction.
package trade

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
	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/offer"
	"github.com/mbd888/p2pescrow/internal/traces"
)

var (
	ErrTradeNotFound          = errors.New("trade not found")
	ErrInvalidStateTransition = errors.New("invalid trade state transition")
	ErrAmountOutOfRange       = errors.New("amount outside offer limits")
	ErrSelfTrade              = errors.New("cannot trade against your own offer")
	ErrForbidden              = errors.New("not authorized for this trade operation")
	ErrReasonRequired         = errors.New("dispute reason is required")
	ErrInvalidWinner          = errors.New("winner must be buyer or seller")
	ErrConcurrentUpdate       = errors.New("trade was modified concurrently")
)

// DefaultPaymentWindow is how long the buyer has to pay before the trade
// becomes eligible for auto-cancel.
const DefaultPaymentWindow = 15 * time.Minute

// Role is the capacity in which an actor calls the service.
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Actor identifies who requested a transition.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// User returns an actor for a regular user.
func User(id string) Actor { return Actor{ID: id, Role: RoleUser} }

// Admin returns an actor for an operator.
func Admin(id string) Actor { return Actor{ID: id, Role: RoleAdmin} }

// System returns the actor used by background jobs.
func System() Actor { return Actor{ID: "system", Role: RoleSystem} }

func (a Actor) String() string { return string(a.Role) + ":" + a.ID }

// Winner is the side a dispute verdict favors.
type Winner string

const (
	WinnerBuyer  Winner = "buyer"
	WinnerSeller Winner = "seller"
)

// Dispute is embedded in the trade it belongs to.
type Dispute struct {
	Reason     string     `json:"reason"`
	OpenedBy   string     `json:"openedBy"`
	OpenedAt   time.Time  `json:"openedAt"`
	Winner     Winner     `json:"winner,omitempty"`
	Note       string     `json:"note,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Trade is one exchange of Amount of Asset for FiatAmount of FiatCurrency.
type Trade struct {
	ID           string             `json:"id"`
	OfferID      string             `json:"offerId"`
	BuyerID      string             `json:"buyerId"`
	SellerID     string             `json:"sellerId"`
	Asset        string             `json:"asset"`
	Network      string             `json:"network"`
	AccountType  ledger.AccountType `json:"accountType"`
	FiatCurrency string             `json:"fiatCurrency"`
	Amount       decimal.Decimal    `json:"amount"`
	FiatAmount   decimal.Decimal    `json:"fiatAmount"`
	Price        decimal.Decimal    `json:"price"`
	Status       Status             `json:"status"`
	ExpiresAt    time.Time          `json:"expiresAt"`
	CreatedAt    time.Time          `json:"createdAt"`
	PaidAt       *time.Time         `json:"paidAt,omitempty"`
	ReleasedAt   *time.Time         `json:"releasedAt,omitempty"`
	CancelledAt  *time.Time         `json:"cancelledAt,omitempty"`
	Dispute      *Dispute           `json:"dispute,omitempty"`
	Version      int64              `json:"-"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// SellerWallet is the wallet holding this trade's escrow.
func (t *Trade) SellerWallet() ledger.WalletKey {
	return ledger.WalletKey{UserID: t.SellerID, Asset: t.Asset, Network: t.Network, Account: t.AccountType}
}

// BuyerWallet is the wallet credited on release.
func (t *Trade) BuyerWallet() ledger.WalletKey {
	return ledger.WalletKey{UserID: t.BuyerID, Asset: t.Asset, Network: t.Network, Account: t.AccountType}
}

// IsParty reports whether userID is the buyer or the seller.
func (t *Trade) IsParty(userID string) bool {
	return userID != "" && (userID == t.BuyerID || userID == t.SellerID)
}

// Tx is a store transaction spanning trades, offers and wallets.
type Tx interface {
	ledger.Tx
	offer.Tx
	GetTradeForUpdate(ctx context.Context, id string) (*Trade, error)
	InsertTrade(ctx context.Context, t *Trade) error
	UpdateTrade(ctx context.Context, t *Trade) error
}

// Store persists trades.
type Store interface {
	WithTradeTx(ctx context.Context, fn func(tx Tx) error) error
	GetTrade(ctx context.Context, id string) (*Trade, error)
	ListTradesByUser(ctx context.Context, userID string, limit int) ([]*Trade, error)
	// ListExpiredTrades returns WAITING_PAYMENT trades whose ExpiresAt is before the given time.
	ListExpiredTrades(ctx context.Context, before time.Time, limit int) ([]*Trade, error)
}

// CreateRequest contains the parameters for opening a trade.
type CreateRequest struct {
	OfferID string `json:"offerId" binding:"required"`
	TakerID string `json:"-"`
	Amount  string `json:"amount" binding:"required"`
}

// Service implements the trade state machine.
type Service struct {
	store         Store
	escrowAccount ledger.AccountType
	paymentWindow time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a new trade service.
func NewService(store Store) *Service {
	return &Service{
		store:         store,
		escrowAccount: ledger.AccountFunding,
		paymentWindow: DefaultPaymentWindow,
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets a structured logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithEscrowAccount sets the account type seller funds are locked in.
func (s *Service) WithEscrowAccount(a ledger.AccountType) *Service {
	s.escrowAccount = a
	return s
}

// WithPaymentWindow sets how long a new trade waits for payment.
func (s *Service) WithPaymentWindow(d time.Duration) *Service {
	s.paymentWindow = d
	return s
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create opens a trade against an offer and locks the seller's funds.
// A SELL offer's maker is the seller; on a BUY offer the taker sells.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Trade, error) {
	amt, err := amount.ParsePositive(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	if strings.TrimSpace(req.TakerID) == "" {
		return nil, ErrForbidden
	}

	ctx, span := traces.StartSpan(ctx, "trade.Create",
		traces.OfferID(req.OfferID), traces.UserID(req.TakerID), traces.Amount(amt.String()))
	defer span.End()
	defer observeOp("create")()

	var result *Trade
	err = s.store.WithTradeTx(ctx, func(tx Tx) error {
		o, err := tx.GetOfferForUpdate(ctx, req.OfferID)
		if err != nil {
			return err
		}
		if !o.Active {
			return offer.ErrOfferInactive
		}
		if o.MakerID == req.TakerID {
			return ErrSelfTrade
		}
		if amt.LessThan(o.MinLimit) || amt.GreaterThan(o.TradeCeiling()) {
			return fmt.Errorf("%w: %s not in [%s, %s]", ErrAmountOutOfRange, amt, o.MinLimit, o.TradeCeiling())
		}

		buyer, seller := req.TakerID, o.MakerID
		if o.Side == offer.SideBuy {
			buyer, seller = o.MakerID, req.TakerID
		}

		now := s.now()
		t := &Trade{
			ID:           idgen.WithPrefix("trd_"),
			OfferID:      o.ID,
			BuyerID:      buyer,
			SellerID:     seller,
			Asset:        o.Asset,
			Network:      o.Network,
			AccountType:  s.escrowAccount,
			FiatCurrency: o.FiatCurrency,
			Amount:       amt,
			FiatAmount:   amount.Fiat(amt, o.Price),
			Price:        o.Price,
			Status:       StatusWaitingPayment,
			ExpiresAt:    now.Add(s.paymentWindow),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if _, err := ledger.Lock(ctx, tx, t.SellerWallet(), amt, t.ID); err != nil {
			return err
		}
		if _, err := offer.Reserve(ctx, tx, o.ID, amt); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		traces.Fail(span, err)
		observeRejection("create", err)
		return nil, err
	}

	TradesCreatedTotal.Inc()
	s.logger.Info("trade created",
		"tradeId", result.ID, "offerId", result.OfferID,
		"buyer", result.BuyerID, "seller", result.SellerID, "amount", result.Amount.String())
	return result, nil
}

// Get returns a trade by ID.
func (s *Service) Get(ctx context.Context, id string) (*Trade, error) {
	return s.store.GetTrade(ctx, id)
}

// ListByUser returns trades where the user is buyer or seller, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListTradesByUser(ctx, userID, limit)
}

// MarkPaid records the buyer's payment claim.
func (s *Service) MarkPaid(ctx context.Context, id string, by Actor) (*Trade, error) {
	return s.transition(ctx, "mark_paid", id, by, EventPay,
		func(t *Trade) bool { return by.Role == RoleUser && by.ID == t.BuyerID },
		func(_ context.Context, _ Tx, t *Trade, now time.Time) error {
			t.PaidAt = &now
			return nil
		})
}

// Release sends the locked funds to the buyer.
func (s *Service) Release(ctx context.Context, id string, by Actor) (*Trade, error) {
	return s.transition(ctx, "release", id, by, EventRelease,
		func(t *Trade) bool { return by.Role == RoleAdmin || (by.Role == RoleUser && by.ID == t.SellerID) },
		s.settleToBuyer)
}

// Cancel returns the locked funds to the seller and the liquidity to the offer.
func (s *Service) Cancel(ctx context.Context, id string, by Actor) (*Trade, error) {
	return s.transition(ctx, "cancel", id, by, EventCancel,
		func(t *Trade) bool {
			return by.Role == RoleAdmin || by.Role == RoleSystem || (by.Role == RoleUser && by.ID == t.BuyerID)
		},
		func(ctx context.Context, tx Tx, t *Trade, now time.Time) error {
			if err := s.settleToSeller(ctx, tx, t, now); err != nil {
				return err
			}
			return offer.Restore(ctx, tx, t.OfferID, t.Amount)
		})
}

// OpenDispute freezes the trade until an admin verdict.
func (s *Service) OpenDispute(ctx context.Context, id string, by Actor, reason string) (*Trade, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, "dispute", id, by, EventDispute,
		func(t *Trade) bool { return by.Role == RoleUser && t.IsParty(by.ID) },
		func(_ context.Context, _ Tx, t *Trade, now time.Time) error {
			t.Dispute = &Dispute{Reason: reason, OpenedBy: by.ID, OpenedAt: now}
			return nil
		})
}

// ResolveDispute settles a disputed trade. A buyer win completes the trade;
// a seller win cancels it without restoring offer liquidity.
func (s *Service) ResolveDispute(ctx context.Context, id string, winner Winner, note string, by Actor) (*Trade, error) {
	var ev Event
	var settle func(context.Context, Tx, *Trade, time.Time) error
	switch winner {
	case WinnerBuyer:
		ev, settle = EventResolveBuyer, s.settleToBuyer
	case WinnerSeller:
		ev, settle = EventResolveSeller, s.settleToSeller
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidWinner, winner)
	}

	return s.transition(ctx, "resolve_dispute", id, by, ev,
		func(*Trade) bool { return by.Role == RoleAdmin || by.Role == RoleSystem },
		func(ctx context.Context, tx Tx, t *Trade, now time.Time) error {
			if err := settle(ctx, tx, t, now); err != nil {
				return err
			}
			if t.Dispute == nil {
				t.Dispute = &Dispute{}
			}
			t.Dispute.Winner = winner
			t.Dispute.Note = note
			t.Dispute.ResolvedBy = by.String()
			t.Dispute.ResolvedAt = &now
			return nil
		})
}

func (s *Service) settleToBuyer(ctx context.Context, tx Tx, t *Trade, now time.Time) error {
	if _, _, err := ledger.Release(ctx, tx, t.SellerWallet(), t.Amount, t.BuyerWallet(), t.ID); err != nil {
		return err
	}
	t.ReleasedAt = &now
	return nil
}

func (s *Service) settleToSeller(ctx context.Context, tx Tx, t *Trade, now time.Time) error {
	if _, err := ledger.Refund(ctx, tx, t.SellerWallet(), t.Amount, t.ID); err != nil {
		return err
	}
	t.CancelledAt = &now
	return nil
}

// transition is the single path for status changes after creation. The
// status check, the settlement and the status write share one transaction,
// so a duplicate request sees the new status and fails without moving funds.
func (s *Service) transition(
	ctx context.Context,
	op, id string,
	by Actor,
	ev Event,
	allowed func(*Trade) bool,
	apply func(context.Context, Tx, *Trade, time.Time) error,
) (*Trade, error) {
	ctx, span := traces.StartSpan(ctx, "trade."+op,
		traces.TradeID(id), traces.Actor(string(by.Role), by.ID))
	defer span.End()
	defer observeOp(op)()

	var (
		result *Trade
		from   Status
	)
	err := s.store.WithTradeTx(ctx, func(tx Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// Permission is checked before legality: a caller who may not act
		// on the trade gets ErrForbidden whatever its status.
		if !allowed(t) {
			return ErrForbidden
		}
		next, err := Next(t.Status, ev)
		if err != nil {
			return err
		}

		now := s.now()
		if err := apply(ctx, tx, t, now); err != nil {
			return err
		}
		from = t.Status
		t.Status = next
		t.UpdatedAt = now
		if err := tx.UpdateTrade(ctx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		traces.Fail(span, err)
		observeRejection(op, err)
		return nil, err
	}

	TradeTransitionsTotal.WithLabelValues(string(from), string(result.Status)).Inc()
	s.logger.Info("trade transition", "from", from, "to", result.Status,
		"tradeId", result.ID, "event", ev, "actor", by.String(),
		"buyer", result.BuyerID, "seller", result.SellerID, "amount", result.Amount.String())
	return result, nil
}
