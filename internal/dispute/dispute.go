// Package dispute turns an admin verdict on a disputed trade into a
// settlement. Verdicts are opaque input; the resolver only validates and
// dispatches them to the trade state machine.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mbd888/p2pescrow/internal/traces"
	"github.com/mbd888/p2pescrow/internal/trade"
)

var (
	ErrInvalidVerdict = errors.New("verdict must be buyer-wins or seller-wins")
	ErrNotDisputed    = errors.New("trade is not disputed")
)

// Verdict is the outcome requested by an admin.
type Verdict string

const (
	VerdictBuyerWins  Verdict = "buyer-wins"
	VerdictSellerWins Verdict = "seller-wins"
)

// ParseVerdict maps a verdict string to the winning side.
func ParseVerdict(s string) (trade.Winner, error) {
	switch Verdict(strings.ToLower(strings.TrimSpace(s))) {
	case VerdictBuyerWins:
		return trade.WinnerBuyer, nil
	case VerdictSellerWins:
		return trade.WinnerSeller, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, s)
	}
}

// recommendationDiffers reports whether an advisory recommendation names a
// different winner than the verdict. An unrecognized recommendation always
// differs; an invalid verdict is rejected by Resolve, not here.
func recommendationDiffers(verdict, recommendation string) bool {
	if strings.TrimSpace(recommendation) == "" {
		return false
	}
	v, err := ParseVerdict(verdict)
	if err != nil {
		return false
	}
	r, err := ParseVerdict(recommendation)
	return err != nil || r != v
}

// Resolver settles disputed trades.
type Resolver struct {
	trades *trade.Service
	logger *slog.Logger
}

// NewResolver creates a resolver on top of the trade service.
func NewResolver(trades *trade.Service) *Resolver {
	return &Resolver{trades: trades, logger: slog.Default()}
}

// WithLogger sets the logger.
func (r *Resolver) WithLogger(l *slog.Logger) *Resolver {
	r.logger = l
	return r
}

// Resolve applies verdict to a DISPUTED trade. The caller must be an admin
// or the system actor; trade.Service enforces that and performs the ledger
// movement atomically with the status change.
func (r *Resolver) Resolve(ctx context.Context, tradeID, verdict, note string, by trade.Actor) (*trade.Trade, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Resolve",
		traces.TradeID(tradeID), traces.Actor(string(by.Role), by.ID))
	defer span.End()

	winner, err := ParseVerdict(verdict)
	if err != nil {
		ResolutionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	t, err := r.trades.Get(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.Status != trade.StatusDisputed {
		ResolutionsTotal.WithLabelValues("not_disputed").Inc()
		return nil, fmt.Errorf("%w: %w (status %s)", trade.ErrInvalidStateTransition, ErrNotDisputed, t.Status)
	}

	// The status is re-checked under the trade row lock inside
	// ResolveDispute, so a concurrent resolution still settles once.
	t, err = r.trades.ResolveDispute(ctx, tradeID, winner, note, by)
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}

	ResolutionsTotal.WithLabelValues(string(winner)).Inc()
	r.logger.Info("dispute resolved",
		"tradeId", t.ID, "winner", winner, "by", by.String(), "amount", t.Amount.String())
	return t, nil
}
