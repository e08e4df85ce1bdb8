package trade

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/offer"
)

var (
	// TradesCreatedTotal counts successfully opened trades.
	TradesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "p2pescrow",
			Name:      "trades_created_total",
			Help:      "Total trades opened.",
		},
	)

	// TradeTransitionsTotal counts committed status changes.
	TradeTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "p2pescrow",
			Name:      "trade_transitions_total",
			Help:      "Committed trade status transitions.",
		},
		[]string{"from", "to"},
	)

	// TradeRejectionsTotal counts failed trade operations by reason.
	TradeRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "p2pescrow",
			Name:      "trade_rejections_total",
			Help:      "Trade operations rejected, by operation and reason.",
		},
		[]string{"op", "reason"},
	)

	// TradeOpDuration observes trade operation latency.
	TradeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "p2pescrow",
			Name:      "trade_operation_duration_seconds",
			Help:      "Trade operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	// TradesExpiredTotal counts trades cancelled by the expiry timer.
	TradesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "p2pescrow",
			Name:      "trades_expired_total",
			Help:      "Trades auto-cancelled after the payment window.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TradesCreatedTotal,
		TradeTransitionsTotal,
		TradeRejectionsTotal,
		TradeOpDuration,
		TradesExpiredTotal,
	)
}

func observeOp(op string) func() {
	start := time.Now()
	return func() {
		TradeOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func observeRejection(op string, err error) {
	TradeRejectionsTotal.WithLabelValues(op, rejectionReason(err)).Inc()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTradeNotFound), errors.Is(err, offer.ErrOfferNotFound):
		return "not_found"
	case errors.Is(err, ErrAmountOutOfRange), errors.Is(err, ErrSelfTrade),
		errors.Is(err, offer.ErrOfferInactive), errors.Is(err, offer.ErrInsufficientOfferLiquidity):
		return "offer_terms"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInvalidLockState):
		return "invalid_lock_state"
	case errors.Is(err, ledger.ErrUnavailable):
		return "unavailable"
	}
	return "other"
}
