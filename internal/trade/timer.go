package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically cancels trades whose payment window has passed.
type Timer struct {
	service  *Service
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
	lastRun  atomic.Int64
}

// NewTimer creates a new trade expiry timer.
func NewTimer(service *Service, store Store, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Timer{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// LastRun returns when the last sweep finished, or the zero time.
func (t *Timer) LastRun() time.Time {
	ns := t.lastRun.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Start begins the expiry loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeCancelExpired(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeCancelExpired(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in trade expiry timer", "panic", fmt.Sprint(r))
		}
	}()
	t.CancelExpired(ctx)
}

// CancelExpired runs one sweep and returns how many trades it cancelled.
func (t *Timer) CancelExpired(ctx context.Context) int {
	defer t.lastRun.Store(time.Now().UnixNano())

	expired, err := t.store.ListExpiredTrades(ctx, t.service.now(), 100)
	if err != nil {
		t.logger.Warn("failed to list expired trades", "error", err)
		return 0
	}

	cancelled := 0
	for _, tr := range expired {
		if _, err := t.service.Cancel(ctx, tr.ID, System()); err != nil {
			// The buyer may have paid or disputed since the listing.
			if errors.Is(err, ErrInvalidStateTransition) {
				t.logger.Debug("skipping expired trade, status moved on", "tradeId", tr.ID)
				continue
			}
			t.logger.Warn("failed to auto-cancel trade",
				"tradeId", tr.ID,
				"error", err,
			)
			continue
		}
		cancelled++
		TradesExpiredTotal.Inc()
		t.logger.Info("auto-cancelled expired trade",
			"tradeId", tr.ID,
			"buyer", tr.BuyerID,
			"seller", tr.SellerID,
			"amount", tr.Amount.String(),
		)
	}
	return cancelled
}
