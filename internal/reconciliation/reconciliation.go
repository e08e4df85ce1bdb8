// Package reconciliation cross-checks wallet balances against trades and
// the ledger journal.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/traces"
)

// Store is the read side needed by the checks.
type Store interface {
	// EscrowSnapshot must read both halves at one instant, otherwise a
	// trade committing between them shows up as a mismatch.
	EscrowSnapshot(ctx context.Context) (*ledger.EscrowSnapshot, error)
	AssetTotals(ctx context.Context) ([]*ledger.AssetTotal, error)
}

// EscrowMismatch is a wallet whose locked balance differs from the sum of
// its open trades.
type EscrowMismatch struct {
	Wallet     ledger.WalletKey `json:"wallet"`
	Locked     decimal.Decimal  `json:"locked"`
	OpenTrades decimal.Decimal  `json:"openTrades"`
}

// JournalMismatch is an asset whose wallet totals differ from the sum of
// its journal deltas.
type JournalMismatch struct {
	Asset    string          `json:"asset"`
	Network  string          `json:"network"`
	Balances decimal.Decimal `json:"balances"`
	Journal  decimal.Decimal `json:"journal"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	RanAt             time.Time         `json:"ranAt"`
	DurationMs        int64             `json:"durationMs"`
	WalletsChecked    int               `json:"walletsChecked"`
	AssetsChecked     int               `json:"assetsChecked"`
	EscrowMismatches  []EscrowMismatch  `json:"escrowMismatches"`
	JournalMismatches []JournalMismatch `json:"journalMismatches"`
}

// Healthy reports whether the run found no mismatches.
func (r *Report) Healthy() bool {
	return len(r.EscrowMismatches) == 0 && len(r.JournalMismatches) == 0
}

// Runner executes the reconciliation checks.
type Runner struct {
	store  Store
	logger *slog.Logger
	last   atomic.Pointer[Report]
}

// NewRunner creates a reconciliation runner.
func NewRunner(store Store, logger *slog.Logger) *Runner {
	return &Runner{store: store, logger: logger}
}

// LastReport returns the most recent report, or nil before the first run.
func (r *Runner) LastReport() *Report {
	return r.last.Load()
}

// RunAll runs the escrow and journal checks and records the result.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	ctx, span := traces.StartSpan(ctx, "reconciliation.RunAll")
	defer span.End()

	start := time.Now()
	report := &Report{
		RanAt:             start.UTC(),
		EscrowMismatches:  []EscrowMismatch{},
		JournalMismatches: []JournalMismatch{},
	}

	if err := r.checkEscrow(ctx, report); err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("escrow check: %w", err)
	}
	if err := r.checkJournal(ctx, report); err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("journal check: %w", err)
	}

	elapsed := time.Since(start)
	report.DurationMs = elapsed.Milliseconds()
	reconcileDuration.Observe(elapsed.Seconds())
	reconcileEscrowMismatches.Set(float64(len(report.EscrowMismatches)))
	reconcileJournalMismatches.Set(float64(len(report.JournalMismatches)))
	reconcileLastRun.SetToCurrentTime()
	r.last.Store(report)

	if !report.Healthy() {
		r.logger.Error("reconciliation mismatch",
			"escrowMismatches", len(report.EscrowMismatches),
			"journalMismatches", len(report.JournalMismatches))
	} else {
		r.logger.Debug("reconciliation clean",
			"wallets", report.WalletsChecked, "assets", report.AssetsChecked)
	}
	return report, nil
}

// checkEscrow compares every wallet's locked balance with the open trades
// that lock against it. Keys present on only one side are mismatches too.
func (r *Runner) checkEscrow(ctx context.Context, report *Report) error {
	snap, err := r.store.EscrowSnapshot(ctx)
	if err != nil {
		return err
	}
	wallets, open := snap.Locked, snap.Open

	seen := make(map[ledger.WalletKey]bool, len(wallets))
	for _, w := range wallets {
		key := w.Key()
		seen[key] = true
		want := open[key]
		if !w.Locked.Equal(want) {
			report.EscrowMismatches = append(report.EscrowMismatches, EscrowMismatch{
				Wallet: key, Locked: w.Locked, OpenTrades: want,
			})
		}
	}
	for key, sum := range open {
		if seen[key] || sum.IsZero() {
			continue
		}
		report.EscrowMismatches = append(report.EscrowMismatches, EscrowMismatch{
			Wallet: key, Locked: decimal.Zero, OpenTrades: sum,
		})
	}
	sort.Slice(report.EscrowMismatches, func(i, j int) bool {
		return report.EscrowMismatches[i].Wallet.String() < report.EscrowMismatches[j].Wallet.String()
	})
	report.WalletsChecked = len(wallets)
	return nil
}

func (r *Runner) checkJournal(ctx context.Context, report *Report) error {
	totals, err := r.store.AssetTotals(ctx)
	if err != nil {
		return err
	}
	for _, t := range totals {
		if !t.Balances.Equal(t.Journal) {
			report.JournalMismatches = append(report.JournalMismatches, JournalMismatch{
				Asset: t.Asset, Network: t.Network, Balances: t.Balances, Journal: t.Journal,
			})
		}
	}
	report.AssetsChecked = len(totals)
	return nil
}
