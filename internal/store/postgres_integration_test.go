//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/offer"
	"github.com/mbd888/p2pescrow/internal/store"
	"github.com/mbd888/p2pescrow/internal/testutil"
	"github.com/mbd888/p2pescrow/internal/trade"
)

type pgEnv struct {
	store  *store.PostgresStore
	ledger *ledger.Ledger
	offers *offer.Service
	trades *trade.Service
	offer  *offer.Offer
}

func setupPG(t *testing.T) *pgEnv {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	t.Cleanup(cleanup)

	s := store.NewPostgresStore(db)
	e := &pgEnv{
		store:  s,
		ledger: ledger.New(s),
		offers: offer.NewService(s),
		trades: trade.NewService(s),
	}

	ctx := context.Background()
	_, err := e.ledger.Deposit(ctx, ledger.DepositRequest{
		UserID: "seller", Asset: "USDT", Network: "TRC20", Account: ledger.AccountFunding,
		Amount: "1000", Reference: "seed-seller",
	})
	require.NoError(t, err)

	e.offer, err = e.offers.Create(ctx, offer.CreateRequest{
		MakerID: "seller", Side: offer.SideSell, Asset: "USDT", Network: "TRC20",
		FiatCurrency: "NGN", Price: "1500", Amount: "1000", MinLimit: "10", MaxLimit: "500",
	})
	require.NoError(t, err)
	return e
}

func (e *pgEnv) wallet(t *testing.T, user string) *ledger.Wallet {
	t.Helper()
	w, err := e.store.GetWallet(context.Background(),
		ledger.NewWalletKey(user, "USDT", "TRC20", ledger.AccountFunding))
	require.NoError(t, err)
	return w
}

func requireDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	require.True(t, got.Equal(decimal.RequireFromString(want)), "%s = %s, want %s", msg, got, want)
}

func TestPostgres_CreatePayRelease(t *testing.T) {
	e := setupPG(t)
	ctx := context.Background()

	tr, err := e.trades.Create(ctx, trade.CreateRequest{OfferID: e.offer.ID, TakerID: "buyer", Amount: "100"})
	require.NoError(t, err)
	requireDec(t, "100", e.wallet(t, "seller").Locked, "seller locked")

	_, err = e.trades.MarkPaid(ctx, tr.ID, trade.User("buyer"))
	require.NoError(t, err)
	got, err := e.trades.Release(ctx, tr.ID, trade.User("seller"))
	require.NoError(t, err)
	assert.Equal(t, trade.StatusCompleted, got.Status)

	requireDec(t, "900", e.wallet(t, "seller").Available, "seller available")
	requireDec(t, "0", e.wallet(t, "seller").Locked, "seller locked")
	requireDec(t, "100", e.wallet(t, "buyer").Available, "buyer available")

	stored, err := e.store.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	assert.NotNil(t, stored.ReleasedAt)
}

func TestPostgres_DisputeRoundTrip(t *testing.T) {
	e := setupPG(t)
	ctx := context.Background()

	tr, err := e.trades.Create(ctx, trade.CreateRequest{OfferID: e.offer.ID, TakerID: "buyer", Amount: "200"})
	require.NoError(t, err)
	_, err = e.trades.OpenDispute(ctx, tr.ID, trade.User("buyer"), "seller unresponsive")
	require.NoError(t, err)

	got, err := e.trades.ResolveDispute(ctx, tr.ID, trade.WinnerSeller, "no proof of payment", trade.Admin("ops"))
	require.NoError(t, err)

	stored, err := e.store.GetTrade(ctx, got.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Dispute)
	assert.Equal(t, "seller unresponsive", stored.Dispute.Reason)
	assert.Equal(t, "buyer", stored.Dispute.OpenedBy)
	assert.Equal(t, trade.WinnerSeller, stored.Dispute.Winner)
	assert.Equal(t, "admin:ops", stored.Dispute.ResolvedBy)
	assert.NotNil(t, stored.Dispute.ResolvedAt)

	requireDec(t, "1000", e.wallet(t, "seller").Available, "seller available")
	o, err := e.offers.Get(ctx, e.offer.ID)
	require.NoError(t, err)
	requireDec(t, "800", o.Available, "offer available")
}

func TestPostgres_ConcurrentReleaseExactlyOnce(t *testing.T) {
	e := setupPG(t)
	ctx := context.Background()

	tr, err := e.trades.Create(ctx, trade.CreateRequest{OfferID: e.offer.ID, TakerID: "buyer", Amount: "100"})
	require.NoError(t, err)
	_, err = e.trades.MarkPaid(ctx, tr.ID, trade.User("buyer"))
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.trades.Release(ctx, tr.ID, trade.User("seller"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, trade.ErrInvalidStateTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	requireDec(t, "100", e.wallet(t, "buyer").Available, "buyer available")
	requireDec(t, "0", e.wallet(t, "seller").Locked, "seller locked")
}

func TestPostgres_ConcurrentCreatesNeverOverdraw(t *testing.T) {
	e := setupPG(t)
	ctx := context.Background()

	// 12 x 100 against 1000 of funds and liquidity: at most 10 succeed.
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.trades.Create(ctx, trade.CreateRequest{OfferID: e.offer.ID, TakerID: "buyer", Amount: "100"})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	w := e.wallet(t, "seller")
	requireDec(t, "0", w.Available, "seller available")
	requireDec(t, "1000", w.Locked, "seller locked")
}

func TestPostgres_DuplicateDeposit(t *testing.T) {
	e := setupPG(t)
	ctx := context.Background()

	req := ledger.DepositRequest{UserID: "alice", Asset: "BTC", Amount: "0.5", Reference: "chain-tx-1"}
	_, err := e.ledger.Deposit(ctx, req)
	require.NoError(t, err)

	_, err = e.ledger.Deposit(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrDuplicateDeposit)

	w, err := e.ledger.GetWallet(ctx, ledger.NewWalletKey("alice", "BTC", "", ledger.AccountSpot))
	require.NoError(t, err)
	requireDec(t, "0.5", w.Available, "alice BTC")
}

func TestPostgres_HistoryAndTotals(t *testing.T) {
	e := setupPG(t)
	ctx := context.Background()

	_, err := e.trades.Create(ctx, trade.CreateRequest{OfferID: e.offer.ID, TakerID: "buyer", Amount: "50"})
	require.NoError(t, err)

	entries, err := e.store.GetHistory(ctx, "seller", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.EntryLock, entries[0].Type)
	assert.Equal(t, ledger.EntryDeposit, entries[1].Type)

	totals, err := e.store.AssetTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	requireDec(t, "1000", totals[0].Balances, "balances")
	requireDec(t, "1000", totals[0].Journal, "journal")

	snap, err := e.store.EscrowSnapshot(ctx)
	require.NoError(t, err)
	requireDec(t, "50", snap.Open[ledger.NewWalletKey("seller", "USDT", "TRC20", ledger.AccountFunding)], "open escrow")
	require.Len(t, snap.Locked, 1)
	requireDec(t, "50", snap.Locked[0].Locked, "locked wallet")
}

func TestPostgres_ExpiredTrades(t *testing.T) {
	e := setupPG(t)
	ctx := context.Background()

	tr, err := e.trades.Create(ctx, trade.CreateRequest{OfferID: e.offer.ID, TakerID: "buyer", Amount: "50"})
	require.NoError(t, err)

	expired, err := e.store.ListExpiredTrades(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = e.store.ListExpiredTrades(ctx, tr.ExpiresAt.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, tr.ID, expired[0].ID)
}

func TestPostgres_ConstraintMapsToDomainError(t *testing.T) {
	e := setupPG(t)
	ctx := context.Background()

	// Bypass the in-code guard to hit the CHECK constraint directly.
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		w, err := tx.GetOrCreateWallet(ctx, ledger.NewWalletKey("seller", "USDT", "TRC20", ledger.AccountFunding))
		if err != nil {
			return err
		}
		w.Available = decimal.NewFromInt(-1)
		return tx.SaveWallet(ctx, w)
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	requireDec(t, "1000", e.wallet(t, "seller").Available, "seller available")
}
