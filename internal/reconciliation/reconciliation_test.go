package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/offer"
	"github.com/mbd888/p2pescrow/internal/store"
	"github.com/mbd888/p2pescrow/internal/trade"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockStore struct {
	locked []*ledger.Wallet
	totals []*ledger.AssetTotal
	open   map[ledger.WalletKey]decimal.Decimal
	err    error
}

func (m *mockStore) EscrowSnapshot(context.Context) (*ledger.EscrowSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &ledger.EscrowSnapshot{Locked: m.locked, Open: m.open}, nil
}

func (m *mockStore) AssetTotals(context.Context) ([]*ledger.AssetTotal, error) {
	return m.totals, m.err
}

func seeded(t *testing.T) (*store.MemoryStore, *trade.Service, *offer.Offer) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	if _, err := ledger.New(s).Deposit(ctx, ledger.DepositRequest{
		UserID: "seller", Asset: "USDT", Network: "TRC20", Account: ledger.AccountFunding,
		Amount: "1000", Reference: "seed",
	}); err != nil {
		t.Fatal(err)
	}
	o, err := offer.NewService(s).Create(ctx, offer.CreateRequest{
		MakerID: "seller", Side: offer.SideSell, Asset: "USDT", Network: "TRC20",
		FiatCurrency: "NGN", Price: "1500", Amount: "1000", MinLimit: "10", MaxLimit: "500",
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, trade.NewService(s), o
}

func TestRunAll_Clean(t *testing.T) {
	ctx := context.Background()
	s, trades, o := seeded(t)

	a, err := trades.Create(ctx, trade.CreateRequest{OfferID: o.ID, TakerID: "buyer", Amount: "100"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := trades.Create(ctx, trade.CreateRequest{OfferID: o.ID, TakerID: "buyer", Amount: "40"}); err != nil {
		t.Fatal(err)
	}
	if _, err := trades.MarkPaid(ctx, a.ID, trade.User("buyer")); err != nil {
		t.Fatal(err)
	}
	if _, err := trades.Release(ctx, a.ID, trade.User("seller")); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(s, discard())
	report, err := runner.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if !report.Healthy() {
		t.Errorf("expected clean report, got %+v", report)
	}
	if report.WalletsChecked != 1 || report.AssetsChecked != 1 {
		t.Errorf("checked wallets=%d assets=%d", report.WalletsChecked, report.AssetsChecked)
	}
	if runner.LastReport() != report {
		t.Error("LastReport should return the latest run")
	}
}

func TestRunAll_LockWithoutTrade(t *testing.T) {
	ctx := context.Background()
	s, _, _ := seeded(t)

	key := ledger.NewWalletKey("seller", "USDT", "TRC20", ledger.AccountFunding)
	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		_, err := ledger.Lock(ctx, tx, key, decimal.NewFromInt(25), "orphan")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := NewRunner(s, discard()).RunAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.EscrowMismatches) != 1 {
		t.Fatalf("expected 1 escrow mismatch, got %+v", report.EscrowMismatches)
	}
	m := report.EscrowMismatches[0]
	if m.Wallet != key || !m.Locked.Equal(decimal.NewFromInt(25)) || !m.OpenTrades.IsZero() {
		t.Errorf("unexpected mismatch: %+v", m)
	}
	if len(report.JournalMismatches) != 0 {
		t.Errorf("journal should still balance: %+v", report.JournalMismatches)
	}
}

// tradingStore commits a trade right after the escrow snapshot is taken, the
// way a live request would land in the middle of a run.
type tradingStore struct {
	*store.MemoryStore
	afterSnapshot func()
}

func (s *tradingStore) EscrowSnapshot(ctx context.Context) (*ledger.EscrowSnapshot, error) {
	snap, err := s.MemoryStore.EscrowSnapshot(ctx)
	if s.afterSnapshot != nil {
		s.afterSnapshot()
		s.afterSnapshot = nil
	}
	return snap, err
}

func TestRunAll_TradeCommittedMidRun(t *testing.T) {
	ctx := context.Background()
	mem, trades, o := seeded(t)

	created := false
	s := &tradingStore{MemoryStore: mem, afterSnapshot: func() {
		if _, err := trades.Create(ctx, trade.CreateRequest{OfferID: o.ID, TakerID: "buyer", Amount: "100"}); err != nil {
			t.Errorf("create: %v", err)
			return
		}
		created = true
	}}
	runner := NewRunner(s, discard())

	report, err := runner.RunAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("trade was not committed during the run")
	}
	if !report.Healthy() {
		t.Errorf("a trade committed mid-run must not look like a mismatch: %+v", report.EscrowMismatches)
	}

	report, err = runner.RunAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Healthy() || report.WalletsChecked != 1 {
		t.Errorf("second run: healthy=%v wallets=%d", report.Healthy(), report.WalletsChecked)
	}
}

func TestRunAll_OpenTradeWithoutLock(t *testing.T) {
	key := ledger.NewWalletKey("seller", "BTC", "", ledger.AccountFunding)
	m := &mockStore{open: map[ledger.WalletKey]decimal.Decimal{key: decimal.NewFromInt(1)}}

	report, err := NewRunner(m, discard()).RunAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.EscrowMismatches) != 1 || !report.EscrowMismatches[0].Locked.IsZero() {
		t.Errorf("expected missing-lock mismatch, got %+v", report.EscrowMismatches)
	}
}

func TestRunAll_JournalMismatch(t *testing.T) {
	m := &mockStore{
		totals: []*ledger.AssetTotal{
			{Asset: "USDT", Network: "TRC20", Balances: decimal.NewFromInt(100), Journal: decimal.NewFromInt(100)},
			{Asset: "BTC", Network: "", Balances: decimal.RequireFromString("1.5"), Journal: decimal.NewFromInt(1)},
		},
	}

	report, err := NewRunner(m, discard()).RunAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.JournalMismatches) != 1 || report.JournalMismatches[0].Asset != "BTC" {
		t.Errorf("expected BTC journal mismatch, got %+v", report.JournalMismatches)
	}
	if report.Healthy() {
		t.Error("report should not be healthy")
	}
}

func TestRunAll_StoreError(t *testing.T) {
	m := &mockStore{err: ledger.ErrUnavailable}
	runner := NewRunner(m, discard())

	if _, err := runner.RunAll(context.Background()); !errors.Is(err, ledger.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if runner.LastReport() != nil {
		t.Error("failed run must not replace the last report")
	}
}

func TestTimer_StartStop(t *testing.T) {
	timer := NewTimer(NewRunner(&mockStore{}, discard()), 10*time.Millisecond, discard())

	done := make(chan struct{})
	go func() {
		timer.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !timer.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !timer.Running() {
		t.Fatal("timer did not start")
	}
	time.Sleep(30 * time.Millisecond)
	timer.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not stop")
	}
	if timer.runner.LastReport() == nil {
		t.Error("timer should have completed at least one run")
	}
}

func TestTimer_RunsImmediatelyAndCountsFailures(t *testing.T) {
	m := &mockStore{err: ledger.ErrUnavailable}
	timer := NewTimer(NewRunner(m, discard()), time.Hour, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timer.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for timer.ConsecutiveFailures() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := timer.ConsecutiveFailures(); got != 1 {
		t.Fatalf("expected first run at start to fail once, got %d", got)
	}
}

func TestHandler_Reconcile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, _, _ := seeded(t)

	r := gin.New()
	NewHandler(NewRunner(s, discard()), discard()).RegisterAdminRoutes(r.Group("/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/admin/reconcile", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Healthy bool `json:"healthy"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Healthy {
		t.Errorf("expected healthy, got %s", w.Body.String())
	}

	r = gin.New()
	NewHandler(NewRunner(&mockStore{err: ledger.ErrUnavailable}, discard()), discard()).RegisterAdminRoutes(r.Group("/v1"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/admin/reconcile", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
