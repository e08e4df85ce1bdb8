// Package store implements the wallet, offer and trade stores behind one
// transaction so a trade transition can move funds, offer liquidity and
// trade status atomically.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/p2pescrow/internal/idgen"
	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/offer"
	"github.com/mbd888/p2pescrow/internal/trade"
)

// MemoryStore is an in-memory store for demo/development mode and tests.
// One mutex serializes transactions. Writes are staged in the transaction
// and applied only when fn returns nil.
type MemoryStore struct {
	mu sync.Mutex

	wallets  map[ledger.WalletKey]*ledger.Wallet
	entries  []*ledger.Entry
	entryRef map[string]bool
	offers   map[string]*offer.Offer
	trades   map[string]*trade.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[ledger.WalletKey]*ledger.Wallet),
		entryRef: make(map[string]bool),
		offers:   make(map[string]*offer.Offer),
		trades:   make(map[string]*trade.Trade),
	}
}

var (
	_ ledger.Store = (*MemoryStore)(nil)
	_ offer.Store  = (*MemoryStore)(nil)
	_ trade.Store  = (*MemoryStore)(nil)
	_ trade.Tx     = (*memTx)(nil)
)

func entryRefKey(t ledger.EntryType, ref string) string {
	return string(t) + "|" + ref
}

// memTx holds staged copies. Nothing it touches is visible to readers
// until commit.
type memTx struct {
	s       *MemoryStore
	wallets map[ledger.WalletKey]*ledger.Wallet
	entries []*ledger.Entry
	offers  map[string]*offer.Offer
	trades  map[string]*trade.Trade
}

func (s *MemoryStore) begin(ctx context.Context) (*memTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ledger.ErrUnavailable, err)
	}
	return &memTx{
		s:       s,
		wallets: make(map[ledger.WalletKey]*ledger.Wallet),
		offers:  make(map[string]*offer.Offer),
		trades:  make(map[string]*trade.Trade),
	}, nil
}

func (tx *memTx) commit() {
	s := tx.s
	for k, w := range tx.wallets {
		s.wallets[k] = w
	}
	for _, e := range tx.entries {
		s.entries = append(s.entries, e)
		if e.Reference != "" {
			s.entryRef[entryRefKey(e.Type, e.Reference)] = true
		}
	}
	for id, o := range tx.offers {
		s.offers[id] = o
	}
	for id, t := range tx.trades {
		s.trades[id] = t
	}
}

func (s *MemoryStore) run(ctx context.Context, fn func(tx *memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: commit: %v", ledger.ErrUnavailable, err)
	}
	tx.commit()
	return nil
}

// WithTx implements ledger.Store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.run(ctx, func(tx *memTx) error { return fn(tx) })
}

// WithOfferTx implements offer.Store.
func (s *MemoryStore) WithOfferTx(ctx context.Context, fn func(tx offer.Tx) error) error {
	return s.run(ctx, func(tx *memTx) error { return fn(tx) })
}

// WithTradeTx implements trade.Store.
func (s *MemoryStore) WithTradeTx(ctx context.Context, fn func(tx trade.Tx) error) error {
	return s.run(ctx, func(tx *memTx) error { return fn(tx) })
}

// --- ledger.Tx ---

func (tx *memTx) currentWallet(key ledger.WalletKey) *ledger.Wallet {
	if w, ok := tx.wallets[key]; ok {
		return w
	}
	return tx.s.wallets[key]
}

func (tx *memTx) GetOrCreateWallet(_ context.Context, key ledger.WalletKey) (*ledger.Wallet, error) {
	if w := tx.currentWallet(key); w != nil {
		cp := *w
		return &cp, nil
	}
	w := ledger.NewWallet(idgen.WithPrefix("wal_"), key, time.Now().UTC())
	tx.wallets[key] = w
	cp := *w
	return &cp, nil
}

func (tx *memTx) SaveWallet(_ context.Context, w *ledger.Wallet) error {
	cur := tx.currentWallet(w.Key())
	if cur == nil || cur.Version != w.Version {
		return ledger.ErrConcurrentUpdate
	}
	w.Version++
	cp := *w
	tx.wallets[w.Key()] = &cp
	return nil
}

func (tx *memTx) AppendEntry(_ context.Context, e *ledger.Entry) error {
	cp := *e
	tx.entries = append(tx.entries, &cp)
	return nil
}

func (tx *memTx) HasEntry(_ context.Context, typ ledger.EntryType, ref string) (bool, error) {
	if tx.s.entryRef[entryRefKey(typ, ref)] {
		return true, nil
	}
	for _, e := range tx.entries {
		if e.Type == typ && e.Reference == ref {
			return true, nil
		}
	}
	return false, nil
}

// --- offer.Tx ---

func (tx *memTx) currentOffer(id string) *offer.Offer {
	if o, ok := tx.offers[id]; ok {
		return o
	}
	return tx.s.offers[id]
}

func (tx *memTx) GetOfferForUpdate(_ context.Context, id string) (*offer.Offer, error) {
	o := tx.currentOffer(id)
	if o == nil {
		return nil, offer.ErrOfferNotFound
	}
	cp := *o
	return &cp, nil
}

func (tx *memTx) UpdateOffer(_ context.Context, o *offer.Offer) error {
	cur := tx.currentOffer(o.ID)
	if cur == nil {
		return offer.ErrOfferNotFound
	}
	if cur.Version != o.Version {
		return offer.ErrConcurrentUpdate
	}
	o.Version++
	cp := *o
	tx.offers[o.ID] = &cp
	return nil
}

// --- trade.Tx ---

func (tx *memTx) currentTrade(id string) *trade.Trade {
	if t, ok := tx.trades[id]; ok {
		return t
	}
	return tx.s.trades[id]
}

func (tx *memTx) GetTradeForUpdate(_ context.Context, id string) (*trade.Trade, error) {
	t := tx.currentTrade(id)
	if t == nil {
		return nil, trade.ErrTradeNotFound
	}
	return cloneTrade(t), nil
}

func (tx *memTx) InsertTrade(_ context.Context, t *trade.Trade) error {
	if tx.currentTrade(t.ID) != nil {
		return fmt.Errorf("trade %s already exists", t.ID)
	}
	tx.trades[t.ID] = cloneTrade(t)
	return nil
}

func (tx *memTx) UpdateTrade(_ context.Context, t *trade.Trade) error {
	cur := tx.currentTrade(t.ID)
	if cur == nil {
		return trade.ErrTradeNotFound
	}
	if cur.Version != t.Version {
		return trade.ErrConcurrentUpdate
	}
	t.Version++
	tx.trades[t.ID] = cloneTrade(t)
	return nil
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTrade(t *trade.Trade) *trade.Trade {
	cp := *t
	cp.PaidAt = cloneTime(t.PaidAt)
	cp.ReleasedAt = cloneTime(t.ReleasedAt)
	cp.CancelledAt = cloneTime(t.CancelledAt)
	if t.Dispute != nil {
		d := *t.Dispute
		d.ResolvedAt = cloneTime(t.Dispute.ResolvedAt)
		cp.Dispute = &d
	}
	return &cp
}

// --- reads ---

// GetWallet implements ledger.Store.
func (s *MemoryStore) GetWallet(_ context.Context, key ledger.WalletKey) (*ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.wallets[key]; ok {
		cp := *w
		return &cp, nil
	}
	return ledger.NewWallet("", key, time.Now().UTC()), nil
}

// ListWallets implements ledger.Store.
func (s *MemoryStore) ListWallets(_ context.Context, userID string) ([]*ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ledger.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

// GetHistory implements ledger.Store. Newest entries first.
func (s *MemoryStore) GetHistory(_ context.Context, userID string, limit int) ([]*ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ledger.Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := s.entries[i]; e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// EscrowSnapshot reads locked wallets and open trade totals under one lock.
func (s *MemoryStore) EscrowSnapshot(_ context.Context) (*ledger.EscrowSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &ledger.EscrowSnapshot{Open: make(map[ledger.WalletKey]decimal.Decimal)}
	for _, w := range s.wallets {
		if w.Locked.IsPositive() {
			cp := *w
			snap.Locked = append(snap.Locked, &cp)
		}
	}
	for _, t := range s.trades {
		if t.Status.HoldsEscrow() {
			k := t.SellerWallet()
			snap.Open[k] = snap.Open[k].Add(t.Amount)
		}
	}
	return snap, nil
}

// AssetTotals implements ledger.Store.
func (s *MemoryStore) AssetTotals(_ context.Context) ([]*ledger.AssetTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type an struct{ asset, network string }
	totals := make(map[an]*ledger.AssetTotal)
	get := func(asset, network string) *ledger.AssetTotal {
		k := an{asset, network}
		t, ok := totals[k]
		if !ok {
			t = &ledger.AssetTotal{Asset: asset, Network: network, Balances: decimal.Zero, Journal: decimal.Zero}
			totals[k] = t
		}
		return t
	}
	for _, w := range s.wallets {
		t := get(w.Asset, w.Network)
		t.Balances = t.Balances.Add(w.Total())
	}
	for _, e := range s.entries {
		t := get(e.Asset, e.Network)
		t.Journal = t.Journal.Add(e.DeltaAvailable).Add(e.DeltaLocked)
	}

	out := make([]*ledger.AssetTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset < out[j].Asset
		}
		return out[i].Network < out[j].Network
	})
	return out, nil
}

// CreateOffer implements offer.Store.
func (s *MemoryStore) CreateOffer(_ context.Context, o *offer.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offers[o.ID]; exists {
		return fmt.Errorf("offer %s already exists", o.ID)
	}
	cp := *o
	s.offers[o.ID] = &cp
	return nil
}

// GetOffer implements offer.Store.
func (s *MemoryStore) GetOffer(_ context.Context, id string) (*offer.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[id]
	if !ok {
		return nil, offer.ErrOfferNotFound
	}
	cp := *o
	return &cp, nil
}

// ListOffersByMaker implements offer.Store.
func (s *MemoryStore) ListOffersByMaker(_ context.Context, makerID string) ([]*offer.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*offer.Offer
	for _, o := range s.offers {
		if o.MakerID == makerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetTrade implements trade.Store.
func (s *MemoryStore) GetTrade(_ context.Context, id string) (*trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return nil, trade.ErrTradeNotFound
	}
	return cloneTrade(t), nil
}

// ListTradesByUser implements trade.Store.
func (s *MemoryStore) ListTradesByUser(_ context.Context, userID string, limit int) ([]*trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*trade.Trade
	for _, t := range s.trades {
		if t.IsParty(userID) {
			out = append(out, cloneTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListExpiredTrades implements trade.Store.
func (s *MemoryStore) ListExpiredTrades(_ context.Context, before time.Time, limit int) ([]*trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*trade.Trade
	for _, t := range s.trades {
		if t.Status == trade.StatusWaitingPayment && t.ExpiresAt.Before(before) {
			out = append(out, cloneTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
