// Package ledger tracks per-user wallet balances and escrow locks.
//
// Each wallet is keyed by (user, asset, network, account type) and holds an
// available and a locked amount. Balances change only through the operations
// in ops.go, each of which runs inside a caller-provided Tx:
//
//  1. Lock:    available -> locked (trade created)
//  2. Release: seller locked -> buyer available (trade completed)
//  3. Refund:  locked -> available (trade cancelled / seller wins dispute)
//  4. TransferBetweenAccounts: SPOT <-> FUNDING for the same user
//  5. DebitForWithdrawal / CreditDeposit: the only ways value leaves or enters
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/p2pescrow/internal/amount"
	"github.com/mbd888/p2pescrow/internal/traces"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidLockState   = errors.New("locked balance too low for this operation")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrSameAccount        = errors.New("source and destination wallet are the same")
	ErrDuplicateDeposit   = errors.New("deposit already processed")
	ErrConcurrentUpdate   = errors.New("wallet was modified concurrently")
	ErrMissingReference   = errors.New("reference is required")

	// ErrUnavailable wraps persistence failures (begin, query, commit). The
	// transaction that produced it has been rolled back.
	ErrUnavailable = errors.New("ledger storage unavailable")
)

// AccountType separates a user's trading and P2P funds for the same asset.
type AccountType string

const (
	AccountSpot    AccountType = "SPOT"
	AccountFunding AccountType = "FUNDING"
)

// Valid reports whether a is one of the known account types.
func (a AccountType) Valid() bool {
	switch a {
	case AccountSpot, AccountFunding:
		return true
	}
	return false
}

// ParseAccountType accepts "spot"/"funding" in any case.
func ParseAccountType(s string) (AccountType, error) {
	a := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountType, s)
	}
	return a, nil
}

// WalletKey identifies a wallet.
type WalletKey struct {
	UserID  string      `json:"userId"`
	Asset   string      `json:"asset"`
	Network string      `json:"network"`
	Account AccountType `json:"accountType"`
}

// NewWalletKey builds a normalized key (asset and network upper-cased).
func NewWalletKey(userID, asset, network string, account AccountType) WalletKey {
	return WalletKey{
		UserID:  strings.TrimSpace(userID),
		Asset:   strings.ToUpper(strings.TrimSpace(asset)),
		Network: strings.ToUpper(strings.TrimSpace(network)),
		Account: account,
	}
}

func (k WalletKey) String() string {
	return k.UserID + "/" + k.Asset + "/" + k.Network + "/" + string(k.Account)
}

func (k WalletKey) validate() error {
	if k.UserID == "" || k.Asset == "" {
		return fmt.Errorf("%w: user and asset are required", ErrInvalidAmount)
	}
	if !k.Account.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccountType, k.Account)
	}
	return nil
}

// Wallet is a balance record. Available and Locked are never negative.
type Wallet struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Asset       string          `json:"asset"`
	Network     string          `json:"network"`
	AccountType AccountType     `json:"accountType"`
	Available   decimal.Decimal `json:"available"`
	Locked      decimal.Decimal `json:"locked"`
	Version     int64           `json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NewWallet returns an unsaved zero-balance wallet for key.
func NewWallet(id string, key WalletKey, now time.Time) *Wallet {
	return &Wallet{
		ID:          id,
		UserID:      key.UserID,
		Asset:       key.Asset,
		Network:     key.Network,
		AccountType: key.Account,
		Available:   decimal.Zero,
		Locked:      decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Key returns the wallet's identifying key.
func (w *Wallet) Key() WalletKey {
	return WalletKey{UserID: w.UserID, Asset: w.Asset, Network: w.Network, Account: w.AccountType}
}

// Total is the user's holdings in this wallet.
func (w *Wallet) Total() decimal.Decimal {
	return w.Available.Add(w.Locked)
}

// EntryType labels a journal entry.
type EntryType string

const (
	EntryLock        EntryType = "lock"
	EntryRefund      EntryType = "refund"
	EntryReleaseOut  EntryType = "release_out"
	EntryReleaseIn   EntryType = "release_in"
	EntryTransferOut EntryType = "transfer_out"
	EntryTransferIn  EntryType = "transfer_in"
	EntryWithdrawal  EntryType = "withdrawal"
	EntryDeposit     EntryType = "deposit"
)

// Entry is one journal row, written in the same transaction as the wallet
// change it describes.
type Entry struct {
	ID             string          `json:"id"`
	WalletID       string          `json:"walletId"`
	UserID         string          `json:"userId"`
	Asset          string          `json:"asset"`
	Network        string          `json:"network"`
	AccountType    AccountType     `json:"accountType"`
	Type           EntryType       `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	DeltaAvailable decimal.Decimal `json:"deltaAvailable"`
	DeltaLocked    decimal.Decimal `json:"deltaLocked"`
	Reference      string          `json:"reference,omitempty"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// AssetTotal compares the sum of wallet balances with the sum of journal
// deltas for one asset on one network.
type AssetTotal struct {
	Asset    string          `json:"asset"`
	Network  string          `json:"network"`
	Balances decimal.Decimal `json:"balances"`
	Journal  decimal.Decimal `json:"journal"`
}

// EscrowSnapshot pairs the wallets holding a locked balance with the open
// trade totals per seller wallet. Both halves are read at the same instant.
type EscrowSnapshot struct {
	Locked []*Wallet
	Open   map[WalletKey]decimal.Decimal
}

// Tx is the wallet half of a store transaction. A wallet returned by
// GetOrCreateWallet stays locked against other transactions until commit or
// rollback.
type Tx interface {
	GetOrCreateWallet(ctx context.Context, key WalletKey) (*Wallet, error)
	// SaveWallet fails with ErrConcurrentUpdate if w.Version is stale and
	// increments w.Version on success.
	SaveWallet(ctx context.Context, w *Wallet) error
	AppendEntry(ctx context.Context, e *Entry) error
	HasEntry(ctx context.Context, entryType EntryType, reference string) (bool, error)
}

// Store persists wallets and journal entries.
type Store interface {
	// WithTx runs fn in one atomic unit; any error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	// GetWallet returns a zero wallet (not persisted) when none exists yet.
	GetWallet(ctx context.Context, key WalletKey) (*Wallet, error)
	ListWallets(ctx context.Context, userID string) ([]*Wallet, error)
	GetHistory(ctx context.Context, userID string, limit int) ([]*Entry, error)
	AssetTotals(ctx context.Context) ([]*AssetTotal, error)
}

// Ledger runs the stand-alone wallet operations, each in its own transaction.
// Trade settlement calls the ops in ops.go directly inside the trade's
// transaction instead.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New creates a new ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store, logger: slog.Default()}
}

// WithLogger sets the logger used for balance-changing operations.
func (l *Ledger) WithLogger(logger *slog.Logger) *Ledger {
	l.logger = logger
	return l
}

// GetWallet returns the wallet for key, zeroed if it was never touched.
func (l *Ledger) GetWallet(ctx context.Context, key WalletKey) (*Wallet, error) {
	key = NewWalletKey(key.UserID, key.Asset, key.Network, key.Account)
	if err := key.validate(); err != nil {
		return nil, err
	}
	return l.store.GetWallet(ctx, key)
}

// ListWallets returns every wallet a user holds.
func (l *Ledger) ListWallets(ctx context.Context, userID string) ([]*Wallet, error) {
	return l.store.ListWallets(ctx, userID)
}

// GetHistory returns a user's most recent journal entries.
func (l *Ledger) GetHistory(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.GetHistory(ctx, userID, limit)
}

// TransferRequest moves available funds between a user's own account types.
type TransferRequest struct {
	UserID  string      `json:"-"`
	Asset   string      `json:"asset" binding:"required"`
	Network string      `json:"network"`
	Amount  string      `json:"amount" binding:"required"`
	From    AccountType `json:"from" binding:"required"`
	To      AccountType `json:"to" binding:"required"`
}

// TransferResult holds both wallets after a transfer.
type TransferResult struct {
	From *Wallet `json:"from"`
	To   *Wallet `json:"to"`
}

// Transfer runs TransferBetweenAccounts in its own transaction.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	amt, err := amount.ParsePositive(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	ctx, span := traces.StartSpan(ctx, "ledger.Transfer",
		traces.UserID(req.UserID), traces.Amount(amt.String()))
	defer span.End()
	defer observeOp("transfer")()

	res := &TransferResult{}
	err = l.store.WithTx(ctx, func(tx Tx) error {
		from, to, err := TransferBetweenAccounts(ctx, tx, req.UserID, req.Asset, req.Network, amt, req.From, req.To)
		if err != nil {
			return err
		}
		res.From, res.To = from, to
		return nil
	})
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}

	l.logger.Info("account transfer",
		"user", req.UserID, "asset", res.From.Asset, "amount", amt.String(),
		"from", req.From, "to", req.To)
	return res, nil
}

// WithdrawRequest debits amount+fee for an outgoing withdrawal.
type WithdrawRequest struct {
	UserID    string      `json:"-"`
	Asset     string      `json:"asset" binding:"required"`
	Network   string      `json:"network"`
	Account   AccountType `json:"accountType"`
	Amount    string      `json:"amount" binding:"required"`
	Fee       string      `json:"fee"`
	Reference string      `json:"reference" binding:"required"`
}

// Withdraw runs DebitForWithdrawal in its own transaction.
func (l *Ledger) Withdraw(ctx context.Context, req WithdrawRequest) (*Wallet, error) {
	amt, err := amount.ParsePositive(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	fee := decimal.Zero
	if req.Fee != "" {
		if fee, err = amount.Parse(req.Fee); err != nil {
			return nil, fmt.Errorf("%w: fee: %v", ErrInvalidAmount, err)
		}
	}
	if req.Account == "" {
		req.Account = AccountSpot
	}
	key := NewWalletKey(req.UserID, req.Asset, req.Network, req.Account)

	ctx, span := traces.StartSpan(ctx, "ledger.Withdraw",
		traces.UserID(req.UserID), traces.Amount(amt.String()), traces.Reference(req.Reference))
	defer span.End()
	defer observeOp("withdrawal")()

	var w *Wallet
	err = l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		w, err = DebitForWithdrawal(ctx, tx, key, amt, fee, req.Reference)
		return err
	})
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}

	l.logger.Info("withdrawal debited",
		"wallet", key.String(), "amount", amt.String(), "fee", fee.String(), "reference", req.Reference)
	return w, nil
}

// DepositRequest credits an externally confirmed deposit.
type DepositRequest struct {
	UserID    string      `json:"userId" binding:"required"`
	Asset     string      `json:"asset" binding:"required"`
	Network   string      `json:"network"`
	Account   AccountType `json:"accountType"`
	Amount    string      `json:"amount" binding:"required"`
	Reference string      `json:"reference" binding:"required"`
}

// Deposit runs CreditDeposit in its own transaction. Replaying the same
// reference returns ErrDuplicateDeposit.
func (l *Ledger) Deposit(ctx context.Context, req DepositRequest) (*Wallet, error) {
	amt, err := amount.ParsePositive(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if req.Account == "" {
		req.Account = AccountSpot
	}
	key := NewWalletKey(req.UserID, req.Asset, req.Network, req.Account)

	ctx, span := traces.StartSpan(ctx, "ledger.Deposit",
		traces.UserID(req.UserID), traces.Amount(amt.String()), traces.Reference(req.Reference))
	defer span.End()
	defer observeOp("deposit")()

	var w *Wallet
	err = l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		w, err = CreditDeposit(ctx, tx, key, amt, req.Reference)
		return err
	})
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}

	l.logger.Info("deposit credited",
		"wallet", key.String(), "amount", amt.String(), "reference", req.Reference)
	return w, nil
}
