package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/p2pescrow/internal/idgen"
)

// adjust applies a signed change to w and journals it. It is the only place
// wallet balances are written. The guard and the write happen inside tx, so a
// rejected change leaves nothing behind once tx rolls back.
func adjust(ctx context.Context, tx Tx, w *Wallet, dAvailable, dLocked, amt decimal.Decimal, typ EntryType, ref, desc string) error {
	available := w.Available.Add(dAvailable)
	locked := w.Locked.Add(dLocked)
	if available.IsNegative() {
		err := fmt.Errorf("%w: wallet %s has %s available, needs %s",
			ErrInsufficientFunds, w.Key(), w.Available, dAvailable.Neg())
		observeRejection(err)
		return err
	}
	if locked.IsNegative() {
		err := fmt.Errorf("%w: wallet %s has %s locked, needs %s",
			ErrInvalidLockState, w.Key(), w.Locked, dLocked.Neg())
		observeRejection(err)
		return err
	}

	now := time.Now().UTC()
	w.Available = available
	w.Locked = locked
	w.UpdatedAt = now
	if err := tx.SaveWallet(ctx, w); err != nil {
		return err
	}

	return tx.AppendEntry(ctx, &Entry{
		ID:             idgen.WithPrefix("ent_"),
		WalletID:       w.ID,
		UserID:         w.UserID,
		Asset:          w.Asset,
		Network:        w.Network,
		AccountType:    w.AccountType,
		Type:           typ,
		Amount:         amt,
		DeltaAvailable: dAvailable,
		DeltaLocked:    dLocked,
		Reference:      ref,
		Description:    desc,
		CreatedAt:      now,
	})
}

func checkPositive(amt decimal.Decimal) error {
	if !amt.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amt)
	}
	return nil
}

// acquirePair row-locks two distinct wallets in key order so that two
// transactions touching the same pair cannot deadlock.
func acquirePair(ctx context.Context, tx Tx, a, b WalletKey) (*Wallet, *Wallet, error) {
	if a == b {
		return nil, nil, ErrSameAccount
	}
	first, second := a, b
	if second.String() < first.String() {
		first, second = second, first
	}
	w1, err := tx.GetOrCreateWallet(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	w2, err := tx.GetOrCreateWallet(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if first == a {
		return w1, w2, nil
	}
	return w2, w1, nil
}

// Lock moves amt from available to locked.
func Lock(ctx context.Context, tx Tx, key WalletKey, amt decimal.Decimal, ref string) (*Wallet, error) {
	if err := checkPositive(amt); err != nil {
		return nil, err
	}
	w, err := tx.GetOrCreateWallet(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := adjust(ctx, tx, w, amt.Neg(), amt, amt, EntryLock, ref, ""); err != nil {
		return nil, err
	}
	return w, nil
}

// Release moves amt out of from's locked balance into to's available balance.
func Release(ctx context.Context, tx Tx, from WalletKey, amt decimal.Decimal, to WalletKey, ref string) (src, dst *Wallet, err error) {
	if err := checkPositive(amt); err != nil {
		return nil, nil, err
	}
	src, dst, err = acquirePair(ctx, tx, from, to)
	if err != nil {
		return nil, nil, err
	}
	if err := adjust(ctx, tx, src, decimal.Zero, amt.Neg(), amt, EntryReleaseOut, ref, "to "+to.UserID); err != nil {
		return nil, nil, err
	}
	if err := adjust(ctx, tx, dst, amt, decimal.Zero, amt, EntryReleaseIn, ref, "from "+from.UserID); err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

// Refund moves amt from locked back to available on the same wallet.
func Refund(ctx context.Context, tx Tx, key WalletKey, amt decimal.Decimal, ref string) (*Wallet, error) {
	if err := checkPositive(amt); err != nil {
		return nil, err
	}
	w, err := tx.GetOrCreateWallet(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := adjust(ctx, tx, w, amt, amt.Neg(), amt, EntryRefund, ref, ""); err != nil {
		return nil, err
	}
	return w, nil
}

// TransferBetweenAccounts moves available funds between two account types
// of the same user, asset and network.
func TransferBetweenAccounts(ctx context.Context, tx Tx, userID, asset, network string, amt decimal.Decimal, from, to AccountType) (src, dst *Wallet, err error) {
	if err := checkPositive(amt); err != nil {
		return nil, nil, err
	}
	if !from.Valid() || !to.Valid() {
		return nil, nil, fmt.Errorf("%w: %q -> %q", ErrInvalidAccountType, from, to)
	}
	fromKey := NewWalletKey(userID, asset, network, from)
	toKey := NewWalletKey(userID, asset, network, to)
	if err := fromKey.validate(); err != nil {
		return nil, nil, err
	}

	src, dst, err = acquirePair(ctx, tx, fromKey, toKey)
	if err != nil {
		return nil, nil, err
	}
	if err := adjust(ctx, tx, src, amt.Neg(), decimal.Zero, amt, EntryTransferOut, "", "to "+string(to)); err != nil {
		return nil, nil, err
	}
	if err := adjust(ctx, tx, dst, amt, decimal.Zero, amt, EntryTransferIn, "", "from "+string(from)); err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

// DebitForWithdrawal removes amt+fee from the available balance.
func DebitForWithdrawal(ctx context.Context, tx Tx, key WalletKey, amt, fee decimal.Decimal, ref string) (*Wallet, error) {
	if err := checkPositive(amt); err != nil {
		return nil, err
	}
	if fee.IsNegative() {
		return nil, fmt.Errorf("%w: fee %s is negative", ErrInvalidAmount, fee)
	}
	if ref == "" {
		return nil, ErrMissingReference
	}
	if err := key.validate(); err != nil {
		return nil, err
	}
	w, err := tx.GetOrCreateWallet(ctx, key)
	if err != nil {
		return nil, err
	}
	total := amt.Add(fee)
	if err := adjust(ctx, tx, w, total.Neg(), decimal.Zero, total, EntryWithdrawal, ref, "fee "+fee.String()); err != nil {
		return nil, err
	}
	return w, nil
}

// CreditDeposit credits an external deposit. Each reference is credited at
// most once.
func CreditDeposit(ctx context.Context, tx Tx, key WalletKey, amt decimal.Decimal, ref string) (*Wallet, error) {
	if err := checkPositive(amt); err != nil {
		return nil, err
	}
	if ref == "" {
		return nil, ErrMissingReference
	}
	if err := key.validate(); err != nil {
		return nil, err
	}
	seen, err := tx.HasEntry(ctx, EntryDeposit, ref)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDeposit, ref)
	}
	w, err := tx.GetOrCreateWallet(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := adjust(ctx, tx, w, amt, decimal.Zero, amt, EntryDeposit, ref, ""); err != nil {
		return nil, err
	}
	return w, nil
}
