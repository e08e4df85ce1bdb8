package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/mbd888/p2pescrow/internal/idgen"
	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/offer"
	"github.com/mbd888/p2pescrow/internal/trade"
)

// PostgresStore persists wallets, offers and trades in PostgreSQL.
//
// Transactions run at READ COMMITTED and take row locks with SELECT ... FOR
// UPDATE in the order trade -> offer -> wallets (wallet pairs sorted by key).
// Every UPDATE also checks the row's version column.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	_ ledger.Store = (*PostgresStore)(nil)
	_ offer.Store  = (*PostgresStore)(nil)
	_ trade.Store  = (*PostgresStore)(nil)
	_ trade.Tx     = (*pgTx)(nil)
)

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// dbError converts a driver error into a domain error. Constraint
// violations that mirror an in-code guard map to that guard's error; all
// other failures become ledger.ErrUnavailable.
func dbError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23514": // check_violation
			switch pqErr.Constraint {
			case "wallets_available_check":
				return fmt.Errorf("%w: %s", ledger.ErrInsufficientFunds, op)
			case "wallets_locked_check":
				return fmt.Errorf("%w: %s", ledger.ErrInvalidLockState, op)
			}
		case "22003": // numeric_value_out_of_range
			return fmt.Errorf("%w: %s: value exceeds column width", ledger.ErrInvalidAmount, op)
		case "23505": // unique_violation
			if pqErr.Constraint == "idx_ledger_entries_deposit_ref" {
				return fmt.Errorf("%w: %s", ledger.ErrDuplicateDeposit, op)
			}
		}
	}
	return fmt.Errorf("%w: %s: %w", ledger.ErrUnavailable, op, err)
}

type pgTx struct {
	tx *sql.Tx
}

// run executes fn in one transaction, re-running it from scratch when
// Postgres reports a deadlock or serialization failure.
func (p *PostgresStore) run(ctx context.Context, fn func(tx *pgTx) error) error {
	return retryTx(ctx, txAttempts, txBaseDelay, func() error {
		return p.runOnce(ctx, fn)
	})
}

func (p *PostgresStore) runOnce(ctx context.Context, fn func(tx *pgTx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return dbError("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbError("commit", err)
	}
	return nil
}

// WithTx implements ledger.Store.
func (p *PostgresStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return p.run(ctx, func(tx *pgTx) error { return fn(tx) })
}

// WithOfferTx implements offer.Store.
func (p *PostgresStore) WithOfferTx(ctx context.Context, fn func(tx offer.Tx) error) error {
	return p.run(ctx, func(tx *pgTx) error { return fn(tx) })
}

// WithTradeTx implements trade.Store.
func (p *PostgresStore) WithTradeTx(ctx context.Context, fn func(tx trade.Tx) error) error {
	return p.run(ctx, func(tx *pgTx) error { return fn(tx) })
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// --- wallets ---

const walletColumns = `id, user_id, asset, network, account_type, available, locked, version, created_at, updated_at`

func scanWallet(s scanner) (*ledger.Wallet, error) {
	w := &ledger.Wallet{}
	var account string
	err := s.Scan(&w.ID, &w.UserID, &w.Asset, &w.Network, &account,
		&w.Available, &w.Locked, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.AccountType = ledger.AccountType(account)
	return w, nil
}

func (t *pgTx) GetOrCreateWallet(ctx context.Context, key ledger.WalletKey) (*ledger.Wallet, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, asset, network, account_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, asset, network, account_type) DO NOTHING`,
		idgen.WithPrefix("wal_"), key.UserID, key.Asset, key.Network, string(key.Account),
	)
	if err != nil {
		return nil, dbError("create wallet", err)
	}

	row := t.tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE user_id = $1 AND asset = $2 AND network = $3 AND account_type = $4
		FOR UPDATE`,
		key.UserID, key.Asset, key.Network, string(key.Account),
	)
	w, err := scanWallet(row)
	if err != nil {
		return nil, dbError("lock wallet", err)
	}
	return w, nil
}

func (t *pgTx) SaveWallet(ctx context.Context, w *ledger.Wallet) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE wallets
		SET available = $1, locked = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		w.Available, w.Locked, w.UpdatedAt, w.ID, w.Version,
	)
	if err != nil {
		return dbError("save wallet", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return dbError("save wallet", err)
	}
	if rows == 0 {
		return ledger.ErrConcurrentUpdate
	}
	w.Version++
	return nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			id, wallet_id, user_id, asset, network, account_type, type,
			amount, delta_available, delta_locked, reference, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.WalletID, e.UserID, e.Asset, e.Network, string(e.AccountType), string(e.Type),
		e.Amount, e.DeltaAvailable, e.DeltaLocked, e.Reference, e.Description, e.CreatedAt,
	)
	if err != nil {
		return dbError("append entry", err)
	}
	return nil
}

func (t *pgTx) HasEntry(ctx context.Context, typ ledger.EntryType, ref string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE type = $1 AND reference = $2)`,
		string(typ), ref,
	).Scan(&exists)
	if err != nil {
		return false, dbError("check entry", err)
	}
	return exists, nil
}

// GetWallet implements ledger.Store.
func (p *PostgresStore) GetWallet(ctx context.Context, key ledger.WalletKey) (*ledger.Wallet, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE user_id = $1 AND asset = $2 AND network = $3 AND account_type = $4`,
		key.UserID, key.Asset, key.Network, string(key.Account),
	)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewWallet("", key, time.Now().UTC()), nil
	}
	if err != nil {
		return nil, dbError("get wallet", err)
	}
	return w, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryWallets(ctx context.Context, q querier, op, query string, args ...interface{}) ([]*ledger.Wallet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ledger.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return out, nil
}

// ListWallets implements ledger.Store.
func (p *PostgresStore) ListWallets(ctx context.Context, userID string) ([]*ledger.Wallet, error) {
	return queryWallets(ctx, p.db, "list wallets", `
		SELECT `+walletColumns+` FROM wallets
		WHERE user_id = $1
		ORDER BY asset, network, account_type`, userID)
}

// EscrowSnapshot reads locked wallets and open trade totals inside one
// REPEATABLE READ transaction so both come from the same snapshot.
func (p *PostgresStore) EscrowSnapshot(ctx context.Context) (*ledger.EscrowSnapshot, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, dbError("escrow snapshot", err)
	}
	defer func() { _ = tx.Rollback() }()

	locked, err := queryWallets(ctx, tx, "locked wallets", `
		SELECT `+walletColumns+` FROM wallets WHERE locked > 0`)
	if err != nil {
		return nil, err
	}
	open, err := openEscrowTotals(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, dbError("escrow snapshot", err)
	}
	return &ledger.EscrowSnapshot{Locked: locked, Open: open}, nil
}

// GetHistory implements ledger.Store.
func (p *PostgresStore) GetHistory(ctx context.Context, userID string, limit int) ([]*ledger.Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, wallet_id, user_id, asset, network, account_type, type,
		       amount, delta_available, delta_locked, reference, description, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, dbError("history", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ledger.Entry
	for rows.Next() {
		e := &ledger.Entry{}
		var account, typ string
		if err := rows.Scan(&e.ID, &e.WalletID, &e.UserID, &e.Asset, &e.Network, &account, &typ,
			&e.Amount, &e.DeltaAvailable, &e.DeltaLocked, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, dbError("history", err)
		}
		e.AccountType = ledger.AccountType(account)
		e.Type = ledger.EntryType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("history", err)
	}
	return out, nil
}

// AssetTotals implements ledger.Store.
func (p *PostgresStore) AssetTotals(ctx context.Context) ([]*ledger.AssetTotal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT asset, network, COALESCE(SUM(bal), 0), COALESCE(SUM(jrn), 0)
		FROM (
			SELECT asset, network, available + locked AS bal, 0::NUMERIC AS jrn FROM wallets
			UNION ALL
			SELECT asset, network, 0::NUMERIC, delta_available + delta_locked FROM ledger_entries
		) t
		GROUP BY asset, network
		ORDER BY asset, network`)
	if err != nil {
		return nil, dbError("asset totals", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ledger.AssetTotal
	for rows.Next() {
		t := &ledger.AssetTotal{}
		if err := rows.Scan(&t.Asset, &t.Network, &t.Balances, &t.Journal); err != nil {
			return nil, dbError("asset totals", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("asset totals", err)
	}
	return out, nil
}

// --- offers ---

const offerColumns = `id, maker_id, side, asset, network, fiat_currency, price, available,
		       min_limit, max_limit, active, version, created_at, updated_at`

func scanOffer(s scanner) (*offer.Offer, error) {
	o := &offer.Offer{}
	var side string
	err := s.Scan(&o.ID, &o.MakerID, &side, &o.Asset, &o.Network, &o.FiatCurrency,
		&o.Price, &o.Available, &o.MinLimit, &o.MaxLimit, &o.Active, &o.Version,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Side = offer.Side(side)
	return o, nil
}

func (t *pgTx) GetOfferForUpdate(ctx context.Context, id string) (*offer.Offer, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, offer.ErrOfferNotFound
	}
	if err != nil {
		return nil, dbError("lock offer", err)
	}
	return o, nil
}

func (t *pgTx) UpdateOffer(ctx context.Context, o *offer.Offer) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE offers
		SET available = $1, active = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		o.Available, o.Active, o.UpdatedAt, o.ID, o.Version,
	)
	if err != nil {
		return dbError("update offer", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return dbError("update offer", err)
	}
	if rows == 0 {
		return offer.ErrConcurrentUpdate
	}
	o.Version++
	return nil
}

// CreateOffer implements offer.Store.
func (p *PostgresStore) CreateOffer(ctx context.Context, o *offer.Offer) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO offers (
			id, maker_id, side, asset, network, fiat_currency, price, available,
			min_limit, max_limit, active, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.MakerID, string(o.Side), o.Asset, o.Network, o.FiatCurrency, o.Price, o.Available,
		o.MinLimit, o.MaxLimit, o.Active, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return dbError("create offer", err)
	}
	return nil
}

// GetOffer implements offer.Store.
func (p *PostgresStore) GetOffer(ctx context.Context, id string) (*offer.Offer, error) {
	o, err := scanOffer(p.db.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, offer.ErrOfferNotFound
	}
	if err != nil {
		return nil, dbError("get offer", err)
	}
	return o, nil
}

// ListOffersByMaker implements offer.Store.
func (p *PostgresStore) ListOffersByMaker(ctx context.Context, makerID string) ([]*offer.Offer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE maker_id = $1
		ORDER BY created_at DESC`, makerID)
	if err != nil {
		return nil, dbError("list offers", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*offer.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, dbError("list offers", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list offers", err)
	}
	return out, nil
}

// --- trades ---

const tradeColumns = `id, offer_id, buyer_id, seller_id, asset, network, account_type, fiat_currency,
		       amount, fiat_amount, price, status, expires_at, paid_at, released_at, cancelled_at,
		       dispute_reason, dispute_opened_by, dispute_opened_at, dispute_winner, dispute_note,
		       dispute_resolved_by, dispute_resolved_at, version, created_at, updated_at`

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func scanTrade(s scanner) (*trade.Trade, error) {
	t := &trade.Trade{}
	var (
		account, status                          string
		paidAt, releasedAt, cancelledAt          sql.NullTime
		reason, openedBy, winner, note, resolver sql.NullString
		openedAt, resolvedAt                     sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.OfferID, &t.BuyerID, &t.SellerID, &t.Asset, &t.Network, &account, &t.FiatCurrency,
		&t.Amount, &t.FiatAmount, &t.Price, &status, &t.ExpiresAt, &paidAt, &releasedAt, &cancelledAt,
		&reason, &openedBy, &openedAt, &winner, &note,
		&resolver, &resolvedAt, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.AccountType = ledger.AccountType(account)
	t.Status = trade.Status(status)
	t.PaidAt = timePtr(paidAt)
	t.ReleasedAt = timePtr(releasedAt)
	t.CancelledAt = timePtr(cancelledAt)
	if openedAt.Valid {
		t.Dispute = &trade.Dispute{
			Reason:     reason.String,
			OpenedBy:   openedBy.String,
			OpenedAt:   openedAt.Time,
			Winner:     trade.Winner(winner.String),
			Note:       note.String,
			ResolvedBy: resolver.String,
			ResolvedAt: timePtr(resolvedAt),
		}
	}
	return t, nil
}

// disputeArgs flattens the optional dispute into column values.
func disputeArgs(d *trade.Dispute) []interface{} {
	if d == nil {
		return []interface{}{
			sql.NullString{}, sql.NullString{}, sql.NullTime{}, sql.NullString{},
			sql.NullString{}, sql.NullString{}, sql.NullTime{},
		}
	}
	return []interface{}{
		nullString(d.Reason), nullString(d.OpenedBy), nullTime(&d.OpenedAt), nullString(string(d.Winner)),
		nullString(d.Note), nullString(d.ResolvedBy), nullTime(d.ResolvedAt),
	}
}

func (t *pgTx) GetTradeForUpdate(ctx context.Context, id string) (*trade.Trade, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE`, id)
	tr, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trade.ErrTradeNotFound
	}
	if err != nil {
		return nil, dbError("lock trade", err)
	}
	return tr, nil
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *trade.Trade) error {
	args := []interface{}{
		tr.ID, tr.OfferID, tr.BuyerID, tr.SellerID, tr.Asset, tr.Network, string(tr.AccountType), tr.FiatCurrency,
		tr.Amount, tr.FiatAmount, tr.Price, string(tr.Status), tr.ExpiresAt,
		nullTime(tr.PaidAt), nullTime(tr.ReleasedAt), nullTime(tr.CancelledAt),
	}
	args = append(args, disputeArgs(tr.Dispute)...)
	args = append(args, tr.Version, tr.CreatedAt, tr.UpdatedAt)

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26
		)`, args...)
	if err != nil {
		return dbError("insert trade", err)
	}
	return nil
}

func (t *pgTx) UpdateTrade(ctx context.Context, tr *trade.Trade) error {
	args := []interface{}{
		string(tr.Status), nullTime(tr.PaidAt), nullTime(tr.ReleasedAt), nullTime(tr.CancelledAt),
	}
	args = append(args, disputeArgs(tr.Dispute)...)
	args = append(args, tr.UpdatedAt, tr.ID, tr.Version)

	result, err := t.tx.ExecContext(ctx, `
		UPDATE trades SET
			status = $1, paid_at = $2, released_at = $3, cancelled_at = $4,
			dispute_reason = $5, dispute_opened_by = $6, dispute_opened_at = $7, dispute_winner = $8,
			dispute_note = $9, dispute_resolved_by = $10, dispute_resolved_at = $11,
			updated_at = $12, version = version + 1
		WHERE id = $13 AND version = $14`, args...)
	if err != nil {
		return dbError("update trade", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return dbError("update trade", err)
	}
	if rows == 0 {
		return trade.ErrConcurrentUpdate
	}
	tr.Version++
	return nil
}

// GetTrade implements trade.Store.
func (p *PostgresStore) GetTrade(ctx context.Context, id string) (*trade.Trade, error) {
	tr, err := scanTrade(p.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trade.ErrTradeNotFound
	}
	if err != nil {
		return nil, dbError("get trade", err)
	}
	return tr, nil
}

func (p *PostgresStore) queryTrades(ctx context.Context, op, query string, args ...interface{}) ([]*trade.Trade, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*trade.Trade
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return out, nil
}

// ListTradesByUser implements trade.Store.
func (p *PostgresStore) ListTradesByUser(ctx context.Context, userID string, limit int) ([]*trade.Trade, error) {
	return p.queryTrades(ctx, "list trades", `
		SELECT `+tradeColumns+` FROM trades
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
}

// ListExpiredTrades implements trade.Store.
func (p *PostgresStore) ListExpiredTrades(ctx context.Context, before time.Time, limit int) ([]*trade.Trade, error) {
	return p.queryTrades(ctx, "list expired trades", `
		SELECT `+tradeColumns+` FROM trades
		WHERE status = 'WAITING_PAYMENT' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, before, limit)
}

// openEscrowTotals sums the amounts of trades still holding escrow, per
// seller wallet.
func openEscrowTotals(ctx context.Context, q querier) (map[ledger.WalletKey]decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT seller_id, asset, network, account_type, SUM(amount)
		FROM trades
		WHERE status IN ('WAITING_PAYMENT', 'PAID', 'DISPUTED')
		GROUP BY seller_id, asset, network, account_type`)
	if err != nil {
		return nil, dbError("open escrow totals", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[ledger.WalletKey]decimal.Decimal)
	for rows.Next() {
		var k ledger.WalletKey
		var account string
		var sum decimal.Decimal
		if err := rows.Scan(&k.UserID, &k.Asset, &k.Network, &account, &sum); err != nil {
			return nil, dbError("open escrow totals", err)
		}
		k.Account = ledger.AccountType(account)
		out[k] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("open escrow totals", err)
	}
	return out, nil
}
