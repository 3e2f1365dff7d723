/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  tenants:      lifecycle state, timezone, reset hour, rollover stamp
  settings:     one row per tenant, fee/FX rates and display options
  transactions: ledger rows, indexed by tenant + business date
  archives:     write-once day snapshots, unique per tenant/date/kind
  audit:        append-only audit trail

DECIMAL COLUMNS:
  All money columns are stored as decimal strings, never REAL, so repeated
  additions reconcile exactly.

TRANSACTIONS:
  WithTx runs the callback against a store view whose reads AND writes go
  through the same *sql.Tx, so a fee computation and its settings read
  commit or roll back together.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers
  don't block, single writer at a time.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

const timeLayout = time.RFC3339Nano

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id INTEGER PRIMARY KEY,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		reset_hour INTEGER NOT NULL DEFAULT 4,
		state TEXT NOT NULL DEFAULT 'WAITING_FOR_START',
		last_auto_reset TEXT,
		currency_symbol TEXT NOT NULL DEFAULT '',
		ledger_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		tenant_id INTEGER PRIMARY KEY REFERENCES tenants(id),
		rate_in TEXT NOT NULL DEFAULT '0',
		rate_out TEXT NOT NULL DEFAULT '0',
		rate_usd TEXT NOT NULL DEFAULT '0',
		rate_myr TEXT NOT NULL DEFAULT '0',
		rate_php TEXT NOT NULL DEFAULT '0',
		rate_thb TEXT NOT NULL DEFAULT '0',
		display_mode INTEGER NOT NULL DEFAULT 1,
		show_decimals BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		operator_id INTEGER NOT NULL DEFAULT 0,
		operator_name TEXT NOT NULL DEFAULT '',
		tx_type TEXT NOT NULL,
		correction BOOLEAN NOT NULL DEFAULT FALSE,
		amount_raw TEXT NOT NULL,
		fee_rate TEXT NOT NULL,
		fee_amount TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		business_date TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	-- Balance aggregation (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_tenant_date
		ON transactions(tenant_id, business_date);
	CREATE INDEX IF NOT EXISTS idx_transactions_business_date
		ON transactions(business_date);

	CREATE TABLE IF NOT EXISTS archives (
		id TEXT PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		business_date TEXT NOT NULL,
		kind TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(tenant_id, business_date, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_archives_business_date
		ON archives(business_date);

	CREATE TABLE IF NOT EXISTS audit (
		id TEXT PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_created_at
		ON audit(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query can run
// either standalone or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TENANTS
// =============================================================================

func (s *Store) EnsureTenant(ctx context.Context, id ledger.TenantID, timezone string) (*ledger.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureTenant(ctx, s.db, id, timezone)
}

func (s *Store) ensureTenant(ctx context.Context, db dbtx, id ledger.TenantID, timezone string) (*ledger.Tenant, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO tenants (id, timezone, reset_hour, state, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, timezone, ledger.DefaultResetHour, ledger.StateWaitingForStart,
		time.Now().UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure tenant: %w", err)
	}
	return s.getTenant(ctx, db, id)
}

func (s *Store) GetTenant(ctx context.Context, id ledger.TenantID) (*ledger.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTenant(ctx, s.db, id)
}

func (s *Store) getTenant(ctx context.Context, db dbtx, id ledger.TenantID) (*ledger.Tenant, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, timezone, reset_hour, state, last_auto_reset, currency_symbol, ledger_enabled, created_at
		FROM tenants WHERE id = ?
	`, id)
	return scanTenant(row)
}

func scanTenant(row *sql.Row) (*ledger.Tenant, error) {
	var (
		t             ledger.Tenant
		lastAutoReset sql.NullString
		createdAt     string
	)
	err := row.Scan(&t.ID, &t.Timezone, &t.ResetHour, &t.State,
		&lastAutoReset, &t.CurrencySymbol, &t.LedgerEnabled, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	if lastAutoReset.Valid {
		if at, err := time.Parse(timeLayout, lastAutoReset.String); err == nil {
			t.LastAutoReset = &at
		}
	}
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &t, nil
}

func (s *Store) ListActiveTenants(ctx context.Context) ([]ledger.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timezone, reset_hour, state, last_auto_reset, currency_symbol, ledger_enabled, created_at
		FROM tenants ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []ledger.Tenant
	for rows.Next() {
		var (
			t             ledger.Tenant
			lastAutoReset sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&t.ID, &t.Timezone, &t.ResetHour, &t.State,
			&lastAutoReset, &t.CurrencySymbol, &t.LedgerEnabled, &createdAt); err != nil {
			return nil, err
		}
		if lastAutoReset.Valid {
			if at, err := time.Parse(timeLayout, lastAutoReset.String); err == nil {
				t.LastAutoReset = &at
			}
		}
		t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) UpdateTenantState(ctx context.Context, id ledger.TenantID, state ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTenantState(ctx, s.db, id, state)
}

func (s *Store) updateTenantState(ctx context.Context, db dbtx, id ledger.TenantID, state ledger.State) error {
	res, err := db.ExecContext(ctx, `UPDATE tenants SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrTenantNotFound
	}
	return nil
}

func (s *Store) StampAutoReset(ctx context.Context, id ledger.TenantID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stampAutoReset(ctx, s.db, id, at)
}

func (s *Store) stampAutoReset(ctx context.Context, db dbtx, id ledger.TenantID, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE tenants SET last_auto_reset = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrTenantNotFound
	}
	return nil
}

// SetTenantConfig updates timezone, reset hour, currency symbol, and the
// ledger feature flag. Used by the command layer's tenant configuration.
func (s *Store) SetTenantConfig(ctx context.Context, id ledger.TenantID, timezone string, resetHour int, symbol string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET timezone = ?, reset_hour = ?, currency_symbol = ?, ledger_enabled = ?
		WHERE id = ?
	`, timezone, resetHour, symbol, enabled, id)
	return err
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Store) EnsureSettings(ctx context.Context, id ledger.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureSettings(ctx, s.db, id)
}

func (s *Store) ensureSettings(ctx context.Context, db dbtx, id ledger.TenantID) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (tenant_id, updated_at) VALUES (?, ?)
		ON CONFLICT(tenant_id) DO NOTHING
	`, id, time.Now().UTC().Format(timeLayout))
	return err
}

func (s *Store) GetSettings(ctx context.Context, id ledger.TenantID) (*ledger.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSettings(ctx, s.db, id)
}

func (s *Store) getSettings(ctx context.Context, db dbtx, id ledger.TenantID) (*ledger.Settings, error) {
	var (
		set       ledger.Settings
		rateIn    string
		rateOut   string
		rateUSD   string
		rateMYR   string
		ratePHP   string
		rateTHB   string
		updatedAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT tenant_id, rate_in, rate_out, rate_usd, rate_myr, rate_php, rate_thb,
		       display_mode, show_decimals, updated_at
		FROM settings WHERE tenant_id = ?
	`, id).Scan(&set.TenantID, &rateIn, &rateOut, &rateUSD, &rateMYR, &ratePHP, &rateTHB,
		&set.DisplayMode, &set.ShowDecimals, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan settings: %w", err)
	}

	set.RateIn = parseDec(rateIn)
	set.RateOut = parseDec(rateOut)
	set.RateUSD = parseDec(rateUSD)
	set.RateMYR = parseDec(rateMYR)
	set.RatePHP = parseDec(ratePHP)
	set.RateTHB = parseDec(rateTHB)
	set.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &set, nil
}

func (s *Store) SetFeeRate(ctx context.Context, id ledger.TenantID, dir ledger.FeeDirection, rate decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSettingsColumn(ctx, s.db, id, feeColumn(dir), rate.String())
}

func (s *Store) SetForexRate(ctx context.Context, id ledger.TenantID, code string, rate decimal.Decimal) error {
	column, err := forexColumn(code)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSettingsColumn(ctx, s.db, id, column, rate.String())
}

func (s *Store) SetDisplayMode(ctx context.Context, id ledger.TenantID, mode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSettingsColumn(ctx, s.db, id, "display_mode", mode)
}

func (s *Store) SetDecimals(ctx context.Context, id ledger.TenantID, show bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSettingsColumn(ctx, s.db, id, "show_decimals", show)
}

// updateSettingsColumn is last-write-wins per column; no optimistic
// concurrency control by contract.
func (s *Store) updateSettingsColumn(ctx context.Context, db dbtx, id ledger.TenantID, column string, value any) error {
	query := fmt.Sprintf(`UPDATE settings SET %s = ?, updated_at = ? WHERE tenant_id = ?`, column)
	res, err := db.ExecContext(ctx, query, value, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrSettingsNotFound
	}
	return nil
}

func feeColumn(dir ledger.FeeDirection) string {
	if dir == ledger.FeeOut {
		return "rate_out"
	}
	return "rate_in"
}

func forexColumn(code string) (string, error) {
	switch code {
	case ledger.CurrencyUSD:
		return "rate_usd", nil
	case ledger.CurrencyMYR:
		return "rate_myr", nil
	case ledger.CurrencyPHP:
		return "rate_php", nil
	case ledger.CurrencyTHB:
		return "rate_thb", nil
	}
	return "", fmt.Errorf("%w: %s", ledger.ErrUnknownCurrency, code)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTransaction(ctx, s.db, tx)
}

func (s *Store) insertTransaction(ctx context.Context, db dbtx, tx ledger.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, tenant_id, operator_id, operator_name, tx_type, correction,
		 amount_raw, fee_rate, fee_amount, net_amount, currency, business_date, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID, tx.TenantID, tx.OperatorID, tx.OperatorName, tx.Type, tx.Correction,
		tx.AmountRaw.String(), tx.FeeRate.String(), tx.FeeAmount.String(), tx.NetAmount.String(),
		tx.Currency, tx.BusinessDate, tx.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *Store) TransactionsForDate(ctx context.Context, id ledger.TenantID, businessDate string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transactionsForDate(ctx, s.db, id, businessDate)
}

func (s *Store) transactionsForDate(ctx context.Context, db dbtx, id ledger.TenantID, businessDate string) ([]ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, operator_id, operator_name, tx_type, correction,
		       amount_raw, fee_rate, fee_amount, net_amount, currency, business_date, recorded_at
		FROM transactions
		WHERE tenant_id = ? AND business_date = ?
		ORDER BY recorded_at ASC, rowid ASC
	`, id, businessDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx         ledger.Transaction
			amountRaw  string
			feeRate    string
			feeAmount  string
			netAmount  string
			recordedAt string
		)
		if err := rows.Scan(&tx.ID, &tx.TenantID, &tx.OperatorID, &tx.OperatorName,
			&tx.Type, &tx.Correction, &amountRaw, &feeRate, &feeAmount, &netAmount,
			&tx.Currency, &tx.BusinessDate, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.AmountRaw = parseDec(amountRaw)
		tx.FeeRate = parseDec(feeRate)
		tx.FeeAmount = parseDec(feeAmount)
		tx.NetAmount = parseDec(netAmount)
		tx.RecordedAt, _ = time.Parse(timeLayout, recordedAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) UpdateTransactionAmounts(ctx context.Context, txID string, feeRate, feeAmount, netAmount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTransactionAmounts(ctx, s.db, txID, feeRate, feeAmount, netAmount)
}

func (s *Store) updateTransactionAmounts(ctx context.Context, db dbtx, txID string, feeRate, feeAmount, netAmount decimal.Decimal) error {
	_, err := db.ExecContext(ctx, `
		UPDATE transactions SET fee_rate = ?, fee_amount = ?, net_amount = ?
		WHERE id = ?
	`, feeRate.String(), feeAmount.String(), netAmount.String(), txID)
	return err
}

func (s *Store) DeleteTransactionsForDate(ctx context.Context, id ledger.TenantID, businessDate string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteTransactionsForDate(ctx, s.db, id, businessDate)
}

func (s *Store) deleteTransactionsForDate(ctx context.Context, db dbtx, id ledger.TenantID, businessDate string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM transactions WHERE tenant_id = ? AND business_date = ?`,
		id, businessDate)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// ARCHIVES
// =============================================================================

func (s *Store) SaveArchive(ctx context.Context, a ledger.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveArchive(ctx, s.db, a)
}

func (s *Store) saveArchive(ctx context.Context, db dbtx, a ledger.Archive) error {
	// A repeated wipe on the same date replaces the earlier snapshot.
	_, err := db.ExecContext(ctx, `
		INSERT INTO archives (id, tenant_id, business_date, kind, snapshot_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, business_date, kind) DO UPDATE SET
			snapshot_json = excluded.snapshot_json,
			created_at = excluded.created_at
	`, a.ID, a.TenantID, a.BusinessDate, a.Kind, a.SnapshotJSON,
		a.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (s *Store) GetArchive(ctx context.Context, id ledger.TenantID, businessDate string, kind ledger.ArchiveKind) (*ledger.Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getArchive(ctx, s.db, id, businessDate, kind)
}

func (s *Store) getArchive(ctx context.Context, db dbtx, id ledger.TenantID, businessDate string, kind ledger.ArchiveKind) (*ledger.Archive, error) {
	var (
		a         ledger.Archive
		createdAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, business_date, kind, snapshot_json, created_at
		FROM archives WHERE tenant_id = ? AND business_date = ? AND kind = ?
	`, id, businessDate, kind).Scan(&a.ID, &a.TenantID, &a.BusinessDate, &a.Kind, &a.SnapshotJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &a, nil
}

func (s *Store) HasArchive(ctx context.Context, id ledger.TenantID, businessDate string, kind ledger.ArchiveKind) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasArchive(ctx, s.db, id, businessDate, kind)
}

func (s *Store) hasArchive(ctx context.Context, db dbtx, id ledger.TenantID, businessDate string, kind ledger.ArchiveKind) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archives WHERE tenant_id = ? AND business_date = ? AND kind = ?`,
		id, businessDate, kind).Scan(&count)
	return count > 0, err
}

// =============================================================================
// AUDIT
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAudit(ctx, s.db, e)
}

func (s *Store) appendAudit(ctx context.Context, db dbtx, e ledger.AuditEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit (id, tenant_id, actor, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.TenantID, e.Actor, e.Action, e.Detail, e.CreatedAt.UTC().Format(timeLayout))
	return err
}

// =============================================================================
// RETENTION
// =============================================================================

func (s *Store) PurgeBefore(ctx context.Context, cutoffDate string, cutoffTime time.Time) (ledger.PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ledger.PurgeResult

	r, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE business_date < ?`, cutoffDate)
	if err != nil {
		return res, fmt.Errorf("failed to purge transactions: %w", err)
	}
	res.Transactions, _ = r.RowsAffected()

	r, err = s.db.ExecContext(ctx, `DELETE FROM archives WHERE business_date < ?`, cutoffDate)
	if err != nil {
		return res, fmt.Errorf("failed to purge archives: %w", err)
	}
	res.Archives, _ = r.RowsAffected()

	r, err = s.db.ExecContext(ctx, `DELETE FROM audit WHERE created_at < ?`,
		cutoffTime.UTC().Format(timeLayout))
	if err != nil {
		return res, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	res.AuditEntries, _ = r.RowsAffected()

	return res, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The callback's
// store view routes reads and writes through the same *sql.Tx.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transaction-scoped view handed to WithTx callbacks.
// It must not re-acquire the parent mutex: WithTx already holds it.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) EnsureTenant(ctx context.Context, id ledger.TenantID, timezone string) (*ledger.Tenant, error) {
	return ts.parent.ensureTenant(ctx, ts.tx, id, timezone)
}

func (ts *txStore) GetTenant(ctx context.Context, id ledger.TenantID) (*ledger.Tenant, error) {
	return ts.parent.getTenant(ctx, ts.tx, id)
}

func (ts *txStore) ListActiveTenants(ctx context.Context) ([]ledger.Tenant, error) {
	return nil, fmt.Errorf("ListActiveTenants is not available inside a transaction")
}

func (ts *txStore) UpdateTenantState(ctx context.Context, id ledger.TenantID, state ledger.State) error {
	return ts.parent.updateTenantState(ctx, ts.tx, id, state)
}

func (ts *txStore) StampAutoReset(ctx context.Context, id ledger.TenantID, at time.Time) error {
	return ts.parent.stampAutoReset(ctx, ts.tx, id, at)
}

func (ts *txStore) EnsureSettings(ctx context.Context, id ledger.TenantID) error {
	return ts.parent.ensureSettings(ctx, ts.tx, id)
}

func (ts *txStore) GetSettings(ctx context.Context, id ledger.TenantID) (*ledger.Settings, error) {
	return ts.parent.getSettings(ctx, ts.tx, id)
}

func (ts *txStore) SetFeeRate(ctx context.Context, id ledger.TenantID, dir ledger.FeeDirection, rate decimal.Decimal) error {
	return ts.parent.updateSettingsColumn(ctx, ts.tx, id, feeColumn(dir), rate.String())
}

func (ts *txStore) SetForexRate(ctx context.Context, id ledger.TenantID, code string, rate decimal.Decimal) error {
	column, err := forexColumn(code)
	if err != nil {
		return err
	}
	return ts.parent.updateSettingsColumn(ctx, ts.tx, id, column, rate.String())
}

func (ts *txStore) SetDisplayMode(ctx context.Context, id ledger.TenantID, mode int) error {
	return ts.parent.updateSettingsColumn(ctx, ts.tx, id, "display_mode", mode)
}

func (ts *txStore) SetDecimals(ctx context.Context, id ledger.TenantID, show bool) error {
	return ts.parent.updateSettingsColumn(ctx, ts.tx, id, "show_decimals", show)
}

func (ts *txStore) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return ts.parent.insertTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) TransactionsForDate(ctx context.Context, id ledger.TenantID, businessDate string) ([]ledger.Transaction, error) {
	return ts.parent.transactionsForDate(ctx, ts.tx, id, businessDate)
}

func (ts *txStore) UpdateTransactionAmounts(ctx context.Context, txID string, feeRate, feeAmount, netAmount decimal.Decimal) error {
	return ts.parent.updateTransactionAmounts(ctx, ts.tx, txID, feeRate, feeAmount, netAmount)
}

func (ts *txStore) DeleteTransactionsForDate(ctx context.Context, id ledger.TenantID, businessDate string) (int64, error) {
	return ts.parent.deleteTransactionsForDate(ctx, ts.tx, id, businessDate)
}

func (ts *txStore) SaveArchive(ctx context.Context, a ledger.Archive) error {
	return ts.parent.saveArchive(ctx, ts.tx, a)
}

func (ts *txStore) GetArchive(ctx context.Context, id ledger.TenantID, businessDate string, kind ledger.ArchiveKind) (*ledger.Archive, error) {
	return ts.parent.getArchive(ctx, ts.tx, id, businessDate, kind)
}

func (ts *txStore) HasArchive(ctx context.Context, id ledger.TenantID, businessDate string, kind ledger.ArchiveKind) (bool, error) {
	return ts.parent.hasArchive(ctx, ts.tx, id, businessDate, kind)
}

func (ts *txStore) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	return ts.parent.appendAudit(ctx, ts.tx, e)
}

func (ts *txStore) PurgeBefore(ctx context.Context, cutoffDate string, cutoffTime time.Time) (ledger.PurgeResult, error) {
	return ledger.PurgeResult{}, fmt.Errorf("PurgeBefore is not available inside a transaction")
}

// Helper functions

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
