/*
store.go - Persistence interfaces for tenants, settings, transactions,
archives, and audit entries

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

OWNERSHIP:
  The engine exclusively owns transaction and archive lifecycle. The
  scheduler only triggers engine operations; it never mutates transaction
  rows directly.

MUTATION CONTRACT:
  Settings setters are last-write-wins per column. They never touch
  existing transaction rows - retroactive application is the engine's
  explicit SyncNetAmounts step. UpdateTransactionAmounts exists solely
  for that recomputation; AmountRaw and Currency are immutable once
  written.

ENSURE SEMANTICS:
  EnsureTenant and EnsureSettings are insert-if-absent, safe for repeated
  concurrent calls (upsert with "do nothing" on conflict).

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - ledger/store: in-memory for testing

SEE ALSO:
  - engine.go: the only writer of transactions and archives
  - chronos: reads tenants, stamps last_auto_reset, purges by retention
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence for all ledger state.
type Store interface {
	// ---- tenants ----

	// EnsureTenant creates the tenant row with defaults if absent and
	// returns the current row. Idempotent.
	EnsureTenant(ctx context.Context, id TenantID, timezone string) (*Tenant, error)

	// GetTenant returns the tenant or ErrTenantNotFound.
	GetTenant(ctx context.Context, id TenantID) (*Tenant, error)

	// ListActiveTenants returns every tenant the scheduler must consider.
	ListActiveTenants(ctx context.Context) ([]Tenant, error)

	// UpdateTenantState moves the tenant's lifecycle state.
	UpdateTenantState(ctx context.Context, id TenantID, state State) error

	// StampAutoReset records when the scheduler last closed this tenant's
	// day. Written only after the costly work completes - it is the
	// advisory same-day guard, not a lock.
	StampAutoReset(ctx context.Context, id TenantID, at time.Time) error

	// ---- settings ----

	// EnsureSettings creates the settings row with defaults if absent.
	// Idempotent.
	EnsureSettings(ctx context.Context, id TenantID) error

	// GetSettings returns the settings row or ErrSettingsNotFound.
	GetSettings(ctx context.Context, id TenantID) (*Settings, error)

	// SetFeeRate updates one fee column.
	SetFeeRate(ctx context.Context, id TenantID, dir FeeDirection, rate decimal.Decimal) error

	// SetForexRate updates one FX column. Zero is the "disable" signal,
	// not an error.
	SetForexRate(ctx context.Context, id TenantID, code string, rate decimal.Decimal) error

	// SetDisplayMode updates the bill rendering mode.
	SetDisplayMode(ctx context.Context, id TenantID, mode int) error

	// SetDecimals toggles decimal rendering.
	SetDecimals(ctx context.Context, id TenantID, show bool) error

	// ---- transactions ----

	// InsertTransaction appends one ledger row.
	InsertTransaction(ctx context.Context, tx Transaction) error

	// TransactionsForDate returns the tenant's rows for one business date,
	// ordered by RecordedAt.
	TransactionsForDate(ctx context.Context, id TenantID, businessDate string) ([]Transaction, error)

	// UpdateTransactionAmounts rewrites the derived fee/net columns of one
	// row. Only SyncNetAmounts may call this.
	UpdateTransactionAmounts(ctx context.Context, txID string, feeRate, feeAmount, netAmount decimal.Decimal) error

	// DeleteTransactionsForDate removes a day's rows after archival.
	DeleteTransactionsForDate(ctx context.Context, id TenantID, businessDate string) (int64, error)

	// ---- archives ----

	// SaveArchive persists a write-once day snapshot.
	SaveArchive(ctx context.Context, a Archive) error

	// GetArchive returns the snapshot for tenant+date+kind, nil if absent.
	GetArchive(ctx context.Context, id TenantID, businessDate string, kind ArchiveKind) (*Archive, error)

	// HasArchive reports whether a snapshot of the given kind exists.
	HasArchive(ctx context.Context, id TenantID, businessDate string, kind ArchiveKind) (bool, error)

	// ---- audit ----

	// AppendAudit records one audit entry. Append-only.
	AppendAudit(ctx context.Context, e AuditEntry) error

	// ---- retention ----

	// PurgeBefore deletes transactions and archives with a business date
	// before cutoffDate and audit entries created before cutoffTime.
	PurgeBefore(ctx context.Context, cutoffDate string, cutoffTime time.Time) (PurgeResult, error)
}

// PurgeResult reports what a retention sweep removed.
type PurgeResult struct {
	Transactions int64
	Archives     int64
	AuditEntries int64
}

// TxStore wraps Store with transaction support. Ledger mutations acquire
// one transactional scope for the duration of the operation, released on
// all exit paths.
type TxStore interface {
	Store

	// WithTx executes fn within a database transaction. If fn returns an
	// error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
