package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestStore_EnsureTenant_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t1, err := store.EnsureTenant(ctx, 1, "Asia/Singapore")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Singapore", t1.Timezone)
	assert.Equal(t, ledger.DefaultResetHour, t1.ResetHour)
	assert.Equal(t, ledger.StateWaitingForStart, t1.State)

	// A repeat with a different timezone does not overwrite the row
	t2, err := store.EnsureTenant(ctx, 1, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Singapore", t2.Timezone)
}

func TestStore_SetTenantConfig_AndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTenant(ctx, 1, "UTC")
	require.NoError(t, err)
	_, err = store.EnsureTenant(ctx, 2, "UTC")
	require.NoError(t, err)

	require.NoError(t, store.SetTenantConfig(ctx, 2, "Asia/Singapore", 6, "$", false))

	tenants, err := store.ListActiveTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "Asia/Singapore", tenants[1].Timezone)
	assert.Equal(t, 6, tenants[1].ResetHour)
	assert.Equal(t, "$", tenants[1].CurrencySymbol)
	assert.False(t, tenants[1].LedgerEnabled)
}

func TestStore_SettingsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTenant(ctx, 1, "UTC")
	require.NoError(t, err)
	require.NoError(t, store.EnsureSettings(ctx, 1))

	require.NoError(t, store.SetFeeRate(ctx, 1, ledger.FeeIn, dec("2.5")))
	require.NoError(t, store.SetForexRate(ctx, 1, ledger.CurrencyMYR, dec("4.7")))
	require.NoError(t, store.SetDisplayMode(ctx, 1, ledger.DisplayModeFull))
	require.NoError(t, store.SetDecimals(ctx, 1, true))

	s, err := store.GetSettings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2.5", s.RateIn.String())
	assert.Equal(t, "4.7", s.RateMYR.String())
	assert.Equal(t, ledger.DisplayModeFull, s.DisplayMode)
	assert.True(t, s.ShowDecimals)

	// Decimal strings survive exactly, no float involved
	require.NoError(t, store.SetForexRate(ctx, 1, ledger.CurrencyUSD, dec("7.123456789")))
	s, err = store.GetSettings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "7.123456789", s.RateUSD.String())
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTenant(ctx, 1, "UTC")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.InsertTransaction(ctx, ledger.Transaction{
			ID: "tx-1", TenantID: 1, Type: ledger.TxDeposit,
			AmountRaw: dec("100"), FeeRate: decimal.Zero,
			FeeAmount: decimal.Zero, NetAmount: dec("100"),
			BusinessDate: "2026-03-10", RecordedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	txs, err := store.TransactionsForDate(ctx, 1, "2026-03-10")
	require.NoError(t, err)
	assert.Empty(t, txs, "rolled-back insert must not be visible")
}

func TestStore_WithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTenant(ctx, 1, "UTC")
	require.NoError(t, err)

	err = store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.InsertTransaction(ctx, ledger.Transaction{
			ID: "tx-1", TenantID: 1, Type: ledger.TxDeposit,
			AmountRaw: dec("100"), FeeRate: decimal.Zero,
			FeeAmount: decimal.Zero, NetAmount: dec("100"),
			BusinessDate: "2026-03-10", RecordedAt: time.Now(),
		}); err != nil {
			return err
		}
		txs, err := s.TransactionsForDate(ctx, 1, "2026-03-10")
		if err != nil {
			return err
		}
		require.Len(t, txs, 1, "reads inside the transaction see its writes")
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ArchiveUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureTenant(ctx, 1, "UTC")
	require.NoError(t, err)

	first := ledger.Archive{
		ID: "a-1", TenantID: 1, BusinessDate: "2026-03-10",
		Kind: ledger.ArchiveWipe, SnapshotJSON: `{"v":1}`, CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveArchive(ctx, first))

	// A second wipe on the same date replaces the snapshot
	second := first
	second.ID = "a-2"
	second.SnapshotJSON = `{"v":2}`
	require.NoError(t, store.SaveArchive(ctx, second))

	got, err := store.GetArchive(ctx, 1, "2026-03-10", ledger.ArchiveWipe)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"v":2}`, got.SnapshotJSON)
}

func TestStore_PurgeBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 11, 4, 0, 0, 0, time.UTC)

	_, err := store.EnsureTenant(ctx, 1, "UTC")
	require.NoError(t, err)

	insert := func(id, date string) {
		require.NoError(t, store.InsertTransaction(ctx, ledger.Transaction{
			ID: id, TenantID: 1, Type: ledger.TxDeposit,
			AmountRaw: dec("1"), FeeRate: decimal.Zero,
			FeeAmount: decimal.Zero, NetAmount: dec("1"),
			BusinessDate: date, RecordedAt: now,
		}))
	}
	insert("old", "2026-03-05")
	insert("new", "2026-03-10")

	require.NoError(t, store.AppendAudit(ctx, ledger.AuditEntry{
		ID: "au-old", TenantID: 1, Action: ledger.AuditDayStarted,
		CreatedAt: now.AddDate(0, 0, -6),
	}))
	require.NoError(t, store.AppendAudit(ctx, ledger.AuditEntry{
		ID: "au-new", TenantID: 1, Action: ledger.AuditDayStarted,
		CreatedAt: now.Add(-time.Hour),
	}))

	res, err := store.PurgeBefore(ctx, "2026-03-08", now.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Transactions)
	assert.Equal(t, int64(1), res.AuditEntries)

	kept, err := store.TransactionsForDate(ctx, 1, "2026-03-10")
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	gone, err := store.TransactionsForDate(ctx, 1, "2026-03-05")
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestStore_GetTenant_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTenant(context.Background(), 99)
	assert.ErrorIs(t, err, ledger.ErrTenantNotFound)
}
