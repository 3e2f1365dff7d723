package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*ledger.Engine, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	share := ledger.NewShareLink([]byte("test-secret"), 3*24*time.Hour)
	engine := ledger.NewEngine(store, share, "http://localhost:8080")
	engine.Now = func() time.Time { return testNow }
	return engine, store
}

func startedTenant(t *testing.T, engine *ledger.Engine, id ledger.TenantID) {
	_, err := engine.StartDay(context.Background(), id, "test")
	require.NoError(t, err)
}

func op() ledger.Operator {
	return ledger.Operator{ID: 7, Name: "alice"}
}

// =============================================================================
// FEE COMPUTATION
// =============================================================================

func TestEngine_DepositFee(t *testing.T) {
	// GIVEN: rate_in = 3
	// WHEN: Recording a deposit of 1000
	// THEN: fee = 30, net = 970, and the bill reflects both

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.SetFeeRate(ctx, 1, ledger.FeeIn, "3")
	require.NoError(t, err)

	res, err := engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "1000", "")
	require.NoError(t, err)
	require.True(t, res.Recorded)

	require.Len(t, res.Bill.Deposits, 1)
	dep := res.Bill.Deposits[0]
	assert.Equal(t, "30", dep.FeeAmount.String())
	assert.Equal(t, "970", dep.NetAmount.String())
	assert.Equal(t, "1000", res.Bill.TotalInRaw.String())
	assert.Equal(t, "970", res.Bill.TotalInNet.String())
	assert.Equal(t, "970", res.Bill.Balance.String())
}

func TestEngine_PayoutFeeRecordedButNotDeducted(t *testing.T) {
	// GIVEN: rate_out = 2
	// WHEN: Recording a payout of 500
	// THEN: fee = 10 is recorded for reporting, but the balance drops by
	//       the full 500

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.SetFeeRate(ctx, 1, ledger.FeeOut, "2")
	require.NoError(t, err)

	res, err := engine.AddTransaction(ctx, 1, op(), ledger.TxPayout, "500", "")
	require.NoError(t, err)

	require.Len(t, res.Bill.Payouts, 1)
	out := res.Bill.Payouts[0]
	assert.Equal(t, "10", out.FeeAmount.String())
	assert.Equal(t, "500", out.NetAmount.String())
	assert.Equal(t, "-500", res.Bill.Balance.String())
}

func TestEngine_ReturnHasNoFee(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.SetFeeRate(ctx, 1, ledger.FeeIn, "3")
	require.NoError(t, err)

	res, err := engine.AddReturn(ctx, 1, op(), "50")
	require.NoError(t, err)

	require.Len(t, res.Bill.Returns, 1)
	assert.True(t, res.Bill.Returns[0].FeeAmount.IsZero())
	assert.Equal(t, "50", res.Bill.Balance.String())
}

func TestEngine_USDTDeposit_NetTranslated_RawPreserved(t *testing.T) {
	// GIVEN: rate_usd = 7.2, no deposit fee
	// WHEN: Recording a 100 USDT deposit
	// THEN: net is expressed in the base currency (720), the raw amount
	//       stays in USDT

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.SetForexRate(ctx, 1, "USD", "7.2")
	require.NoError(t, err)

	res, err := engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "100", ledger.SecondaryUnit)
	require.NoError(t, err)

	dep := res.Bill.Deposits[0]
	assert.Equal(t, "100", dep.AmountRaw.String())
	assert.Equal(t, ledger.SecondaryUnit, dep.Currency)
	assert.Equal(t, "720", dep.NetAmount.String())
	assert.Equal(t, "720", res.Bill.Balance.String())
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestEngine_RejectsInvalidAmounts(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	for _, bad := range []string{"0", "-5", "abc", ""} {
		_, err := engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, bad, "")
		assert.Error(t, err, "amount %q should be rejected", bad)
		assert.True(t, ledger.IsValidation(err), "amount %q should be a validation error", bad)

		var amountErr *ledger.AmountError
		assert.ErrorAs(t, err, &amountErr)
	}

	// Nothing was written
	bill, err := engine.GenerateBill(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, bill.TransactionCount())
}

// =============================================================================
// STATE GATING
// =============================================================================

func TestEngine_RecordingRequiresStartedDay(t *testing.T) {
	// GIVEN: A tenant that has never sent start
	// WHEN: Recording a deposit
	// THEN: No-op result with a prompt, no error, nothing written

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "100", "")
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.Contains(t, res.Text, "start")

	bill, err := engine.GenerateBill(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, bill.TransactionCount())
}

func TestEngine_StopDay_ArchivesAndEnds(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "100", "")
	require.NoError(t, err)

	res, err := engine.StopDay(ctx, 1, "test")
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.NotEmpty(t, res.Export, "stop returns the day snapshot")

	tenant, err := store.GetTenant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateEnded, tenant.State)

	has, err := store.HasArchive(ctx, 1, "2026-03-10", ledger.ArchiveDailySnapshot)
	require.NoError(t, err)
	assert.True(t, has)

	// Recording after the close is a no-op again
	res, err = engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "100", "")
	require.NoError(t, err)
	assert.False(t, res.Recorded)

	// A second stop has nothing to do
	res, err = engine.StopDay(ctx, 1, "test")
	require.NoError(t, err)
	assert.False(t, res.Recorded)

	// Start re-opens
	startedTenant(t, engine, 1)
	res, err = engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "100", "")
	require.NoError(t, err)
	assert.True(t, res.Recorded)
}

// =============================================================================
// RATE PROPAGATION
// =============================================================================

func TestEngine_RateChangeThenSync_StaleUntilSynced(t *testing.T) {
	// GIVEN: rate_in=3, rate_out=0; deposit 1000 (net 970), payout 500
	//        balance = 970 - 500 = 470
	// WHEN: rate_in changes to 5 and net amounts are synced
	// THEN: The deposit's fee recomputes to 50, net to 950, balance to 450

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.SetFeeRate(ctx, 1, ledger.FeeIn, "3")
	require.NoError(t, err)

	_, err = engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "1000", "")
	require.NoError(t, err)
	res, err := engine.AddTransaction(ctx, 1, op(), ledger.TxPayout, "500", "")
	require.NoError(t, err)
	assert.Equal(t, "470", res.Bill.Balance.String())

	// Rate change alone does not touch existing rows
	_, err = engine.SetFeeRate(ctx, 1, ledger.FeeIn, "5")
	require.NoError(t, err)
	bill, err := engine.GenerateBill(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "470", bill.Balance.String(), "rows are stale until sync")

	updated, err := engine.SyncNetAmounts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated, "only the deposit changes; the payout's columns are already current")

	bill, err = engine.GenerateBill(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bill.Deposits, 1)
	assert.Equal(t, "50", bill.Deposits[0].FeeAmount.String())
	assert.Equal(t, "950", bill.Deposits[0].NetAmount.String())
	assert.Equal(t, "450", bill.Balance.String())
}

func TestEngine_Sync_PreservesCorrectionZeroFee(t *testing.T) {
	// GIVEN: A deposit correction (zero fee by definition)
	// WHEN: The deposit rate changes and net amounts are synced
	// THEN: The correction keeps its zero fee; only real deposits recompute

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.SetFeeRate(ctx, 1, ledger.FeeIn, "3")
	require.NoError(t, err)

	_, err = engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "1000", "")
	require.NoError(t, err)
	_, err = engine.AddCorrection(ctx, 1, op(), ledger.TxDeposit, "200")
	require.NoError(t, err)

	_, err = engine.SetFeeRate(ctx, 1, ledger.FeeIn, "5")
	require.NoError(t, err)
	_, err = engine.SyncNetAmounts(ctx, 1)
	require.NoError(t, err)

	bill, err := engine.GenerateBill(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bill.Deposits, 2)
	for _, dep := range bill.Deposits {
		if dep.Correction {
			assert.True(t, dep.FeeAmount.IsZero())
			assert.Equal(t, "-200", dep.NetAmount.String())
		}
	}
}

// =============================================================================
// BALANCE IDENTITY
// =============================================================================

func TestEngine_BalanceIdentity_AcrossMixedOperations(t *testing.T) {
	// balance = totalInNet - totalOut + totalReturn must hold exactly
	// after any sequence of operations.

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.SetFeeRate(ctx, 1, ledger.FeeIn, "2.5")
	require.NoError(t, err)

	_, err = engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "1234.56", "")
	require.NoError(t, err)
	_, err = engine.AddTransaction(ctx, 1, op(), ledger.TxPayout, "400", "")
	require.NoError(t, err)
	_, err = engine.AddReturn(ctx, 1, op(), "99.99")
	require.NoError(t, err)
	_, err = engine.AddCorrection(ctx, 1, op(), ledger.TxPayout, "400")
	require.NoError(t, err)

	bill, err := engine.GenerateBill(ctx, 1)
	require.NoError(t, err)

	want := bill.TotalInNet.Sub(bill.TotalOut).Add(bill.TotalReturn)
	assert.True(t, bill.Balance.Equal(want),
		"balance %s != identity %s", bill.Balance, want)

	// The payout correction nets the payout to zero
	assert.True(t, bill.TotalOut.IsZero(), "corrected payout sums to zero, got %s", bill.TotalOut)
}

func TestEngine_NoDriftAcrossManyAdditions(t *testing.T) {
	// GIVEN: 10,000 deposits of 0.1 with fee 0.003 and net 0.097 each
	// WHEN: Aggregating the day
	// THEN: Totals reconcile exactly - decimal arithmetic, no float drift

	engine, store := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	amount := decimal.RequireFromString("0.1")
	feeRate := decimal.RequireFromString("3")
	fee := decimal.RequireFromString("0.003")
	net := decimal.RequireFromString("0.097")

	for i := 0; i < 10000; i++ {
		err := store.InsertTransaction(ctx, ledger.Transaction{
			ID:           fmt.Sprintf("tx-%05d", i),
			TenantID:     1,
			Type:         ledger.TxDeposit,
			AmountRaw:    amount,
			FeeRate:      feeRate,
			FeeAmount:    fee,
			NetAmount:    net,
			BusinessDate: "2026-03-10",
			RecordedAt:   testNow.Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	bill, err := engine.GenerateBill(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "1000", bill.TotalInRaw.String())
	assert.Equal(t, "970", bill.TotalInNet.String())
	assert.Equal(t, "970", bill.Balance.String())
}

// =============================================================================
// CLEAR / REPLAY
// =============================================================================

func TestEngine_ClearToday_WipesAndReplays(t *testing.T) {
	// GIVEN: A day with recorded transactions
	// WHEN: clearToday runs, then a fresh bill is generated
	// THEN: The live bill is empty, and the archived snapshot replays the
	//       pre-clear aggregate exactly

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	_, err := engine.SetFeeRate(ctx, 1, ledger.FeeIn, "3")
	require.NoError(t, err)
	_, err = engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "1000", "")
	require.NoError(t, err)
	res, err := engine.AddTransaction(ctx, 1, op(), ledger.TxPayout, "500", "")
	require.NoError(t, err)
	preClear := res.Bill.Balance

	cleared, err := engine.ClearToday(ctx, 1, "test")
	require.NoError(t, err)
	assert.Equal(t, 0, cleared.Bill.TransactionCount())
	assert.True(t, cleared.Bill.Balance.IsZero())

	// Replay from the wipe archive
	replayed, err := engine.BillForDate(ctx, 1, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, 2, replayed.TransactionCount())
	assert.True(t, replayed.Balance.Equal(preClear),
		"replayed balance %s != pre-clear %s", replayed.Balance, preClear)
}

// =============================================================================
// SHARE URL
// =============================================================================

func TestEngine_ShareURL_PresentAndVerifiable(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	startedTenant(t, engine, 1)

	res, err := engine.AddTransaction(ctx, 1, op(), ledger.TxDeposit, "100", "")
	require.NoError(t, err)

	require.NotEmpty(t, res.ShareURL)
	assert.Contains(t, res.ShareURL, "/share/1/2026-03-10?t=")

	token, err := engine.Share.Generate(1, "2026-03-10")
	require.NoError(t, err)
	assert.Contains(t, res.ShareURL, token, "same inputs yield the same token")
}
