/*
engine.go - Ledger transaction engine

PURPOSE:
  Records deposits, payouts, returns, and corrections for a tenant's
  current business date, applies fee and FX rates, and renders bills.
  Also owns the day lifecycle: start, stop, clear, and the close-out the
  scheduler triggers.

ATOMICITY:
  Every recording operation reads settings, computes fees, and inserts
  inside one store transaction, so a concurrent settings change cannot
  produce a half-applied fee. The transactional scope is released on all
  exit paths.

DERIVED AMOUNTS:
  FeeRate/FeeAmount/NetAmount are projections of the settings at the last
  recomputation. A mid-day rate change leaves existing rows stale until
  SyncNetAmounts runs - that bulk recompute is deliberately NOT atomic
  with the settings change. SyncNetAmounts racing a concurrent insert is
  a known, documented gap: the fresh row lands with whichever rates its
  own transaction read.

ILLEGAL-STATE RECORDING:
  Recording while the tenant is not in RECORDING returns a no-op Result
  with a "start the day" prompt rather than an error. A conversational
  caller relays the prompt; nothing is written.

SEE ALSO:
  - bill.go: aggregation and rendering
  - chronos: calls CloseDay on the rollover tick
*/
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operator identifies the authorized user recording a transaction.
type Operator struct {
	ID   int64
	Name string
}

// Result is what a ledger operation hands back to the command layer.
type Result struct {
	Recorded bool   // false for illegal-state no-ops
	Text     string // rendered bill or prompt
	ShareURL string // set when the day has at least one transaction
	Export   []byte // day snapshot, set by StopDay/CloseDay
	Bill     *Bill
}

// CloseTrigger distinguishes a manual stop from the scheduler's rollover.
type CloseTrigger string

const (
	CloseManual CloseTrigger = "manual"
	CloseAuto   CloseTrigger = "auto"
)

// Engine is the ledger transaction engine. It exclusively owns transaction
// and archive lifecycle; the scheduler only invokes its operations.
type Engine struct {
	Store   TxStore
	Cache   *SettingsCache
	Share   *ShareLink
	BaseURL string
	Now     func() time.Time
}

func NewEngine(store TxStore, share *ShareLink, baseURL string) *Engine {
	return &Engine{
		Store:   store,
		Cache:   NewSettingsCache(store, 0),
		Share:   share,
		BaseURL: baseURL,
		Now:     time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// =============================================================================
// RECORDING OPERATIONS
// =============================================================================

// AddTransaction validates and records one transaction, returning the
// rendered bill. Amounts must parse as positive decimals; anything else
// is rejected before any write.
func (e *Engine) AddTransaction(ctx context.Context, id TenantID, op Operator, typ TxType, amountStr, currency string) (*Result, error) {
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}
	return e.record(ctx, id, op, typ, amount, currency, false)
}

// AddCorrection records a negated same-type row with zero fee, voiding a
// prior entry without deleting history.
func (e *Engine) AddCorrection(ctx context.Context, id TenantID, op Operator, typ TxType, amountStr string) (*Result, error) {
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}
	return e.record(ctx, id, op, typ, amount.Neg(), "", true)
}

// AddReturn records a fee-free RETURN that adds to the balance.
func (e *Engine) AddReturn(ctx context.Context, id TenantID, op Operator, amountStr string) (*Result, error) {
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}
	return e.record(ctx, id, op, TxReturn, amount, "", false)
}

func (e *Engine) record(ctx context.Context, id TenantID, op Operator, typ TxType, amount decimal.Decimal, currency string, correction bool) (*Result, error) {
	if typ != TxDeposit && typ != TxPayout && typ != TxReturn {
		return nil, fmt.Errorf("unknown transaction type %q", typ)
	}

	tenant, err := e.Store.EnsureTenant(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if !tenant.State.CanRecord() {
		return &Result{Recorded: false, Text: "Day not started. Send start to begin recording."}, nil
	}

	now := e.now()
	date := BusinessDate(tenant.Timezone, tenant.ResetHour, now)

	err = e.Store.WithTx(ctx, func(s Store) error {
		if err := s.EnsureSettings(ctx, id); err != nil {
			return err
		}
		settings, err := s.GetSettings(ctx, id)
		if err != nil {
			return err
		}

		feeRate, feeAmount, netAmount := computeAmounts(typ, correction, amount, currency, settings)

		tx := Transaction{
			ID:           uuid.NewString(),
			TenantID:     id,
			OperatorID:   op.ID,
			OperatorName: op.Name,
			Type:         typ,
			Correction:   correction,
			AmountRaw:    amount,
			FeeRate:      feeRate,
			FeeAmount:    feeAmount,
			NetAmount:    netAmount,
			Currency:     currency,
			BusinessDate: date,
			RecordedAt:   now,
		}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return err
		}

		action := AuditTransactionRecorded
		if correction {
			action = AuditCorrectionRecorded
		}
		return s.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			TenantID:  id,
			Actor:     op.Name,
			Action:    action,
			Detail:    fmt.Sprintf("%s %s %s", typ, amount.String(), currency),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	bill, err := e.GenerateBill(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &Result{Recorded: true, Text: bill.Render(), Bill: bill}
	res.ShareURL = e.shareURL(bill)
	return res, nil
}

// computeAmounts derives the fee and net columns for one row.
//
// DEPOSIT: fee = amount * rate_in / 100, net = amount - fee.
// PAYOUT:  fee = amount * rate_out / 100, but net = amount - the fee is
// recorded for reporting while the payout reduces the balance by its full
// face value.
// RETURN and corrections carry no fee.
//
// A secondary-unit amount has its net translated into the base currency
// when the USD rate is configured; the raw amount stays in its own unit.
func computeAmounts(typ TxType, correction bool, amount decimal.Decimal, currency string, s *Settings) (feeRate, feeAmount, netAmount decimal.Decimal) {
	feeRate = decimal.Zero
	feeAmount = decimal.Zero
	netAmount = amount

	if !correction {
		switch typ {
		case TxDeposit:
			feeRate = s.RateIn
			feeAmount = amount.Mul(feeRate).Shift(-2)
			netAmount = amount.Sub(feeAmount)
		case TxPayout:
			feeRate = s.RateOut
			feeAmount = amount.Mul(feeRate).Shift(-2)
			netAmount = amount
		}
	}

	if currency == SecondaryUnit && s.RateUSD.IsPositive() {
		netAmount = netAmount.Mul(s.RateUSD)
	}
	return feeRate, feeAmount, netAmount
}

func parseAmount(input string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, &AmountError{Input: input}
	}
	return d, nil
}

// =============================================================================
// RATE PROPAGATION
// =============================================================================

// SyncNetAmounts recomputes the derived columns of every transaction in
// the tenant's current business date from the current settings. Callers
// that change a fee or FX rate mid-day invoke this explicitly to apply
// the new rate retroactively. Returns the number of rows recomputed.
func (e *Engine) SyncNetAmounts(ctx context.Context, id TenantID) (int, error) {
	tenant, err := e.Store.GetTenant(ctx, id)
	if err != nil {
		return 0, err
	}
	now := e.now()
	date := BusinessDate(tenant.Timezone, tenant.ResetHour, now)

	count := 0
	err = e.Store.WithTx(ctx, func(s Store) error {
		settings, err := s.GetSettings(ctx, id)
		if err != nil {
			return err
		}
		txs, err := s.TransactionsForDate(ctx, id, date)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			feeRate, feeAmount, netAmount := computeAmounts(tx.Type, tx.Correction, tx.AmountRaw, tx.Currency, settings)
			if feeRate.Equal(tx.FeeRate) && feeAmount.Equal(tx.FeeAmount) && netAmount.Equal(tx.NetAmount) {
				continue
			}
			if err := s.UpdateTransactionAmounts(ctx, tx.ID, feeRate, feeAmount, netAmount); err != nil {
				return err
			}
			count++
		}
		return s.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			TenantID:  id,
			Actor:     "system",
			Action:    AuditNetAmountsSynced,
			Detail:    fmt.Sprintf("%d rows recomputed for %s", count, date),
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// =============================================================================
// BILLS
// =============================================================================

// GenerateBill aggregates the current business date in the tenant's
// configured display mode.
func (e *Engine) GenerateBill(ctx context.Context, id TenantID) (*Bill, error) {
	return e.GenerateBillWithMode(ctx, id, 0)
}

// GenerateBillWithMode aggregates the current business date, overriding
// the display mode when mode is 1, 4, or 5.
func (e *Engine) GenerateBillWithMode(ctx context.Context, id TenantID, mode int) (*Bill, error) {
	tenant, err := e.Store.EnsureTenant(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if err := e.Store.EnsureSettings(ctx, id); err != nil {
		return nil, err
	}
	settings, err := e.Store.GetSettings(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.now()
	date := BusinessDate(tenant.Timezone, tenant.ResetHour, now)
	txs, err := e.Store.TransactionsForDate(ctx, id, date)
	if err != nil {
		return nil, err
	}

	bill := Aggregate(id, date, txs, settings, now)
	bill.CurrencySymbol = tenant.CurrencySymbol
	switch mode {
	case DisplayModeRecent, DisplayModeSummary, DisplayModeFull:
		bill.Mode = mode
	}
	return bill, nil
}

// BillForDate aggregates an arbitrary business date - live rows if the
// date is still current, otherwise the archived snapshot. Used by the
// share-view surface.
func (e *Engine) BillForDate(ctx context.Context, id TenantID, date string) (*Bill, error) {
	tenant, err := e.Store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := e.Store.GetSettings(ctx, id)
	if err != nil {
		return nil, err
	}

	txs, err := e.Store.TransactionsForDate(ctx, id, date)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		if archived, err := e.replayArchive(ctx, id, date); err == nil && archived != nil {
			txs = archived
		}
	}

	bill := Aggregate(id, date, txs, settings, e.now())
	bill.CurrencySymbol = tenant.CurrencySymbol
	return bill, nil
}

func (e *Engine) replayArchive(ctx context.Context, id TenantID, date string) ([]Transaction, error) {
	for _, kind := range []ArchiveKind{ArchiveDailySnapshot, ArchiveWipe} {
		a, err := e.Store.GetArchive(ctx, id, date, kind)
		if err != nil {
			return nil, err
		}
		if a == nil {
			continue
		}
		var snap DaySnapshot
		if err := json.Unmarshal([]byte(a.SnapshotJSON), &snap); err != nil {
			return nil, err
		}
		return snap.Transactions, nil
	}
	return nil, nil
}

func (e *Engine) shareURL(bill *Bill) string {
	if e.Share == nil || bill.TransactionCount() == 0 {
		return ""
	}
	token, err := e.Share.Generate(bill.TenantID, bill.BusinessDate)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/share/%d/%s?t=%s", e.BaseURL, bill.TenantID, bill.BusinessDate, token)
}

// =============================================================================
// DAY LIFECYCLE
// =============================================================================

// StartDay moves the tenant into RECORDING, creating tenant and settings
// rows on first activity. Also re-opens after a manual or automatic close.
func (e *Engine) StartDay(ctx context.Context, id TenantID, actor string) (string, error) {
	tenant, err := e.Store.EnsureTenant(ctx, id, "")
	if err != nil {
		return "", err
	}
	if err := e.Store.EnsureSettings(ctx, id); err != nil {
		return "", err
	}
	if err := e.Store.UpdateTenantState(ctx, id, StateRecording); err != nil {
		return "", err
	}

	now := e.now()
	date := BusinessDate(tenant.Timezone, tenant.ResetHour, now)
	_ = e.Store.AppendAudit(ctx, AuditEntry{
		ID: uuid.NewString(), TenantID: id, Actor: actor,
		Action: AuditDayStarted, Detail: date, CreatedAt: now,
	})
	return fmt.Sprintf("Recording started for %s.", date), nil
}

// StopDay closes the current business date manually: final bill, archive,
// ENDED. A stop outside RECORDING is a no-op result.
func (e *Engine) StopDay(ctx context.Context, id TenantID, actor string) (*Result, error) {
	tenant, err := e.Store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant.State != StateRecording {
		return &Result{Recorded: false, Text: "No active day to stop."}, nil
	}
	return e.CloseDay(ctx, id, CloseManual, actor)
}

// CloseDay archives the current business date as a DAILY_SNAPSHOT and
// transitions the tenant to ENDED, atomically. Both the manual stop and
// the scheduler's rollover run through here - the scheduler is simply
// another caller.
func (e *Engine) CloseDay(ctx context.Context, id TenantID, trigger CloseTrigger, actor string) (*Result, error) {
	tenant, err := e.Store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	date := BusinessDate(tenant.Timezone, tenant.ResetHour, e.now())
	return e.CloseDate(ctx, id, date, trigger, actor)
}

// CloseDate closes an explicit business date. The scheduler uses this at
// the reset hour, when the resolver has already rolled to the new date but
// the day being archived is the one that just ended.
func (e *Engine) CloseDate(ctx context.Context, id TenantID, date string, trigger CloseTrigger, actor string) (*Result, error) {
	tenant, err := e.Store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	now := e.now()

	var (
		bill     *Bill
		snapshot []byte
	)
	err = e.Store.WithTx(ctx, func(s Store) error {
		if err := s.EnsureSettings(ctx, id); err != nil {
			return err
		}
		settings, err := s.GetSettings(ctx, id)
		if err != nil {
			return err
		}
		txs, err := s.TransactionsForDate(ctx, id, date)
		if err != nil {
			return err
		}

		bill = Aggregate(id, date, txs, settings, now)
		bill.CurrencySymbol = tenant.CurrencySymbol

		snapshot, err = marshalSnapshot(bill, txs, now)
		if err != nil {
			return err
		}
		if err := s.SaveArchive(ctx, Archive{
			ID: uuid.NewString(), TenantID: id, BusinessDate: date,
			Kind: ArchiveDailySnapshot, SnapshotJSON: string(snapshot), CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.UpdateTenantState(ctx, id, StateEnded); err != nil {
			return err
		}

		action := AuditDayStopped
		if trigger == CloseAuto {
			action = AuditRollover
		}
		return s.AppendAudit(ctx, AuditEntry{
			ID: uuid.NewString(), TenantID: id, Actor: actor,
			Action: action, Detail: date, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Recorded: true, Text: bill.Render(), Export: snapshot, Bill: bill}
	res.ShareURL = e.shareURL(bill)
	return res, nil
}

// ClearToday archives the current business date as a WIPE snapshot and
// deletes its rows, together or not at all, then returns a fresh bill.
func (e *Engine) ClearToday(ctx context.Context, id TenantID, actor string) (*Result, error) {
	tenant, err := e.Store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	date := BusinessDate(tenant.Timezone, tenant.ResetHour, now)

	err = e.Store.WithTx(ctx, func(s Store) error {
		if err := s.EnsureSettings(ctx, id); err != nil {
			return err
		}
		settings, err := s.GetSettings(ctx, id)
		if err != nil {
			return err
		}
		txs, err := s.TransactionsForDate(ctx, id, date)
		if err != nil {
			return err
		}

		wiped := Aggregate(id, date, txs, settings, now)
		snapshot, err := marshalSnapshot(wiped, txs, now)
		if err != nil {
			return err
		}
		if err := s.SaveArchive(ctx, Archive{
			ID: uuid.NewString(), TenantID: id, BusinessDate: date,
			Kind: ArchiveWipe, SnapshotJSON: string(snapshot), CreatedAt: now,
		}); err != nil {
			return err
		}
		if _, err := s.DeleteTransactionsForDate(ctx, id, date); err != nil {
			return err
		}
		return s.AppendAudit(ctx, AuditEntry{
			ID: uuid.NewString(), TenantID: id, Actor: actor,
			Action: AuditDayWiped, Detail: date, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	bill, err := e.GenerateBill(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Result{Recorded: true, Text: bill.Render(), Bill: bill}, nil
}

func marshalSnapshot(bill *Bill, txs []Transaction, now time.Time) ([]byte, error) {
	snap := DaySnapshot{
		TenantID:     bill.TenantID,
		BusinessDate: bill.BusinessDate,
		Transactions: txs,
		TotalInRaw:   bill.TotalInRaw.String(),
		TotalInNet:   bill.TotalInNet.String(),
		TotalOut:     bill.TotalOut.String(),
		TotalReturn:  bill.TotalReturn.String(),
		Balance:      bill.Balance.String(),
		ArchivedAt:   now,
	}
	return json.Marshal(snap)
}
