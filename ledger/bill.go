/*
bill.go - Business-day aggregation and rendering

PURPOSE:
  Folds one business date's transactions into the bill totals and renders
  them in the tenant's configured display mode.

INVARIANT:
  balance = totalInNet - totalOut + totalReturn, exactly, after any
  sequence of deposit/payout/return/correction operations. Payouts reduce
  the balance by their full face value even when a payout fee is recorded.

SEE ALSO:
  - engine.go: builds bills after every recording operation
  - types.go: DisplayMode constants
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BILL - Aggregated view of one business date
// =============================================================================

type Bill struct {
	TenantID     TenantID
	BusinessDate string
	GeneratedAt  time.Time

	TotalInRaw  decimal.Decimal // gross deposits, base currency
	TotalInNet  decimal.Decimal // deposits after fee
	TotalOut    decimal.Decimal // payouts at face value
	TotalReturn decimal.Decimal
	Balance     decimal.Decimal // TotalInNet - TotalOut + TotalReturn

	Deposits []Transaction
	Payouts  []Transaction
	Returns  []Transaction

	Forex []ForexLine

	CurrencySymbol string
	ShowDecimals   bool
	Mode           int
}

// ForexLine is the bill balance expressed in one configured currency.
type ForexLine struct {
	Code      string
	Rate      decimal.Decimal
	Converted decimal.Decimal
}

// TransactionCount returns the number of rows the bill aggregates.
func (b *Bill) TransactionCount() int {
	return len(b.Deposits) + len(b.Payouts) + len(b.Returns)
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Aggregate folds transactions into a bill using the given settings.
// Corrections carry negative amounts and zero fee, so they net against
// their type's totals without special-casing.
func Aggregate(id TenantID, businessDate string, txs []Transaction, settings *Settings, now time.Time) *Bill {
	bill := &Bill{
		TenantID:     id,
		BusinessDate: businessDate,
		GeneratedAt:  now,
		TotalInRaw:   decimal.Zero,
		TotalInNet:   decimal.Zero,
		TotalOut:     decimal.Zero,
		TotalReturn:  decimal.Zero,
		ShowDecimals: settings.ShowDecimals,
		Mode:         settings.DisplayMode,
	}

	for _, tx := range txs {
		switch tx.Type {
		case TxDeposit:
			bill.Deposits = append(bill.Deposits, tx)
			bill.TotalInRaw = bill.TotalInRaw.Add(grossInBase(tx, settings))
			bill.TotalInNet = bill.TotalInNet.Add(tx.NetAmount)
		case TxPayout:
			bill.Payouts = append(bill.Payouts, tx)
			bill.TotalOut = bill.TotalOut.Add(tx.NetAmount)
		case TxReturn:
			bill.Returns = append(bill.Returns, tx)
			bill.TotalReturn = bill.TotalReturn.Add(tx.NetAmount)
		}
	}

	bill.Balance = bill.TotalInNet.Sub(bill.TotalOut).Add(bill.TotalReturn)

	for _, code := range settings.ConfiguredForex() {
		rate := settings.ForexRate(code)
		bill.Forex = append(bill.Forex, ForexLine{
			Code:      code,
			Rate:      rate,
			Converted: bill.Balance.DivRound(rate, 4),
		})
	}

	return bill
}

// grossInBase reconstructs a deposit's pre-fee value in the base currency.
// The fee is recorded in the transaction's own currency, so secondary-unit
// rows translate it through the same rate the net amount used.
func grossInBase(tx Transaction, settings *Settings) decimal.Decimal {
	fee := tx.FeeAmount
	if tx.Currency == SecondaryUnit && settings.RateUSD.IsPositive() {
		fee = fee.Mul(settings.RateUSD)
	}
	return tx.NetAmount.Add(fee)
}

// =============================================================================
// RENDERING
// =============================================================================

const recentLimit = 5

// Render produces the bill text in the bill's display mode.
func (b *Bill) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ledger %s\n", b.BusinessDate)

	switch b.Mode {
	case DisplayModeFull:
		b.renderFull(&sb)
	case DisplayModeSummary:
		// summary only
	default:
		b.renderRecent(&sb)
	}

	b.renderSummary(&sb)
	return sb.String()
}

func (b *Bill) renderRecent(sb *strings.Builder) {
	if len(b.Deposits) > 0 {
		fmt.Fprintf(sb, "Deposits (%d):\n", len(b.Deposits))
		for _, tx := range lastN(b.Deposits, recentLimit) {
			fmt.Fprintf(sb, "  %s  %s\n", tx.RecordedAt.Format("15:04:05"), b.depositLine(tx))
		}
	}
	if len(b.Payouts) > 0 {
		fmt.Fprintf(sb, "Payouts (%d):\n", len(b.Payouts))
		for _, tx := range lastN(b.Payouts, recentLimit) {
			fmt.Fprintf(sb, "  %s  %s\n", tx.RecordedAt.Format("15:04:05"), b.amount(tx.NetAmount))
		}
	}
}

func (b *Bill) renderFull(sb *strings.Builder) {
	running := decimal.Zero
	for _, tx := range b.allByTime() {
		delta := tx.NetAmount
		if tx.Type == TxPayout {
			delta = delta.Neg()
		}
		running = running.Add(delta)
		sign := "+"
		if delta.IsNegative() {
			sign = "-"
		}
		fmt.Fprintf(sb, "  %s  %s%s %s  = %s\n",
			tx.RecordedAt.Format("15:04:05"), sign, b.amount(delta.Abs()),
			strings.ToLower(string(tx.Type)), b.amount(running))
	}
	fmt.Fprintf(sb, "Grand total: %s\n", b.amount(running))
}

func (b *Bill) renderSummary(sb *strings.Builder) {
	fmt.Fprintf(sb, "Total deposits: %s | net %s\n", b.amount(b.TotalInRaw), b.amount(b.TotalInNet))
	fmt.Fprintf(sb, "Total payouts: %s\n", b.amount(b.TotalOut))
	if !b.TotalReturn.IsZero() {
		fmt.Fprintf(sb, "Total returns: %s\n", b.amount(b.TotalReturn))
	}
	fmt.Fprintf(sb, "Balance: %s%s\n", b.CurrencySymbol, b.amount(b.Balance))
	for _, fx := range b.Forex {
		fmt.Fprintf(sb, "%s @%s: %s\n", fx.Code, fx.Rate.String(), fx.Converted.StringFixed(2))
	}
}

// depositLine shows the fee derivation for a deposit with a non-zero fee.
func (b *Bill) depositLine(tx Transaction) string {
	if tx.FeeRate.IsZero() || tx.FeeAmount.IsZero() {
		return b.amount(tx.AmountRaw)
	}
	return fmt.Sprintf("%s * %s%% = %s", b.amount(tx.AmountRaw), tx.FeeRate.String(), b.amount(tx.NetAmount))
}

func (b *Bill) amount(d decimal.Decimal) string {
	if b.ShowDecimals {
		return d.StringFixed(2)
	}
	return d.Round(0).String()
}

func (b *Bill) allByTime() []Transaction {
	all := make([]Transaction, 0, b.TransactionCount())
	all = append(all, b.Deposits...)
	all = append(all, b.Payouts...)
	all = append(all, b.Returns...)
	// Each slice is already time-ordered; merge by RecordedAt.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].RecordedAt.Before(all[j-1].RecordedAt); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	return all
}

func lastN(txs []Transaction, n int) []Transaction {
	if len(txs) <= n {
		return txs
	}
	return txs[len(txs)-n:]
}
