/*
Package ledger provides the core multi-tenant transaction engine.

PURPOSE:
  This package contains the types and algorithms for recording cash-like
  deposits, payouts, and returns per tenant, applying fee and foreign-exchange
  rates, and aggregating a rolling business day into a bill. The business day
  is partitioned by a configurable reset hour, not wall-clock midnight.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tenant: one independently-configured ledger scope with its own timezone,
    reset hour, and lifecycle state
  - Transaction: a ledger entry whose net amount is a recomputable projection
    of its raw amount and the tenant's current rates
  - Settings: per-tenant fee and FX rates driving all fee computation
  - Archive: a write-once snapshot of one closed business day

DESIGN PRINCIPLES:
  1. Precision: all money math uses decimal.Decimal, never float64
  2. Derived values: net_amount is cached, not canonical - SyncNetAmounts
     recomputes it from amount_raw and current settings
  3. Corrections over deletion: mistakes are voided by negated same-type
     entries, history is preserved

SEE ALSO:
  - engine.go: transaction recording and day lifecycle
  - busdate.go: business-date resolver
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TENANT - One independently-configured ledger scope
// =============================================================================

type TenantID int64

// State is the tenant's day lifecycle position.
type State string

const (
	StateWaitingForStart State = "WAITING_FOR_START" // initial / post-close
	StateRecording       State = "RECORDING"         // transactions accepted
	StateEnded           State = "ENDED"             // day closed, awaiting restart
)

// CanRecord reports whether transaction recording is legal in this state.
func (s State) CanRecord() bool { return s == StateRecording }

type Tenant struct {
	ID             TenantID
	Timezone       string
	ResetHour      int
	State          State
	LastAutoReset  *time.Time
	CurrencySymbol string
	LedgerEnabled  bool
	CreatedAt      time.Time
}

// Location resolves the tenant's timezone, falling back to UTC when the
// zone name is unknown. Never fails: a tenant with a bad timezone still
// gets a well-defined business day.
func (t *Tenant) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// =============================================================================
// SETTINGS - Per-tenant rates and display configuration
// =============================================================================

// Settings holds the fee rates, FX rates, and display options for one tenant.
// A zero FX rate means that currency is disabled and hidden from bills.
type Settings struct {
	TenantID     TenantID
	RateIn       decimal.Decimal // deposit fee percentage
	RateOut      decimal.Decimal // payout fee percentage
	RateUSD      decimal.Decimal
	RateMYR      decimal.Decimal
	RatePHP      decimal.Decimal
	RateTHB      decimal.Decimal
	DisplayMode  int // 1 = recent + summary, 4 = summary only, 5 = full listing
	ShowDecimals bool
	UpdatedAt    time.Time
}

// Fee directions for SetFeeRate.
type FeeDirection string

const (
	FeeIn  FeeDirection = "in"
	FeeOut FeeDirection = "out"
)

// Forex currency slots. SecondaryUnit is the alternate recording currency
// translated into the base currency via RateUSD at record time.
const (
	CurrencyUSD = "USD"
	CurrencyMYR = "MYR"
	CurrencyPHP = "PHP"
	CurrencyTHB = "THB"

	SecondaryUnit = "USDT"
)

// ForexRate returns the configured rate for a currency code, zero if the
// code is unknown or the rate is disabled.
func (s *Settings) ForexRate(code string) decimal.Decimal {
	switch code {
	case CurrencyUSD:
		return s.RateUSD
	case CurrencyMYR:
		return s.RateMYR
	case CurrencyPHP:
		return s.RatePHP
	case CurrencyTHB:
		return s.RateTHB
	}
	return decimal.Zero
}

// ConfiguredForex returns the currency codes with a non-zero rate, in a
// stable display order.
func (s *Settings) ConfiguredForex() []string {
	var codes []string
	for _, code := range []string{CurrencyUSD, CurrencyMYR, CurrencyPHP, CurrencyTHB} {
		if s.ForexRate(code).IsPositive() {
			codes = append(codes, code)
		}
	}
	return codes
}

// DefaultSettings returns the settings row created on first activity.
func DefaultSettings(id TenantID) Settings {
	return Settings{
		TenantID:    id,
		DisplayMode: DisplayModeRecent,
	}
}

const (
	DisplayModeRecent  = 1 // last 5 deposits + last 5 payouts + summary
	DisplayModeSummary = 4 // summary only
	DisplayModeFull    = 5 // every transaction as a signed running list
)

// DefaultResetHour is the business-day boundary used when a tenant has not
// configured one: 04:00 local time.
const DefaultResetHour = 4

// =============================================================================
// TRANSACTION - One ledger entry
// =============================================================================

type TxType string

const (
	TxDeposit TxType = "DEPOSIT"
	TxPayout  TxType = "PAYOUT"
	TxReturn  TxType = "RETURN"
)

// Transaction is one ledger row. AmountRaw and Currency are canonical;
// FeeRate, FeeAmount, and NetAmount are projections of the tenant's settings
// at the time of the last recomputation and must not be assumed fresh after
// a rate change until SyncNetAmounts has run.
//
// A correction is a negated same-type row with zero fee - it nets against
// prior sums of its type rather than forming a distinct aggregate.
type Transaction struct {
	ID           string
	TenantID     TenantID
	OperatorID   int64
	OperatorName string
	Type         TxType
	Correction   bool
	AmountRaw    decimal.Decimal // signed; in Currency units
	FeeRate      decimal.Decimal // percentage applied
	FeeAmount    decimal.Decimal // in Currency units
	NetAmount    decimal.Decimal // in the tenant base currency
	Currency     string          // "" = base currency, or SecondaryUnit
	BusinessDate string
	RecordedAt   time.Time
}

// =============================================================================
// ARCHIVE - Write-once snapshot of a closed or wiped business day
// =============================================================================

type ArchiveKind string

const (
	ArchiveWipe          ArchiveKind = "WIPE"           // manual clear
	ArchiveDailySnapshot ArchiveKind = "DAILY_SNAPSHOT" // manual stop or rollover
)

type Archive struct {
	ID           string
	TenantID     TenantID
	BusinessDate string
	Kind         ArchiveKind
	SnapshotJSON string
	CreatedAt    time.Time
}

// DaySnapshot is the JSON payload stored in an Archive. Replaying its
// transactions through Aggregate reproduces the archived bill exactly.
type DaySnapshot struct {
	TenantID     TenantID      `json:"tenant_id"`
	BusinessDate string        `json:"business_date"`
	Transactions []Transaction `json:"transactions"`
	TotalInRaw   string        `json:"total_in_raw"`
	TotalInNet   string        `json:"total_in_net"`
	TotalOut     string        `json:"total_out"`
	TotalReturn  string        `json:"total_return"`
	Balance      string        `json:"balance"`
	ArchivedAt   time.Time     `json:"archived_at"`
}

// =============================================================================
// AUDIT - Append-only record of who did what
// =============================================================================

type AuditAction string

const (
	AuditTransactionRecorded AuditAction = "transaction_recorded"
	AuditCorrectionRecorded  AuditAction = "correction_recorded"
	AuditDayStarted          AuditAction = "day_started"
	AuditDayStopped          AuditAction = "day_stopped"
	AuditDayWiped            AuditAction = "day_wiped"
	AuditRollover            AuditAction = "rollover"
	AuditSettingsChanged     AuditAction = "settings_changed"
	AuditNetAmountsSynced    AuditAction = "net_amounts_synced"
)

type AuditEntry struct {
	ID        string
	TenantID  TenantID
	Actor     string
	Action    AuditAction
	Detail    string
	CreatedAt time.Time
}
