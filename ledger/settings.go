/*
settings.go - Settings mutation operations

PURPOSE:
  The engine-side surface for per-tenant rate and display mutations.
  Each setter validates its input, performs a synchronous column update,
  invalidates the settings cache, and records an audit entry. Setters
  never touch existing transaction rows - retroactive application is the
  separate, explicit SyncNetAmounts step.

Setting a forex rate to zero is the defined "disable" signal, not an
error: the currency disappears from bills.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EnsureSettings creates the tenant and settings rows if absent.
func (e *Engine) EnsureSettings(ctx context.Context, id TenantID) error {
	if _, err := e.Store.EnsureTenant(ctx, id, ""); err != nil {
		return err
	}
	return e.Store.EnsureSettings(ctx, id)
}

// SetFeeRate updates the deposit or payout fee percentage.
func (e *Engine) SetFeeRate(ctx context.Context, id TenantID, dir FeeDirection, rateStr string) (string, error) {
	rate, err := parseRate(rateStr)
	if err != nil {
		return "", err
	}
	if err := e.EnsureSettings(ctx, id); err != nil {
		return "", err
	}
	if err := e.Store.SetFeeRate(ctx, id, dir, rate); err != nil {
		return "", err
	}
	e.afterSettingsChange(ctx, id, fmt.Sprintf("rate_%s=%s", dir, rate.String()))
	return fmt.Sprintf("Fee rate (%s) set to %s%%.", dir, rate.String()), nil
}

// SetForexRate updates one FX rate column. Zero disables the currency.
func (e *Engine) SetForexRate(ctx context.Context, id TenantID, code, rateStr string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case CurrencyUSD, CurrencyMYR, CurrencyPHP, CurrencyTHB:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	rate, err := parseRate(rateStr)
	if err != nil {
		return "", err
	}
	if err := e.EnsureSettings(ctx, id); err != nil {
		return "", err
	}
	if err := e.Store.SetForexRate(ctx, id, code, rate); err != nil {
		return "", err
	}
	e.afterSettingsChange(ctx, id, fmt.Sprintf("rate_%s=%s", strings.ToLower(code), rate.String()))
	if rate.IsZero() {
		return fmt.Sprintf("%s rate disabled.", code), nil
	}
	return fmt.Sprintf("%s rate set to %s.", code, rate.String()), nil
}

// SetDisplayMode updates the bill rendering mode.
func (e *Engine) SetDisplayMode(ctx context.Context, id TenantID, mode int) (string, error) {
	switch mode {
	case DisplayModeRecent, DisplayModeSummary, DisplayModeFull:
	default:
		return "", ErrInvalidDisplayMode
	}
	if err := e.EnsureSettings(ctx, id); err != nil {
		return "", err
	}
	if err := e.Store.SetDisplayMode(ctx, id, mode); err != nil {
		return "", err
	}
	e.afterSettingsChange(ctx, id, fmt.Sprintf("display_mode=%d", mode))
	return fmt.Sprintf("Display mode set to %d.", mode), nil
}

// SetDecimals toggles decimal rendering on bills.
func (e *Engine) SetDecimals(ctx context.Context, id TenantID, show bool) (string, error) {
	if err := e.EnsureSettings(ctx, id); err != nil {
		return "", err
	}
	if err := e.Store.SetDecimals(ctx, id, show); err != nil {
		return "", err
	}
	e.afterSettingsChange(ctx, id, fmt.Sprintf("show_decimals=%t", show))
	if show {
		return "Decimals shown on bills.", nil
	}
	return "Decimals hidden on bills.", nil
}

func (e *Engine) afterSettingsChange(ctx context.Context, id TenantID, detail string) {
	if e.Cache != nil {
		e.Cache.Invalidate(id)
	}
	_ = e.Store.AppendAudit(ctx, AuditEntry{
		ID:        uuid.NewString(),
		TenantID:  id,
		Actor:     "operator",
		Action:    AuditSettingsChanged,
		Detail:    detail,
		CreatedAt: e.now(),
	})
}

func parseRate(input string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || d.IsNegative() {
		return decimal.Zero, &RateError{Input: input}
	}
	return d, nil
}
