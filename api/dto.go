/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY FIELDS:
  All amounts cross the wire as decimal strings, never JSON numbers, so
  clients cannot lose precision on the way in or out.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/bill.go: Bill, the domain type BillDTO projects
*/
package api

import (
	"time"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RecordRequest is the request to record a deposit or payout.
type RecordRequest struct {
	Type         string `json:"type"` // "DEPOSIT" or "PAYOUT"
	Amount       string `json:"amount"`
	Currency     string `json:"currency,omitempty"` // "" for base, "USDT" for secondary
	OperatorID   int64  `json:"operator_id"`
	OperatorName string `json:"operator_name"`
}

// CorrectionRequest voids a prior entry by recording its negation.
type CorrectionRequest struct {
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	OperatorID   int64  `json:"operator_id"`
	OperatorName string `json:"operator_name"`
}

// ReturnRequest records a fee-free return.
type ReturnRequest struct {
	Amount       string `json:"amount"`
	OperatorID   int64  `json:"operator_id"`
	OperatorName string `json:"operator_name"`
}

// FeeRateRequest sets the deposit or payout fee percentage.
type FeeRateRequest struct {
	Direction string `json:"direction"` // "in" or "out"
	Rate      string `json:"rate"`
}

// ForexRateRequest sets one FX rate. Rate "0" disables the currency.
type ForexRateRequest struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

// DisplayModeRequest sets the bill rendering mode (1, 4, or 5).
type DisplayModeRequest struct {
	Mode int `json:"mode"`
}

// DecimalsRequest toggles decimal rendering on bills.
type DecimalsRequest struct {
	Show bool `json:"show"`
}

// ActorRequest carries the acting operator's name for lifecycle commands.
type ActorRequest struct {
	Actor string `json:"actor"`
}

// ResultDTO is the response for ledger operations.
type ResultDTO struct {
	Recorded bool     `json:"recorded"`
	Text     string   `json:"text"`
	ShareURL string   `json:"share_url,omitempty"`
	Bill     *BillDTO `json:"bill,omitempty"`
}

// BillDTO represents an aggregated bill in API responses.
type BillDTO struct {
	TenantID     int64          `json:"tenant_id"`
	BusinessDate string         `json:"business_date"`
	GeneratedAt  string         `json:"generated_at"`
	TotalInRaw   string         `json:"total_in_raw"`
	TotalInNet   string         `json:"total_in_net"`
	TotalOut     string         `json:"total_out"`
	TotalReturn  string         `json:"total_return"`
	Balance      string         `json:"balance"`
	Transactions int            `json:"transactions"`
	Forex        []ForexLineDTO `json:"forex,omitempty"`
	Text         string         `json:"text"`
}

// ForexLineDTO is one converted-balance line on a bill.
type ForexLineDTO struct {
	Currency  string `json:"currency"`
	Rate      string `json:"rate"`
	Converted string `json:"converted"`
}

// SyncResultDTO reports a net-amount recomputation.
type SyncResultDTO struct {
	Updated int `json:"updated"`
}

// MessageResponse wraps a plain text result.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toBillDTO(b *ledger.Bill) *BillDTO {
	if b == nil {
		return nil
	}
	dto := &BillDTO{
		TenantID:     int64(b.TenantID),
		BusinessDate: b.BusinessDate,
		GeneratedAt:  b.GeneratedAt.Format(time.RFC3339),
		TotalInRaw:   b.TotalInRaw.String(),
		TotalInNet:   b.TotalInNet.String(),
		TotalOut:     b.TotalOut.String(),
		TotalReturn:  b.TotalReturn.String(),
		Balance:      b.Balance.String(),
		Transactions: b.TransactionCount(),
		Text:         b.Render(),
	}
	for _, f := range b.Forex {
		dto.Forex = append(dto.Forex, ForexLineDTO{
			Currency:  f.Code,
			Rate:      f.Rate.String(),
			Converted: f.Converted.String(),
		})
	}
	return dto
}

func toResultDTO(res *ledger.Result) ResultDTO {
	return ResultDTO{
		Recorded: res.Recorded,
		Text:     res.Text,
		ShareURL: res.ShareURL,
		Bill:     toBillDTO(res.Bill),
	}
}
