/*
sharelink.go - Signed, time-bound report share tokens

PURPOSE:
  Produces a deterministic, cryptographically-verifiable token for a
  (tenant, business date) pair so an external read-only reporting surface
  can serve the bill to non-operators without ledger access.

CONTRACT:
  Verify(tenant, date, token) == true iff the token was issued by
  Generate(tenant, date) under the current secret. Tokens carry no issued-at
  or expiry claim - determinism comes from signing only the tenant and date.
  Staleness is enforced by rejecting dates older than the retention window,
  which also bounds how long a leaked link stays useful.

SEE ALSO:
  - engine.go: attaches a share URL to bills with at least one transaction
  - api: the /share endpoint verifies before rendering
*/
package ledger

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ShareLink issues and verifies bill share tokens.
type ShareLink struct {
	Secret    []byte
	Retention time.Duration // dates older than now-Retention are rejected
	Now       func() time.Time
}

func NewShareLink(secret []byte, retention time.Duration) *ShareLink {
	return &ShareLink{Secret: secret, Retention: retention, Now: time.Now}
}

type shareClaims struct {
	Tenant int64  `json:"tenant"`
	Date   string `json:"date"`
	jwt.RegisteredClaims
}

// Generate returns the share token for a tenant and business date.
// Same inputs and secret always yield the same token.
func (s *ShareLink) Generate(id TenantID, businessDate string) (string, error) {
	claims := &shareClaims{Tenant: int64(id), Date: businessDate}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Verify reports whether the token was issued for this tenant and date
// under the current secret, and the date is still within the retention
// window. Forged tokens, wrong-tenant tokens, and stale dates all fail.
func (s *ShareLink) Verify(id TenantID, businessDate string, tokenStr string) bool {
	parsed, err := jwt.ParseWithClaims(tokenStr, &shareClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return false
	}

	claims, ok := parsed.Claims.(*shareClaims)
	if !ok || claims.Tenant != int64(id) || claims.Date != businessDate {
		return false
	}

	date, err := time.Parse(DateLayout, businessDate)
	if err != nil {
		return false
	}
	if s.Retention > 0 && date.Before(s.now().Add(-s.Retention).Truncate(24*time.Hour)) {
		return false
	}
	return true
}

func (s *ShareLink) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
