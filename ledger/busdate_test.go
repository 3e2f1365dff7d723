package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// BOUNDARY TESTS
// =============================================================================

func TestBusinessDate_BeforeResetHour_IsYesterday(t *testing.T) {
	// GIVEN: Reset hour 4, local time 03:59
	// WHEN: Resolving the business date
	// THEN: The date is yesterday

	now := time.Date(2026, time.March, 10, 3, 59, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-09", ledger.BusinessDate("UTC", 4, now))
}

func TestBusinessDate_AtResetHour_IsToday(t *testing.T) {
	// GIVEN: Reset hour 4, local time exactly 04:00
	// WHEN: Resolving the business date
	// THEN: The boundary is inclusive - the date is today

	now := time.Date(2026, time.March, 10, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-10", ledger.BusinessDate("UTC", 4, now))
}

func TestBusinessDate_MidnightResetHour_NeverShifts(t *testing.T) {
	// GIVEN: Reset hour 0 (wall-clock midnight)
	// WHEN: Resolving at any local hour
	// THEN: The business date always equals the calendar date

	for hour := 0; hour < 24; hour++ {
		now := time.Date(2026, time.March, 10, hour, 30, 0, 0, time.UTC)
		assert.Equal(t, "2026-03-10", ledger.BusinessDate("UTC", 0, now))
	}
}

func TestBusinessDate_TimezoneAware(t *testing.T) {
	// GIVEN: One instant, two tenant timezones
	// WHEN: Resolving the business date for each
	// THEN: Each tenant partitions by its own local clock

	// 2026-03-10 02:00 UTC = 10:00 in Singapore (UTC+8)
	now := time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-09", ledger.BusinessDate("UTC", 4, now),
		"02:00 UTC is before the reset hour")
	assert.Equal(t, "2026-03-10", ledger.BusinessDate("Asia/Singapore", 4, now),
		"10:00 local is after the reset hour")
}

func TestBusinessDate_UnknownTimezone_DegradesToUTC(t *testing.T) {
	// GIVEN: A timezone string the zone database does not know
	// WHEN: Resolving the business date
	// THEN: The resolver is total - it falls back to UTC instead of failing

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-10", ledger.BusinessDate("Not/AZone", 4, now))
}

func TestSameLocalDay(t *testing.T) {
	// The plain local-day comparison the scheduler stamp uses.
	a := time.Date(2026, time.March, 10, 23, 30, 0, 0, time.UTC)
	b := time.Date(2026, time.March, 11, 0, 30, 0, 0, time.UTC)

	assert.False(t, ledger.SameLocalDay("UTC", a, b))
	assert.True(t, ledger.SameLocalDay("UTC", a, a.Add(10*time.Minute)))
}
