package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRange(t *testing.T, from, to string) DateRange {
	t.Helper()
	r, err := ParseDateRange(from, to)
	require.NoError(t, err)
	return r
}

func TestDateRangeValidate(t *testing.T) {
	assert.NoError(t, mustRange(t, "2025-07-01", "2025-07-31").Validate(DefaultCutoff))
	assert.NoError(t, mustRange(t, "2025-07-05", "2025-07-05").Validate(DefaultCutoff))

	err := mustRange(t, "2025-06-30", "2025-07-31").Validate(DefaultCutoff)
	assert.ErrorIs(t, err, ErrBeforeCutoff)

	err = mustRange(t, "2025-08-01", "2025-07-31").Validate(DefaultCutoff)
	assert.ErrorIs(t, err, ErrInvalidRange)

	assert.ErrorIs(t, DateRange{}.Validate(time.Time{}), ErrInvalidRange)
	assert.NoError(t, mustRange(t, "2024-01-01", "2024-01-31").Validate(time.Time{}))
}

func TestParseDateRangeRejectsBadInput(t *testing.T) {
	_, err := ParseDateRange("2025/07/01", "2025-07-31")
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = ParseDateRange("2025-07-01", "")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestDateRangeMonths(t *testing.T) {
	months := mustRange(t, "2025-11-20", "2026-02-03").Months()
	require.Len(t, months, 4)
	assert.Equal(t, "2025-11", months[0].String())
	assert.Equal(t, "2025-12", months[1].String())
	assert.Equal(t, "2026-01", months[2].String())
	assert.Equal(t, "2026-02", months[3].String())

	assert.Len(t, mustRange(t, "2025-07-01", "2025-07-31").Months(), 1)
}

func TestDateRangeContainsDate(t *testing.T) {
	r := mustRange(t, "2025-07-10", "2025-07-20")
	s := func(v string) *string { return &v }

	assert.True(t, r.ContainsDate(s("2025-07-10")))
	assert.True(t, r.ContainsDate(s("2025-07-20")))
	assert.False(t, r.ContainsDate(s("2025-07-09")))
	assert.False(t, r.ContainsDate(s("2025-07-21")))
	assert.True(t, r.ContainsDate(nil))
	assert.True(t, r.ContainsDate(s("TBD")))
}
