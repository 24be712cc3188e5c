package money

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinorUnits(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"50000.00", 5000000},
		{"0.01", 1},
		{"1", 100},
		{"19.9", 1990},
		{"  250.75  ", 25075},
	}
	for _, tc := range cases {
		got, err := ParseMinorUnits(tc.raw)
		require.NoError(t, err, "raw %q", tc.raw)
		assert.Equal(t, tc.want, got, "raw %q", tc.raw)
	}
}

func TestParseMinorUnits_Rejects(t *testing.T) {
	for _, raw := range []string{
		"", "abc", "-5.00", "0", "0.00", "1.234", "1,000.00", "1e5", "NaN", "Inf", ".50",
	} {
		_, err := ParseMinorUnits(raw)
		require.Error(t, err, "raw %q", raw)
		var invalid *ErrInvalidAmount
		assert.True(t, errors.As(err, &invalid), "raw %q", raw)
	}
}

func TestFormatMinorUnits(t *testing.T) {
	assert.Equal(t, "50000.00", FormatMinorUnits(5000000))
	assert.Equal(t, "0.01", FormatMinorUnits(1))
	assert.Equal(t, "19.90", FormatMinorUnits(1990))
	assert.Equal(t, "-3.25", FormatMinorUnits(-325))
}

func TestParseFormatRoundTrip(t *testing.T) {
	minor, err := ParseMinorUnits("50000.00")
	require.NoError(t, err)
	assert.Equal(t, "50000.00", FormatMinorUnits(minor))
}

func TestAbsDiff(t *testing.T) {
	assert.Equal(t, int64(5), AbsDiff(10, 15))
	assert.Equal(t, int64(5), AbsDiff(15, 10))
	assert.Equal(t, int64(0), AbsDiff(7, 7))
}

func TestMajorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), MajorUnits(5000000))
	assert.Equal(t, int64(0), MajorUnits(99))
}
