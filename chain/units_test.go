package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	assert.Zero(t, ToBaseUnits(250000, 6).Cmp(big.NewInt(250000000000)))
	assert.Zero(t, ToBaseUnits(0, 18).Sign())

	// 18 decimals exceeds int64 range; the result must stay exact.
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Zero(t, ToBaseUnits(1, 18).Cmp(want))
}

func TestFromBaseUnits(t *testing.T) {
	units, err := FromBaseUnits("250000000000", 6)
	require.NoError(t, err)
	assert.EqualValues(t, 250000, units)

	// Fractional remainders truncate toward zero.
	units, err = FromBaseUnits("250000999999", 6)
	require.NoError(t, err)
	assert.EqualValues(t, 250000, units)

	_, err = FromBaseUnits("garbage", 6)
	assert.Error(t, err)

	// Round trip.
	units, err = FromBaseUnits(ToBaseUnits(12345, 18).String(), 18)
	require.NoError(t, err)
	assert.EqualValues(t, 12345, units)
}

func TestAddressHelpers(t *testing.T) {
	assert.True(t, ValidAddress("0x1111111111111111111111111111111111111111"))
	assert.False(t, ValidAddress("0x1111"))
	assert.False(t, ValidAddress("plainly wrong"))

	assert.Equal(t,
		"0xabcdef1111111111111111111111111111111111",
		NormalizeAddress("  0xABCDEF1111111111111111111111111111111111 "))
}
