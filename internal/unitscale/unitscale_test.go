package unitscale

import (
	"math"
	"testing"

	percerrors "percolator/core/errors"

	"github.com/stretchr/testify/require"
)

func TestBaseToUnitsIdentityWhenScaleZero(t *testing.T) {
	units, dust := BaseToUnits(123_456, 0)
	require.Equal(t, uint64(123_456), units)
	require.Equal(t, uint64(0), dust)
}

func TestBaseToUnitsSplitsDust(t *testing.T) {
	// unit_scale = 1000, base = 123_456 => units = 123, dust = 456.
	units, dust := BaseToUnits(123_456, 1000)
	require.Equal(t, uint64(123), units)
	require.Equal(t, uint64(456), dust)
	require.Equal(t, uint64(123_456), units*1000+dust)

	require.Equal(t, uint64(123_000), UnitsToBase(units, 1000))
}

func TestBaseToUnitsConservationProperty(t *testing.T) {
	scales := []uint64{0, 1, 7, 1000, 999_999}
	bases := []uint64{0, 1, 999, 123_456, 1_000_000_007}
	for _, s := range scales {
		for _, b := range bases {
			units, dust := BaseToUnits(b, s)
			if s == 0 {
				require.Equal(t, uint64(0), dust)
			} else {
				require.Less(t, dust, s)
			}
			require.Equal(t, b, units*s+dust)
		}
	}
}

func TestUnitsToBaseSaturates(t *testing.T) {
	got := UnitsToBase(math.MaxUint64, 2)
	require.Equal(t, uint64(math.MaxUint64), got)
}

func TestAccumulateDustSaturates(t *testing.T) {
	require.Equal(t, uint64(math.MaxUint64), AccumulateDust(math.MaxUint64-1, 5))
	require.Equal(t, uint64(10), AccumulateDust(4, 6))
}

func TestSweepDustAccumulatesAcrossCalls(t *testing.T) {
	// accumulate dust across ten deposits of 456 => 4560,
	// sweep at scale 1000 => swept 4000, remaining 560.
	acc := uint64(0)
	for i := 0; i < 10; i++ {
		acc = AccumulateDust(acc, 456)
	}
	require.Equal(t, uint64(4560), acc)

	swept, remaining := SweepDust(acc, 1000)
	require.Equal(t, uint64(4000), swept)
	require.Equal(t, uint64(560), remaining)
	require.Equal(t, acc, swept+remaining)
	require.Less(t, remaining, uint64(1000))
}

func TestSweepDustScaleZeroSweepsNothing(t *testing.T) {
	swept, remaining := SweepDust(4560, 0)
	require.Equal(t, uint64(0), swept)
	require.Equal(t, uint64(4560), remaining)
}

func TestWithdrawAligned(t *testing.T) {
	require.True(t, WithdrawAligned(5, 0))
	require.True(t, WithdrawAligned(2000, 1000))
	require.False(t, WithdrawAligned(2001, 1000))
}

func TestScalePriceE6(t *testing.T) {
	p, err := ScalePriceE6(100_000, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), p)

	p, err = ScalePriceE6(100_000, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(100), p)

	_, err = ScalePriceE6(0, 1)
	require.ErrorIs(t, err, percerrors.ErrOverflow)

	_, err = ScalePriceE6(5, 1000)
	require.ErrorIs(t, err, percerrors.ErrOverflow)
}

func TestInitMarketScale(t *testing.T) {
	require.NoError(t, InitMarketScale(0))
	require.NoError(t, InitMarketScale(MaxUnitScale))
	require.ErrorIs(t, InitMarketScale(MaxUnitScale+1), percerrors.ErrInvalidConfig)
}
