// Package unitscale implements the lossless base<->units conversion used
// everywhere the engine moves value between the chain's "base" token amounts
// and its internal integer "units". A unit_scale of zero means
// identity: base and units are the same number.
package unitscale

import (
	"math"

	percerrors "percolator/core/errors"
)

// MaxUnitScale is the largest permitted unit_scale.
const MaxUnitScale = 1_000_000_000

// BaseToUnits converts a base amount to units, returning the integer
// quotient and the remainder ("dust"). When scale is zero the conversion is
// the identity and dust is always zero.
//
// Invariants: units*scale + dust == base; 0 <= dust < scale
// (when scale != 0); monotonic in base; deterministic.
func BaseToUnits(base uint64, scale uint64) (units uint64, dust uint64) {
	if scale == 0 {
		return base, 0
	}
	return base / scale, base % scale
}

// UnitsToBase converts units back to a base amount, saturating at
// math.MaxUint64 rather than wrapping on overflow. When scale is zero the
// conversion is the identity.
func UnitsToBase(units uint64, scale uint64) uint64 {
	if scale == 0 {
		return units
	}
	if units == 0 {
		return 0
	}
	if units > math.MaxUint64/scale {
		return math.MaxUint64
	}
	return units * scale
}

// AccumulateDust adds an additional dust remainder to the running
// accumulator, saturating at math.MaxUint64 instead of wrapping.
func AccumulateDust(acc uint64, dust uint64) uint64 {
	sum := acc + dust
	if sum < acc {
		return math.MaxUint64
	}
	return sum
}

// SweepDust splits the accumulator into the portion that evenly divides the
// scale (swept) and the remainder that does not (remaining). When scale is
// zero nothing is swept: the whole accumulator is left as remaining.
//
// Conservation: swept + remaining == acc, and remaining < scale (when scale
// != 0).
func SweepDust(acc uint64, scale uint64) (swept uint64, remaining uint64) {
	if scale == 0 {
		return 0, acc
	}
	swept = (acc / scale) * scale
	remaining = acc - swept
	return swept, remaining
}

// WithdrawAligned reports whether a base amount can be withdrawn without
// leaving a fractional unit behind. A scale of zero is always aligned.
func WithdrawAligned(amount uint64, scale uint64) bool {
	if scale == 0 {
		return true
	}
	return amount%scale == 0
}

// ScalePriceE6 rescales an e6-fixed-point price by the same divisor used by
// BaseToUnits/UnitsToBase, so that a price and an amount converted through
// this package remain a consistent pair. Scales of 0 or 1 are the identity. A result of
// zero is always rejected, even if the input was nonzero, since a
// scaled-to-zero price can no longer price anything.
func ScalePriceE6(priceE6 uint64, scale uint64) (uint64, error) {
	if scale <= 1 {
		if priceE6 == 0 {
			return 0, percerrors.ErrOverflow
		}
		return priceE6, nil
	}
	scaled := priceE6 / scale
	if scaled == 0 {
		return 0, percerrors.ErrOverflow
	}
	return scaled, nil
}

// InitMarketScale validates a proposed unit_scale for InitMarket: any value in [0, MaxUnitScale] is accepted.
func InitMarketScale(scale uint64) error {
	if scale > MaxUnitScale {
		return percerrors.ErrInvalidConfig
	}
	return nil
}
