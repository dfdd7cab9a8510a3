// Package oracle implements price-feed parsing and the rate-limited index
// clamp. The Pyth/Chainlink binary account layouts themselves are out of
// scope: callers decode the raw account bytes and hand this package only
// the fields it needs to validate.
package oracle

import (
	"math"

	"percolator/core/keys"

	percerrors "percolator/core/errors"
)

// PythUpdate is the minimal set of fields this package validates from a Pyth
// receiver price update account.
type PythUpdate struct {
	Owner        keys.Pubkey
	ExpectedOwner keys.Pubkey
	FeedID        [32]byte
	ExpectedFeed  [32]byte
	Price         int64
	Exponent      int32
	Confidence    uint64
	PublishSlot   uint64
	CurrentSlot   uint64
	MaxStaleSlots uint64
	// MaxConfidenceBps bounds Confidence/Price as a fraction of price,
	// expressed in basis points. Zero disables the check.
	MaxConfidenceBps uint64
}

// ChainlinkUpdate is the minimal set of fields this package validates from an
// OCR2 Chainlink aggregator answer.
type ChainlinkUpdate struct {
	Owner         keys.Pubkey
	ExpectedOwner keys.Pubkey
	FeedKey       keys.Pubkey
	ExpectedFeed  keys.Pubkey
	Answer        int64
	Decimals      uint8
}

// AuthorityPush is a price pushed directly by the configured oracle
// authority via PushOraclePrice, bypassing the Pyth/Chainlink parsers.
type AuthorityPush struct {
	Signer         keys.Pubkey
	ExpectedSigner keys.Pubkey
	PriceE6        uint64
}

const maxExponentMagnitude = 18

// ParsePyth validates and rescales a Pyth update to an e6-fixed-point price.
// Bounds checked: owner match, feed-id match, price > 0,
// bounded exponent, and (when configured) staleness/confidence.
func ParsePyth(u PythUpdate) (uint64, error) {
	if u.Owner != u.ExpectedOwner {
		return 0, wrap(percerrors.ErrOracleFailure, "pyth: owner mismatch")
	}
	if u.FeedID != u.ExpectedFeed {
		return 0, wrap(percerrors.ErrOracleFailure, "pyth: feed id mismatch")
	}
	if u.Price <= 0 {
		return 0, wrap(percerrors.ErrOracleFailure, "pyth: non-positive price")
	}
	if u.Exponent > maxExponentMagnitude || u.Exponent < -maxExponentMagnitude {
		return 0, wrap(percerrors.ErrOracleFailure, "pyth: exponent out of bounds")
	}
	if u.MaxStaleSlots > 0 && u.CurrentSlot > u.PublishSlot && u.CurrentSlot-u.PublishSlot > u.MaxStaleSlots {
		return 0, wrap(percerrors.ErrOracleFailure, "pyth: stale price")
	}
	if u.MaxConfidenceBps > 0 {
		// confidence/price <= maxConfidenceBps/10_000
		lhs, ok := checkedMulU64(u.Confidence, 10_000)
		if !ok {
			return 0, wrap(percerrors.ErrOracleFailure, "pyth: confidence overflow")
		}
		rhs, ok := checkedMulU64(uint64(u.Price), u.MaxConfidenceBps)
		if !ok {
			return 0, wrap(percerrors.ErrOracleFailure, "pyth: confidence overflow")
		}
		if lhs > rhs {
			return 0, wrap(percerrors.ErrOracleFailure, "pyth: confidence too wide")
		}
	}
	return rescaleToE6(uint64(u.Price), int(u.Exponent))
}

// ParseChainlink validates and rescales an OCR2 answer to an e6-fixed-point
// price.
func ParseChainlink(u ChainlinkUpdate) (uint64, error) {
	if u.Owner != u.ExpectedOwner {
		return 0, wrap(percerrors.ErrOracleFailure, "chainlink: owner mismatch")
	}
	if u.FeedKey != u.ExpectedFeed {
		return 0, wrap(percerrors.ErrOracleFailure, "chainlink: feed key mismatch")
	}
	if u.Answer <= 0 {
		return 0, wrap(percerrors.ErrOracleFailure, "chainlink: non-positive answer")
	}
	if u.Decimals > maxExponentMagnitude {
		return 0, wrap(percerrors.ErrOracleFailure, "chainlink: decimals out of bounds")
	}
	return rescaleToE6(uint64(u.Answer), -int(u.Decimals))
}

// ParseAuthorityPush validates an authority-pushed price (PushOraclePrice).
func ParseAuthorityPush(u AuthorityPush) (uint64, error) {
	if u.Signer != u.ExpectedSigner {
		return 0, wrap(percerrors.ErrUnauthorized, "authority push: signer mismatch")
	}
	if u.PriceE6 == 0 {
		return 0, wrap(percerrors.ErrOracleFailure, "authority push: zero price")
	}
	return u.PriceE6, nil
}

// rescaleToE6 converts a raw (mantissa, exponent) price to an e6-fixed-point
// value: result = mantissa * 10^(exponent+6). Overflow or a zero result is a
// hard error.
func rescaleToE6(mantissa uint64, exponent int) (uint64, error) {
	shift := exponent + 6
	result := mantissa
	if shift > 0 {
		for i := 0; i < shift; i++ {
			v, ok := checkedMulU64(result, 10)
			if !ok {
				return 0, wrap(percerrors.ErrOracleFailure, "oracle: price overflow")
			}
			result = v
		}
	} else if shift < 0 {
		for i := 0; i < -shift; i++ {
			result /= 10
		}
	}
	if result == 0 {
		return 0, wrap(percerrors.ErrOracleFailure, "oracle: price rescaled to zero")
	}
	return result, nil
}

func checkedMulU64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

func wrap(sentinel error, msg string) error {
	return &wrappedError{sentinel: sentinel, msg: msg}
}

type wrappedError struct {
	sentinel error
	msg      string
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.sentinel }
