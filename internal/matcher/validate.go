package matcher

import percerrors "percolator/core/errors"

// Expected bundles the values the validator checks the matcher's response
// against: the fields the dispatcher sent in the CPI request.
type Expected struct {
	AbiVersion    uint16
	ReqID         uint64
	LPAccountID   uint64
	OraclePriceE6 uint64
	ReqSize       Int128
}

// Validate accepts the matcher's response iff every one of the following
// conditions holds:
//
//   - abi_version == expected
//   - VALID set and REJECTED clear
//   - reserved == 0
//   - no flag bits outside the known flags are set
//   - req_id, lp_account_id, oracle_price_e6 equal the expected values
//   - exec_price_e6 > 0
//   - exec_size is nonzero, or PARTIAL_OK is set
//   - |exec_size| <= |req_size| (unsigned-absolute; the minimum signed value
//     is always rejected)
//   - sign(exec_size) == sign(req_size) when both are nonzero
//
// On success it returns the validated exec_size — the decision function
// consuming this validator must call the engine with this value, never with
// the user's requested size.
func Validate(resp Response, exp Expected) (Int128, error) {
	if resp.AbiVersion != exp.AbiVersion {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: abi version mismatch")
	}
	if resp.Flags&FlagValid == 0 || resp.Flags&FlagRejected != 0 {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: not valid or rejected set")
	}
	if resp.Reserved != 0 {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: reserved field must be zero")
	}
	if resp.Flags&^knownFlagsMask != 0 {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: unknown flag bits set")
	}
	if resp.ReqID != exp.ReqID {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: req_id mismatch")
	}
	if resp.LPAccountID != exp.LPAccountID {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: lp_account_id mismatch")
	}
	if resp.OraclePriceE6 != exp.OraclePriceE6 {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: oracle_price_e6 mismatch")
	}
	if resp.ExecPriceE6 == 0 {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: exec_price_e6 must be positive")
	}

	execSize := resp.ExecSize
	if execSize.IsZero() && resp.Flags&FlagPartialOK == 0 {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: zero exec_size without partial_ok")
	}

	if execSize.IsMinValue() {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: exec_size is the minimum representable value")
	}
	if exp.ReqSize.IsMinValue() {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: req_size is the minimum representable value")
	}

	if execSize.AbsCmp(exp.ReqSize) > 0 {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: exec_size exceeds req_size")
	}

	if !execSize.IsZero() && !exp.ReqSize.IsZero() && !execSize.SameSign(exp.ReqSize) {
		return Int128{}, wrap(percerrors.ErrInvalidMatcherAbi, "matcher: exec_size sign mismatch")
	}

	return execSize, nil
}
