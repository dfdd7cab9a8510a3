// Package errors defines the typed error kinds shared by every layer of the
// program. Every exported operation in internal/* returns one of
// these sentinels, wrapped with fmt.Errorf("%w: ...") for context, so callers
// can classify a failure with errors.Is regardless of which layer produced it.
package errors

import stderrors "errors"

var (
	// ErrUnauthorized covers owner, admin, oracle-authority, or
	// caller-mismatch failures.
	ErrUnauthorized = stderrors.New("percolator: unauthorized")

	// ErrInvalidAccount covers a bad idx, an unused slot, a PDA with the
	// wrong owner, or a buffer with the wrong length.
	ErrInvalidAccount = stderrors.New("percolator: invalid account")

	// ErrInvalidMatcherShape signals the matcher CPI response was not a
	// well-formed 64-byte struct or its static shape checks failed
	// (executable/owner/length preconditions on the program/context
	// accounts).
	ErrInvalidMatcherShape = stderrors.New("percolator: invalid matcher shape")

	// ErrInvalidMatcherIdentity signals the matcher program/context
	// accounts supplied for a CPI trade did not match the keys bound on
	// the LP at registration.
	ErrInvalidMatcherIdentity = stderrors.New("percolator: invalid matcher identity")

	// ErrInvalidMatcherAbi signals the matcher's 64-byte response failed
	// ABI validation (version, flags, req_id/lp/oracle echo, exec fields).
	ErrInvalidMatcherAbi = stderrors.New("percolator: invalid matcher abi")

	// ErrOracleFailure covers a stale price, an out-of-bounds confidence
	// window, a feed/owner mismatch, a zero price, or an overflowing
	// price computation.
	ErrOracleFailure = stderrors.New("percolator: oracle failure")

	// ErrInsufficientMargin signals a withdrawal or trade would leave an
	// account below its required margin.
	ErrInsufficientMargin = stderrors.New("percolator: insufficient margin")

	// ErrRiskGate signals a risk-increasing trade was rejected while the
	// risk-reduction gate is active.
	ErrRiskGate = stderrors.New("percolator: risk gate active")

	// ErrPostResolution signals an operation that is forbidden once the
	// market has been resolved.
	ErrPostResolution = stderrors.New("percolator: market resolved")

	// ErrOverflow covers a checked-arithmetic failure that cannot be
	// conservatively absorbed and must hard-abort the instruction.
	ErrOverflow = stderrors.New("percolator: overflow")

	// ErrInvalidConfig covers a configuration range violation.
	ErrInvalidConfig = stderrors.New("percolator: invalid config")

	// ErrStateInvariant signals the conservation self-check exceeded its
	// allowed slack; the instruction that produced it must abort.
	ErrStateInvariant = stderrors.New("percolator: state invariant violated")

	// ErrThrottled signals a caller exceeded its configured rate limit on
	// an operation open to any signer, such as the keeper crank.
	ErrThrottled = stderrors.New("percolator: throttled")

	// ErrNotLiquidatable signals a LiquidateAtOracle call against an
	// account that is not currently under its maintenance requirement.
	ErrNotLiquidatable = stderrors.New("percolator: not liquidatable")
)

// Is reports whether err wraps target, delegating to the standard library.
// Exported as a thin convenience so call sites in this module don't need to
// also import the standard "errors" package for the common case.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
