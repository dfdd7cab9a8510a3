package matcher

import (
	"testing"

	percerrors "percolator/core/errors"

	"github.com/stretchr/testify/require"
)

func baseExpected() Expected {
	return Expected{
		AbiVersion:    1,
		ReqID:         43,
		LPAccountID:   7,
		OraclePriceE6: 100_000,
		ReqSize:       NewInt128(50_000),
	}
}

func baseResponse(exp Expected) Response {
	return Response{
		AbiVersion:    exp.AbiVersion,
		Flags:         FlagValid,
		ReqID:         exp.ReqID,
		LPAccountID:   exp.LPAccountID,
		OraclePriceE6: exp.OraclePriceE6,
		ExecPriceE6:   100_500,
		ExecSize:      NewInt128(40_000),
	}
}

func TestValidateAccepts(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	execSize, err := Validate(resp, exp)
	require.NoError(t, err)
	require.Equal(t, int64(40_000), execSize.Int64())
}

func TestValidateRejectsAbiVersionMismatch(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.AbiVersion = 2
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateRejectsNotValid(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.Flags = 0
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateRejectsRejectedFlag(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.Flags = FlagValid | FlagRejected
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateRejectsNonZeroReserved(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.Reserved = 1
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateRejectsUnknownFlagBits(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.Flags |= 1 << 15
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateReqIDMismatch(t *testing.T) {
	// req_id mismatch (99 vs expected 43) => InvalidMatcherAbi.
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.ReqID = 99
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateRejectsZeroExecSizeWithoutPartialOk(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.ExecSize = NewInt128(0)
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateAcceptsZeroExecSizeWithPartialOk(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.ExecSize = NewInt128(0)
	resp.Flags |= FlagPartialOK
	execSize, err := Validate(resp, exp)
	require.NoError(t, err)
	require.True(t, execSize.IsZero())
}

func TestValidateRejectsExecSizeExceedingReqSize(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.ExecSize = NewInt128(60_000)
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateRejectsSignMismatch(t *testing.T) {
	exp := baseExpected()
	resp := baseResponse(exp)
	resp.ExecSize = NewInt128(-40_000)
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateRejectsMinValueExecSize(t *testing.T) {
	exp := baseExpected()
	exp.ReqSize = Int128{v: int128Min}
	resp := baseResponse(exp)
	resp.ExecSize = Int128{v: int128Min}
	_, err := Validate(resp, exp)
	require.ErrorIs(t, err, percerrors.ErrInvalidMatcherAbi)
}

func TestValidateAcceptsNegativeMatchingSign(t *testing.T) {
	exp := baseExpected()
	exp.ReqSize = NewInt128(-50_000)
	resp := baseResponse(exp)
	resp.ExecSize = NewInt128(-40_000)
	execSize, err := Validate(resp, exp)
	require.NoError(t, err)
	require.Equal(t, int64(-40_000), execSize.Int64())
}
