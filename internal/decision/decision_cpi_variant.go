package decision

import (
	"percolator/internal/matcher"
)

// TradeCpiFromResponse is the variant of TradeCpi that
// takes the raw matcher return instead of a pre-computed AbiOK boolean. It is
// provably equivalent to calling matcher.Validate out-of-line and passing the
// result into TradeCpi (see decision_test.go's equivalence test): both paths
// compute AbiOK via exactly matcher.Validate, and everything else is a
// pass-through of the same boolean inputs.
type TradeCpiRawInputs struct {
	ShapeOK        bool
	PdaOK          bool
	UserAuthorized bool
	LPAuthorized   bool
	IdentityOK     bool
	GateActive     bool
	RiskIncrease   bool
	Response       matcher.Response
	Expected       matcher.Expected
}

// TradeCpiFromResponse returns the same Decision as TradeCpi would given
// AbiOK == (matcher.Validate(Response, Expected) succeeds), and on accept
// additionally returns the validated exec_size that the risk engine must be
// called with.
func TradeCpiFromResponse(in TradeCpiRawInputs) (Decision, matcher.Int128) {
	execSize, err := matcher.Validate(in.Response, in.Expected)
	abiOK := err == nil

	d := TradeCpi(TradeCpiInputs{
		ShapeOK:        in.ShapeOK,
		PdaOK:          in.PdaOK,
		UserAuthorized: in.UserAuthorized,
		LPAuthorized:   in.LPAuthorized,
		IdentityOK:     in.IdentityOK,
		AbiOK:          abiOK,
		GateActive:     in.GateActive,
		RiskIncrease:   in.RiskIncrease,
	})
	if !d.Accepted {
		return d, matcher.Int128{}
	}
	return d, execSize
}
