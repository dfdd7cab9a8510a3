// Package decision implements the market's authorization and policy checks
// as pure, total decide_* functions. Every check is expressed as a function
// of a narrow, named input record with no access to shared state, so each
// one is independently unit-testable and model-checkable in isolation. The
// dispatcher must never inline these checks.
package decision

import "percolator/core/keys"

// Decision is the outcome of a decide_* call. A Reject always carries a
// Reason describing which check failed, for structured logging; an Accept
// carries whatever effect-relevant fields the specific decision produced.
type Decision struct {
	Accepted bool
	Reason   string
}

func accept() Decision { return Decision{Accepted: true} }
func reject(reason string) Decision { return Decision{Accepted: false, Reason: reason} }

// SingleOwner implements decide_single_owner: accept iff the signer is the
// account's stored owner.
func SingleOwner(storedOwner, signer keys.Pubkey) Decision {
	if storedOwner != signer {
		return reject("owner mismatch")
	}
	return accept()
}

// Admin implements decide_admin: reject outright once the admin key is
// burned (zero); otherwise accept iff the signer is the admin.
func Admin(admin, signer keys.Pubkey) Decision {
	if admin.IsZero() {
		return reject("admin burned")
	}
	if admin != signer {
		return reject("signer is not admin")
	}
	return accept()
}

// CrankTarget describes the account (if any) a KeeperCrank invocation names
// explicitly, e.g. for a caller-settle best-effort touch.
type CrankTarget struct {
	Exists bool
	Owner  keys.Pubkey
}

// Crank implements decide_crank: permissionless unless the passed account
// exists, in which case either the signer is its owner, or panic_mode is
// active and the signer is the admin.
func Crank(target CrankTarget, signer keys.Pubkey, admin keys.Pubkey, panicMode bool) Decision {
	if !target.Exists {
		return accept()
	}
	if signer == target.Owner {
		return accept()
	}
	if panicMode && !admin.IsZero() && signer == admin {
		return accept()
	}
	return reject("crank target not owned by signer and panic admin override unavailable")
}

// TradeNoCpiInputs bundles the authorization and gate facts for a TradeNoCpi
// decision.
type TradeNoCpiInputs struct {
	UserAuthorized bool
	LPAuthorized   bool
	GateActive     bool
	RiskIncrease   bool
}

// TradeNoCpi implements decide_trade_no_cpi.
func TradeNoCpi(in TradeNoCpiInputs) Decision {
	if !in.UserAuthorized {
		return reject("user not authorized")
	}
	if !in.LPAuthorized {
		return reject("lp not authorized")
	}
	if in.GateActive && in.RiskIncrease {
		return reject("risk gate active: trade increases risk")
	}
	return accept()
}

// TradeCpiInputs bundles the boolean facts for the CPI trade decision. All
// facts (shape, PDA ownership, auth, matcher identity, ABI validity) must
// already have been computed by the caller from out-of-scope collaborators
// (the chain runtime, the matcher ABI validator) before calling this
// function; it performs no I/O itself.
type TradeCpiInputs struct {
	ShapeOK        bool
	PdaOK          bool
	UserAuthorized bool
	LPAuthorized   bool
	IdentityOK     bool
	AbiOK          bool
	GateActive     bool
	RiskIncrease   bool
}

// TradeCpi implements decide_trade_cpi: accept iff every precondition holds
// and the trade is not a risk increase while the gate is active.
func TradeCpi(in TradeCpiInputs) Decision {
	switch {
	case !in.ShapeOK:
		return reject("matcher account shape invalid")
	case !in.PdaOK:
		return reject("matcher pda derivation invalid")
	case !in.UserAuthorized:
		return reject("user not authorized")
	case !in.LPAuthorized:
		return reject("lp not authorized")
	case !in.IdentityOK:
		return reject("matcher identity mismatch")
	case !in.AbiOK:
		return reject("matcher abi invalid")
	case in.GateActive && in.RiskIncrease:
		return reject("risk gate active: trade increases risk")
	default:
		return accept()
	}
}

// GateActive implements the gate policy: active iff a
// nonzero threshold is configured and the insurance fund has fallen to or
// below it.
func GateActive(riskReductionThreshold, insuranceFund uint64) bool {
	return riskReductionThreshold > 0 && insuranceFund <= riskReductionThreshold
}

// NonceOnAccept documents the nonce coupling: every trade decision is paired
// with a nonce effect. Reject leaves the nonce unchanged; Accept advances it
// by exactly one, wrapping on overflow. req_id sent to the matcher equals
// the post-accept nonce.
func NonceOnAccept(nonce uint64) uint64 {
	return nonce + 1 // wraps on overflow (uint64 addition wraps)
}

// ReqIDForTrade computes the req_id that must be sent to the matcher for a
// prospective trade: nonce_pre + 1.
func ReqIDForTrade(noncePre uint64) uint64 {
	return noncePre + 1
}

// CpiIdentityInputs bundles the facts checked by the CPI identity binding
//: the provided matcher program/context accounts must
// match the keys stored on the LP at registration, the program account must
// be executable, the context account must not be executable, must be owned
// by the program, and must meet the minimum length.
type CpiIdentityInputs struct {
	ProvidedProgram keys.Pubkey
	ProvidedContext keys.Pubkey
	BoundProgram    keys.Pubkey
	BoundContext    keys.Pubkey
	ProgramExecutable bool
	ContextExecutable bool
	ContextOwner      keys.Pubkey
	ContextLen        int
	MinContextLen     int
}

// CpiIdentityOK implements the binding check. It is deliberately separate
// from TradeCpi so the dispatcher computes it once, independent of the ABI
// validity of the matcher's response — identity and shape are checked
// before the response is examined at all.
func CpiIdentityOK(in CpiIdentityInputs) bool {
	if in.ProvidedProgram != in.BoundProgram {
		return false
	}
	if in.ProvidedContext != in.BoundContext {
		return false
	}
	if !in.ProgramExecutable {
		return false
	}
	if in.ContextExecutable {
		return false
	}
	if in.ContextOwner != in.ProvidedProgram {
		return false
	}
	if in.ContextLen < in.MinContextLen {
		return false
	}
	return true
}
