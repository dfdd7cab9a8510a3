// Package slab implements the fixed-size market account: a header, a
// market config, and an embedded fixed-capacity table of user/LP accounts
// plus their aggregates. On-chain this region is zero-copy and mutated in
// place; the underlying chain runtime's raw-byte re-interpretation of
// account data is out of scope, so this package models the same layout as
// a plain Go struct. internal/store handles (de)serializing that struct
// for the CLI's persistence layer.
package slab

import (
	"math"

	"percolator/core/keys"

	percerrors "percolator/core/errors"
)

// MaxAccounts is the fixed capacity of the account table.
const MaxAccounts = 2048

// AccountsPerCrank bounds how many accounts a single KeeperCrank invocation
// advances in one call, since the per-instruction compute budget is the one
// bounded resource.
const AccountsPerCrank = 32

// MaxRoundingSlack is the bounded slack allowed in the conservation
// invariant.
const MaxRoundingSlack = 8

// AccountKind distinguishes a user account from an LP account.
type AccountKind uint8

const (
	// KindUnused marks a table slot with no live account.
	KindUnused AccountKind = iota
	KindUser
	KindLP
)

// OracleCache is the slab header's cached price state.
type OracleCache struct {
	LastPrice         uint64
	LastEffective     uint64
	LastEffectiveSlot uint64
	CapPerSlot        uint64
}

// Header is the slab's process-wide, one-per-market state.
type Header struct {
	Magic                  [8]byte
	Version                uint16
	Admin                  keys.Pubkey
	VaultAuthority         keys.Pubkey
	OracleAuthority        keys.Pubkey
	UnitScale              uint64
	DustBase               uint64
	Nonce                  uint64
	InsuranceFund          uint64
	RiskReductionThreshold uint64
	OracleCache            OracleCache
	NumUsedAccounts        uint32
	NextAccountID          uint64
	Resolved               bool

	// FundingIndexE6 is the cumulative funding index (fixed-point, 1e6
	// scale) accrued so far. An account settles against it by comparing
	// its own FundingLastIndexQPBE6 snapshot to this value.
	FundingIndexE6     int64
	FundingIndexSlot   uint64
}

// MarketConfig holds the funding, fee, and threshold parameters governed by
// UpdateConfig.
type MarketConfig struct {
	FundingHorizonSlots         uint64
	FundingInvScaleNotionalE6   uint64
	ThreshAlphaBps              uint64
	ThreshMin                   uint64
	ThreshMax                   uint64
	MaintenanceFeeBps           uint64
	FundingRateBpsPerSlot       int64
	LiquidationBufferUnits      uint64
	MinLiquidationAbs           uint64
	WarmupPeriodSlots           uint64
}

// AccountEntry is one slot in the fixed-capacity account table.
type AccountEntry struct {
	Used   bool
	Owner  keys.Pubkey
	Kind   AccountKind
	ID     uint64

	Capital      uint64
	Position     int64
	EntryPriceE6 uint64
	RealizedPnL  int64
	ReservedPnL  uint64
	FeeCredits   int64

	FundingLastIndexQPBE6 int64

	WarmupStartedSlot uint64
	WarmupSlope       uint64
	WarmupRemaining   uint64

	// LP-only fields: the only CPI target accepted for this LP, bound at
	// creation.
	MatcherProgram keys.Pubkey
	MatcherContext keys.Pubkey

	// LP aggregate bookkeeping: the absolute position sum
	// tracked per LP is always equal to |Position| for a single-position
	// LP model, but is tracked explicitly so crossing/partial fills keep
	// a running high-water mark independent of the live position.
	AbsPositionMax uint64
}

// Aggregates are the market-wide rollups that must equal the true sums after
// every operation.
type Aggregates struct {
	CapitalTotal uint64
	PnLPosTotal  uint64
	OILong       uint64
	OIShort      uint64
}

// Slab is the whole fixed-size market account.
type Slab struct {
	Header     Header
	Config     MarketConfig
	Accounts   [MaxAccounts]AccountEntry
	Aggregates Aggregates

	// VaultBalance stands in for the external SPL token vault balance, for
	// the conservation check. No instruction in this module updates it;
	// callers (the tests) set it directly.
	VaultBalance uint64
}

// New constructs an empty, unresolved slab with the given admin/vault
// authority and unit scale. Callers must still validate the scale with
// unitscale.InitMarketScale before calling New.
func New(admin, vaultAuthority keys.Pubkey, unitScale uint64, cfg MarketConfig) *Slab {
	s := &Slab{}
	s.Header.Magic = [8]byte{'P', 'E', 'R', 'C', 'S', 'L', 'A', 'B'}
	s.Header.Version = 1
	s.Header.Admin = admin
	s.Header.VaultAuthority = vaultAuthority
	s.Header.UnitScale = unitScale
	s.Config = cfg
	return s
}

// CheckIdx validates an account index: in range and used.
func (s *Slab) CheckIdx(idx uint32) error {
	if idx >= MaxAccounts {
		return percerrors.ErrInvalidAccount
	}
	if !s.Accounts[idx].Used {
		return percerrors.ErrInvalidAccount
	}
	return nil
}

// AllocateAccount finds an unused slot, marks it used, and returns its
// index. Returns InvalidAccount if the table is full.
func (s *Slab) AllocateAccount(owner keys.Pubkey, kind AccountKind) (uint32, error) {
	for i := range s.Accounts {
		if !s.Accounts[i].Used {
			s.Accounts[i] = AccountEntry{
				Used:  true,
				Owner: owner,
				Kind:  kind,
				ID:    s.Header.NextAccountID,
			}
			s.Header.NextAccountID++
			s.Header.NumUsedAccounts++
			return uint32(i), nil
		}
	}
	return 0, percerrors.ErrInvalidAccount
}

// ReleaseAccount frees a slot back to the unused pool. Callers must have
// already verified the close precondition.
func (s *Slab) ReleaseAccount(idx uint32) {
	s.Accounts[idx] = AccountEntry{}
	if s.Header.NumUsedAccounts > 0 {
		s.Header.NumUsedAccounts--
	}
}

// ClosePrecondition reports whether the account at idx may be closed: zero
// position, zero reserved PnL, capital fully vault-attributable (i.e. not
// negative, which this type system already guarantees), and no outstanding
// fee debt.
func (s *Slab) ClosePrecondition(idx uint32) bool {
	a := &s.Accounts[idx]
	if !a.Used {
		return false
	}
	if a.Position != 0 {
		return false
	}
	if a.ReservedPnL != 0 {
		return false
	}
	if a.FeeCredits < 0 {
		return false
	}
	return true
}

// CheckConservation recomputes every aggregate from scratch and verifies the
// global invariant: vault_balance >= c_tot + insurance + max(0, fee_debt),
// with bounded rounding slack, and that c_tot/pnl_pos_tot/oi_long-oi_short
// match their definitions exactly.
func (s *Slab) CheckConservation() error {
	var capitalTotal, pnlPosTotal, oiLong, oiShort uint64
	var feeDebt uint64
	var netPosition int64

	for i := range s.Accounts {
		a := &s.Accounts[i]
		if !a.Used {
			continue
		}
		capitalTotal += a.Capital
		if a.RealizedPnL > 0 {
			pnlPosTotal += uint64(a.RealizedPnL)
		}
		if a.FeeCredits < 0 {
			feeDebt += uint64(-a.FeeCredits)
		}
		if a.Position > 0 {
			oiLong += uint64(a.Position)
		} else if a.Position < 0 {
			oiShort += uint64(-a.Position)
		}
		netPosition += a.Position
	}

	if capitalTotal != s.Aggregates.CapitalTotal {
		return wrapStateInvariant("c_tot aggregate mismatch")
	}
	if pnlPosTotal != s.Aggregates.PnLPosTotal {
		return wrapStateInvariant("pnl_pos_tot aggregate mismatch")
	}
	if oiLong != s.Aggregates.OILong || oiShort != s.Aggregates.OIShort {
		return wrapStateInvariant("oi aggregate mismatch")
	}
	if int64(oiLong)-int64(oiShort) != netPosition {
		return wrapStateInvariant("oi_long - oi_short != sum(position)")
	}

	required := capitalTotal + s.Header.InsuranceFund + feeDebt
	if s.VaultBalance < required {
		slack := required - s.VaultBalance
		if slack > MaxRoundingSlack {
			return wrapStateInvariant("vault balance below required reserves beyond slack")
		}
	}

	return nil
}

func wrapStateInvariant(msg string) error {
	return &wrappedError{sentinel: percerrors.ErrStateInvariant, msg: "slab: " + msg}
}

type wrappedError struct {
	sentinel error
	msg      string
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.sentinel }

// SaturatingAddU64 adds two uint64s, saturating at math.MaxUint64 instead of
// wrapping.
func SaturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}
