// Package crank implements the keeper crank state machine: funding
// accrual, a best-effort caller settle, a bounded cursor pass over the
// account table doing maintenance/liquidation/force-close work, a dust
// sweep on cursor wraparound, and garbage collection of closeable slots.
package crank

import (
	"percolator/internal/risk"
	"percolator/internal/slab"
	"percolator/internal/unitscale"
)

// Report summarizes one KeeperCrank invocation for structured logging and
// metrics (the CrankReport telemetry feature).
type Report struct {
	AccountsVisited    int
	MaintenanceFeesApplied int
	Liquidations       int
	ForceCloses        int
	ForceRealizes      int
	AccountsCollected  int
	DustSwept          uint64
	CursorWrapped      bool
}

// Keeper drives one market's crank cursor.
type Keeper struct {
	slab   *slab.Slab
	engine *risk.Engine
}

// NewKeeper constructs a keeper bound to the given slab and risk engine.
func NewKeeper(s *slab.Slab, e *risk.Engine) *Keeper {
	return &Keeper{slab: s, engine: e}
}

// Cursor is the crank's position in the account table, stored outside the
// slab so multiple independent crank runs (e.g. in tests) don't share
// progress.
type Cursor struct {
	Next uint32
}

// Run advances funding, best-effort settles callerIdx if it is a valid
// account, then walks up to slab.AccountsPerCrank accounts from cur.Next,
// applying maintenance fees, liquidation, and force-close/force-realize as
// needed, wrapping the cursor and sweeping dust when it reaches the end of
// the table.
func (k *Keeper) Run(cur *Cursor, currentSlot uint64, markPriceE6 uint64, callerIdx uint32, callerValid bool, panicMode bool) (Report, error) {
	var report Report

	if err := k.engine.AccrueFunding(currentSlot); err != nil {
		return report, err
	}

	if callerValid {
		// Best-effort: a failure here must never abort the whole crank.
		_ = k.engine.SettleFunding(callerIdx)
	}

	visited := 0
	idx := cur.Next
	for visited < slab.AccountsPerCrank {
		if idx >= slab.MaxAccounts {
			idx = 0
			report.CursorWrapped = true
			swept, remaining := unitscale.SweepDust(k.slab.Header.DustBase, k.slab.Header.UnitScale)
			report.DustSwept = swept
			k.slab.Header.DustBase = remaining
			k.collectClosable(&report)
		}

		a := &k.slab.Accounts[idx]
		if a.Used {
			report.AccountsVisited++
			if err := k.maintainOne(idx, currentSlot, markPriceE6, panicMode, &report); err != nil {
				return report, err
			}
		}

		idx++
		visited++
	}
	cur.Next = idx

	return report, nil
}

func (k *Keeper) maintainOne(idx uint32, currentSlot, markPriceE6 uint64, panicMode bool, report *Report) error {
	a := &k.slab.Accounts[idx]

	if err := k.engine.TouchAccountFull(idx, currentSlot); err != nil {
		return err
	}

	if a.Position != 0 {
		fee, err := maintenanceFee(a, markPriceE6, k.slab.Config.MaintenanceFeeBps)
		if err == nil && fee > 0 {
			charged := fee
			if charged > a.Capital {
				charged = a.Capital
			}
			a.Capital -= charged
			k.slab.Aggregates.CapitalTotal -= charged
			a.FeeCredits -= int64(charged)
			report.MaintenanceFeesApplied++
		}
	}

	liqSize, shouldLiquidate := LiquidationSlice(a, markPriceE6, k.slab.Config)
	if shouldLiquidate {
		if liqSize >= absPosition(a) {
			if err := k.engine.OracleClosePosition(idx, markPriceE6); err != nil {
				return err
			}
			report.ForceCloses++
		} else {
			if err := k.engine.OracleClosePositionSlice(idx, liqSize, markPriceE6); err != nil {
				return err
			}
			report.Liquidations++
		}
	}

	if panicMode && a.Position != 0 {
		if err := k.engine.OracleClosePosition(idx, markPriceE6); err != nil {
			return err
		}
		report.ForceRealizes++
	}

	return nil
}

func (k *Keeper) collectClosable(report *Report) {
	for i := range k.slab.Accounts {
		if k.slab.ClosePrecondition(uint32(i)) && k.slab.Accounts[i].Capital == 0 {
			k.slab.ReleaseAccount(uint32(i))
			report.AccountsCollected++
		}
	}
}

func absPosition(a *slab.AccountEntry) uint64 {
	if a.Position < 0 {
		return uint64(-a.Position)
	}
	return uint64(a.Position)
}

// maintenanceFee computes the per-crank maintenance charge on an open
// position: notional * bps / 10_000.
func maintenanceFee(a *slab.AccountEntry, markPriceE6, bps uint64) (uint64, error) {
	abs := absPosition(a)
	notional, err := checkedMulDivU64(abs, markPriceE6, 1_000_000)
	if err != nil {
		return 0, err
	}
	return checkedMulDivU64(notional, bps, bpsDenominator)
}
