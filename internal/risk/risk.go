// Package risk implements the per-account accounting operations: deposit,
// withdraw, trade, funding settlement, warmup, and the oracle-triggered
// close paths used by liquidation and the keeper crank. It operates
// directly on a *slab.Slab, keeping every aggregate (capital total,
// positive-PnL total, open interest) in lockstep with the per-account
// fields it mutates. Operations mutate the slab in place; an operation that
// fails part-way does not roll back the fields it has already written.
package risk

import (
	percerrors "percolator/core/errors"
	"percolator/internal/slab"
)

// Engine is the risk accounting engine for one market slab.
type Engine struct {
	slab *slab.Slab
}

// NewEngine constructs a risk engine bound to the given slab.
func NewEngine(s *slab.Slab) *Engine {
	return &Engine{slab: s}
}

func (e *Engine) account(idx uint32) *slab.AccountEntry {
	return &e.slab.Accounts[idx]
}

// Deposit credits amount units of capital to the account and the market's
// capital-total aggregate.
func (e *Engine) Deposit(idx uint32, amount uint64) error {
	if err := e.slab.CheckIdx(idx); err != nil {
		return err
	}
	a := e.account(idx)
	newCapital, err := checkedAddU64(a.Capital, amount)
	if err != nil {
		return err
	}
	newTotal, err := checkedAddU64(e.slab.Aggregates.CapitalTotal, amount)
	if err != nil {
		return err
	}
	a.Capital = newCapital
	e.slab.Aggregates.CapitalTotal = newTotal
	return nil
}

// requiredMarginUnits returns the minimum capital an account must retain
// given its open position and the maintenance fee schedule: position
// notional at the mark price, scaled by the maintenance fee bps, plus the
// liquidation buffer.
func (e *Engine) requiredMarginUnits(a *slab.AccountEntry, markPriceE6 uint64) (uint64, error) {
	if a.Position == 0 {
		return 0, nil
	}
	absPos := uint64(a.Position)
	if a.Position < 0 {
		absPos = uint64(-a.Position)
	}
	notional, err := checkedMulDivU64(absPos, markPriceE6, 1_000_000)
	if err != nil {
		return 0, err
	}
	maintenance, err := checkedMulDivU64(notional, e.slab.Config.MaintenanceFeeBps, bpsDenominator)
	if err != nil {
		return 0, err
	}
	return checkedAddU64(maintenance, e.slab.Config.LiquidationBufferUnits)
}

// Withdraw debits amount units from the account's capital, failing if the
// remaining capital would breach the account's required margin at the
// given mark price.
func (e *Engine) Withdraw(idx uint32, amount uint64, markPriceE6 uint64) error {
	if err := e.slab.CheckIdx(idx); err != nil {
		return err
	}
	if err := e.SettleFunding(idx); err != nil {
		return err
	}
	a := e.account(idx)
	remaining, err := checkedSubU64(a.Capital, amount)
	if err != nil {
		return percerrors.ErrInsufficientMargin
	}
	required, err := e.requiredMarginUnits(a, markPriceE6)
	if err != nil {
		return err
	}
	if remaining < required {
		return percerrors.ErrInsufficientMargin
	}
	newTotal, err := checkedSubU64(e.slab.Aggregates.CapitalTotal, amount)
	if err != nil {
		return err
	}
	a.Capital = remaining
	e.slab.Aggregates.CapitalTotal = newTotal
	return nil
}

// SettleFunding applies the funding accrued since the account's last
// snapshot to its realized PnL: (current_index - last_index) * position,
// scaled to base units, then re-snapshots the account's index.
func (e *Engine) SettleFunding(idx uint32) error {
	a := e.account(idx)
	diff, err := checkedAddI64(e.slab.Header.FundingIndexE6, -a.FundingLastIndexQPBE6)
	if err != nil {
		return err
	}
	if diff != 0 && a.Position != 0 {
		settlement, err := checkedMulDivI64(a.Position, uint64(diff), 1_000_000)
		if err != nil {
			return err
		}
		if err := e.applyPnLDelta(a, -settlement); err != nil {
			return err
		}
	}
	a.FundingLastIndexQPBE6 = e.slab.Header.FundingIndexE6
	return nil
}

// applyPnLDelta adds delta to an account's realized PnL and keeps the
// positive-PnL aggregate consistent with the change.
func (e *Engine) applyPnLDelta(a *slab.AccountEntry, delta int64) error {
	before := int64(0)
	if a.RealizedPnL > 0 {
		before = a.RealizedPnL
	}
	newPnL, err := checkedAddI64(a.RealizedPnL, delta)
	if err != nil {
		return err
	}
	after := int64(0)
	if newPnL > 0 {
		after = newPnL
	}
	a.RealizedPnL = newPnL
	if after >= before {
		grown, err := checkedAddU64(e.slab.Aggregates.PnLPosTotal, uint64(after-before))
		if err != nil {
			return err
		}
		e.slab.Aggregates.PnLPosTotal = grown
	} else {
		shrunk, err := checkedSubU64(e.slab.Aggregates.PnLPosTotal, uint64(before-after))
		if err != nil {
			return err
		}
		e.slab.Aggregates.PnLPosTotal = shrunk
	}
	return nil
}

// adjustOI updates the long/short open interest aggregates for a position
// change from 'before' to 'after'.
func (e *Engine) adjustOI(before, after int64) error {
	remove := func(pos int64) error {
		if pos > 0 {
			v, err := checkedSubU64(e.slab.Aggregates.OILong, uint64(pos))
			if err != nil {
				return err
			}
			e.slab.Aggregates.OILong = v
		} else if pos < 0 {
			v, err := checkedSubU64(e.slab.Aggregates.OIShort, uint64(-pos))
			if err != nil {
				return err
			}
			e.slab.Aggregates.OIShort = v
		}
		return nil
	}
	add := func(pos int64) error {
		if pos > 0 {
			v, err := checkedAddU64(e.slab.Aggregates.OILong, uint64(pos))
			if err != nil {
				return err
			}
			e.slab.Aggregates.OILong = v
		} else if pos < 0 {
			v, err := checkedAddU64(e.slab.Aggregates.OIShort, uint64(-pos))
			if err != nil {
				return err
			}
			e.slab.Aggregates.OIShort = v
		}
		return nil
	}
	if err := remove(before); err != nil {
		return err
	}
	return add(after)
}

// Trade applies a fill of sizeDelta (signed, positive is long) at
// execPriceE6 to the account: settles funding first, realizes PnL on any
// position reduction/flip at the old entry price, updates the remaining
// position's entry price, and keeps OI/capital-total aggregates exact.
func (e *Engine) Trade(idx uint32, sizeDelta int64, execPriceE6 uint64) error {
	if err := e.slab.CheckIdx(idx); err != nil {
		return err
	}
	if sizeDelta == 0 {
		return nil
	}
	if err := e.SettleFunding(idx); err != nil {
		return err
	}
	a := e.account(idx)
	before := a.Position
	after, err := checkedAddI64(before, sizeDelta)
	if err != nil {
		return err
	}

	closing := closingAmount(before, after)
	if before < 0 {
		// realizedPnLOnClose takes the closed size signed like the position.
		closing = -closing
	}
	if closing != 0 {
		pnl, err := realizedPnLOnClose(closing, a.EntryPriceE6, execPriceE6)
		if err != nil {
			return err
		}
		if err := e.applyPnLDelta(a, pnl); err != nil {
			return err
		}
	}

	if err := e.adjustOI(before, after); err != nil {
		return err
	}

	if (before >= 0 && after > before) || (before <= 0 && after < before) {
		// Increasing an existing position (or opening one): blend the
		// entry price across old and newly-added size.
		a.EntryPriceE6 = blendedEntryPrice(before, a.EntryPriceE6, after, execPriceE6)
	} else if signChanged(before, after) {
		a.EntryPriceE6 = execPriceE6
	} else if after == 0 {
		a.EntryPriceE6 = 0
	}

	a.Position = after
	absAfter := uint64(after)
	if after < 0 {
		absAfter = uint64(-after)
	}
	if absAfter > a.AbsPositionMax {
		a.AbsPositionMax = absAfter
	}
	return nil
}

// closingAmount returns the magnitude of position closed when moving from
// before to after (zero if the move only opens or increases a position).
func closingAmount(before, after int64) int64 {
	if before == 0 {
		return 0
	}
	if before > 0 {
		if after >= before {
			return 0
		}
		if after < 0 {
			return before
		}
		return before - after
	}
	if after <= before {
		return 0
	}
	if after > 0 {
		return -before
	}
	return after - before
}

func signChanged(before, after int64) bool {
	return (before > 0 && after < 0) || (before < 0 && after > 0)
}

// realizedPnLOnClose computes (exec - entry) * closedSize / 1e6 for a long
// close, and its negation for a short close. closedAbs carries the sign of
// the position being closed (negative for a short).
func realizedPnLOnClose(closedAbs int64, entryPriceE6, execPriceE6 uint64) (int64, error) {
	diff := int64(execPriceE6) - int64(entryPriceE6)
	return checkedMulDivI64(closedAbs*sign(entryPriceE6, execPriceE6, diff), uint64(absI64(diff)), 1_000_000)
}

func sign(entry, exec uint64, diff int64) int64 {
	if diff >= 0 {
		return 1
	}
	return -1
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// blendedEntryPrice returns the size-weighted average entry price after
// adding to an existing position of the same sign.
func blendedEntryPrice(before int64, entryPriceE6 uint64, after int64, execPriceE6 uint64) uint64 {
	absBefore := uint64(before)
	if before < 0 {
		absBefore = uint64(-before)
	}
	absAfter := uint64(after)
	if after < 0 {
		absAfter = uint64(-after)
	}
	added := absAfter - absBefore
	if absAfter == 0 {
		return 0
	}
	num := absBefore*entryPriceE6 + added*execPriceE6
	return num / absAfter
}

// TouchAccountFull settles funding and advances the account's warmup slope
// toward full weight, used by the keeper crank's per-account maintenance
// pass.
func (e *Engine) TouchAccountFull(idx uint32, currentSlot uint64) error {
	if err := e.slab.CheckIdx(idx); err != nil {
		return err
	}
	if err := e.SettleFunding(idx); err != nil {
		return err
	}
	a := e.account(idx)
	if a.WarmupRemaining > 0 {
		elapsed := currentSlot - a.WarmupStartedSlot
		consumed := elapsed * a.WarmupSlope
		if consumed >= a.WarmupRemaining {
			a.WarmupRemaining = 0
		} else {
			a.WarmupRemaining -= consumed
		}
		a.WarmupStartedSlot = currentSlot
	}
	return nil
}

// SetPnL directly overwrites an account's realized PnL. It keeps the
// positive-PnL aggregate consistent.
func (e *Engine) SetPnL(idx uint32, newPnL int64) error {
	if err := e.slab.CheckIdx(idx); err != nil {
		return err
	}
	a := e.account(idx)
	delta, err := checkedAddI64(newPnL, -a.RealizedPnL)
	if err != nil {
		return err
	}
	return e.applyPnLDelta(a, delta)
}

// OracleClosePosition force-closes an account's entire position at
// markPriceE6, recording the realized PnL and debiting any realized loss
// from its capital (realized profit stays in RealizedPnL and is not added to
// capital here). On arithmetic overflow it conservatively wipes the
// account's capital to zero and completes the close rather than returning
// an error, since the alternative is an unresolvable instruction abort
// during an emergency close.
func (e *Engine) OracleClosePosition(idx uint32, markPriceE6 uint64) error {
	if err := e.slab.CheckIdx(idx); err != nil {
		return err
	}
	a := e.account(idx)
	if a.Position == 0 {
		return nil
	}
	return e.closeSlice(idx, a.Position, markPriceE6)
}

// OracleClosePositionSlice force-closes sizeAbs of an account's position
// (same sign as the current position) at markPriceE6, used by the
// liquidation engine's closed-form partial-close sizing.
func (e *Engine) OracleClosePositionSlice(idx uint32, sizeAbs uint64, markPriceE6 uint64) error {
	if err := e.slab.CheckIdx(idx); err != nil {
		return err
	}
	a := e.account(idx)
	if a.Position == 0 || sizeAbs == 0 {
		return nil
	}
	slice := int64(sizeAbs)
	if a.Position < 0 {
		slice = -slice
	}
	if absI64(slice) > absI64(a.Position) {
		slice = a.Position
	}
	return e.closeSlice(idx, slice, markPriceE6)
}

func (e *Engine) closeSlice(idx uint32, slice int64, markPriceE6 uint64) error {
	a := e.account(idx)
	pnl, err := realizedPnLOnClose(slice, a.EntryPriceE6, markPriceE6)
	if err == nil {
		err = e.applyPnLDelta(a, pnl)
	}
	if err != nil {
		// Overflow: wipe the capital and still close the position below.
		e.wipeCapital(a)
		pnl = 0
	}

	if pnl < 0 {
		loss := uint64(-pnl)
		if loss >= a.Capital {
			loss = a.Capital
		}
		a.Capital -= loss
		e.slab.Aggregates.CapitalTotal -= loss
	}
	// Realized profit is tracked via RealizedPnL/PnLPosTotal and settled
	// into capital by the caller's withdraw/resolution path, not added
	// here, to avoid double-counting against c_tot.

	before := a.Position
	after := before - slice
	if err := e.adjustOI(before, after); err != nil {
		return err
	}
	a.Position = after
	if after == 0 {
		a.EntryPriceE6 = 0
	}
	return nil
}

// wipeCapital conservatively zeroes an account's capital and keeps the
// capital-total aggregate in sync, used when a close computation overflows
// and the account's true post-close capital cannot be determined safely.
func (e *Engine) wipeCapital(a *slab.AccountEntry) {
	e.slab.Aggregates.CapitalTotal -= a.Capital
	a.Capital = 0
}
