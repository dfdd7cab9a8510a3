package crank

import "percolator/internal/slab"

// LiquidationSlice computes the closed-form partial-close size for an
// under-margined account: the smallest slice that restores the account to
// its maintenance requirement plus the configured buffer, capped at the
// account's full position. A result below MinLiquidationAbs is treated as
// dust and skipped entirely (the dust kill-switch), since liquidating a
// sliver smaller than the fee it would cost to process is a net loss to
// the market.
func LiquidationSlice(a *slab.AccountEntry, markPriceE6 uint64, cfg slab.MarketConfig) (sizeAbs uint64, shouldLiquidate bool) {
	if a.Position == 0 {
		return 0, false
	}
	abs := absPosition(a)

	notional, err := checkedMulDivU64(abs, markPriceE6, 1_000_000)
	if err != nil {
		return abs, true // overflowing notional is itself a reason to force-close conservatively
	}
	maintenance, err := checkedMulDivU64(notional, cfg.MaintenanceFeeBps, bpsDenominator)
	if err != nil {
		return abs, true
	}
	required := maintenance + cfg.LiquidationBufferUnits

	if a.Capital >= required {
		return 0, false
	}

	deficit := required - a.Capital
	if markPriceE6 == 0 {
		return abs, true
	}
	// Closing x units frees up x * markPriceE6 / 1e6 * maintenanceBps/1e4
	// worth of required margin; invert to find the x that closes the gap,
	// then add the configured buffer worth of extra size so the account
	// clears liquidation with headroom instead of landing exactly at the
	// boundary.
	bpsNotionalNeeded, err := checkedMulDivU64(deficit, bpsDenominator, maxU64(cfg.MaintenanceFeeBps, 1))
	if err != nil {
		return abs, true
	}
	sizeNeeded, err := checkedMulDivU64(bpsNotionalNeeded, 1_000_000, markPriceE6)
	if err != nil {
		return abs, true
	}

	if sizeNeeded < cfg.MinLiquidationAbs {
		return 0, false
	}
	if sizeNeeded > abs {
		sizeNeeded = abs
	}
	// Round up by one unit conservatively: under-sizing the slice would
	// leave the account still under-margined after this crank pass.
	if sizeNeeded < abs {
		sizeNeeded++
	}
	return sizeNeeded, true
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
