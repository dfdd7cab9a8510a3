package risk

import percerrors "percolator/core/errors"

// AccrueFunding advances the market's cumulative funding index by
// rateBpsPerSlot (clamped to ±maxFundingBpsAbs) applied over dtSlots
// (clamped to one year of slots). The configured rate at the time of the
// call is the one that takes effect; a rate update that lands in the same
// instruction as an accrual never applies retroactively because the
// dispatcher always accrues before writing a new rate.
func (e *Engine) AccrueFunding(currentSlot uint64) error {
	h := &e.slab.Header
	if currentSlot <= h.FundingIndexSlot {
		return nil
	}
	dt := currentSlot - h.FundingIndexSlot
	if dt > slotsPerYear {
		dt = slotsPerYear
	}
	rate := clampI64(e.slab.Config.FundingRateBpsPerSlot, -maxFundingBpsAbs, maxFundingBpsAbs)

	delta, err := checkedMulDivI64(rate, dt, 1)
	if err != nil {
		return percerrors.ErrOverflow
	}
	newIndex, err := checkedAddI64(h.FundingIndexE6, delta)
	if err != nil {
		return percerrors.ErrOverflow
	}
	h.FundingIndexE6 = newIndex
	h.FundingIndexSlot = currentSlot
	return nil
}
