package crank

import (
	"testing"

	"percolator/core/keys"
	"percolator/internal/risk"
	"percolator/internal/slab"

	"github.com/stretchr/testify/require"
)

func newTestMarket(cfg slab.MarketConfig) (*slab.Slab, *risk.Engine) {
	s := slab.New(keys.Pubkey{1}, keys.Pubkey{2}, 1, cfg)
	return s, risk.NewEngine(s)
}

func TestRunAccruesFundingAndAdvancesCursor(t *testing.T) {
	s, e := newTestMarket(slab.MarketConfig{FundingRateBpsPerSlot: 10})
	k := NewKeeper(s, e)

	cur := &Cursor{}
	report, err := k.Run(cur, 5, 100_000, 0, false, false)
	require.NoError(t, err)
	require.Equal(t, uint32(slab.AccountsPerCrank), cur.Next)
	require.Equal(t, int64(50), s.Header.FundingIndexE6)
	require.Equal(t, 0, report.AccountsVisited)
}

func TestRunAppliesMaintenanceFeeToOpenPosition(t *testing.T) {
	s, e := newTestMarket(slab.MarketConfig{MaintenanceFeeBps: 100})
	idx, err := s.AllocateAccount(keys.Pubkey{9}, slab.KindUser)
	require.NoError(t, err)
	require.NoError(t, e.Deposit(idx, 1_000_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	k := NewKeeper(s, e)
	cur := &Cursor{}
	report, err := k.Run(cur, 1, 100_000, 0, false, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.MaintenanceFeesApplied)
	require.Less(t, s.Accounts[idx].Capital, uint64(1_000_000))
}

func TestRunLiquidatesUnderMarginedAccount(t *testing.T) {
	cfg := slab.MarketConfig{MaintenanceFeeBps: 500, MinLiquidationAbs: 1}
	s, e := newTestMarket(cfg)
	idx, err := s.AllocateAccount(keys.Pubkey{9}, slab.KindUser)
	require.NoError(t, err)
	require.NoError(t, e.Deposit(idx, 10))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	k := NewKeeper(s, e)
	cur := &Cursor{}
	_, err = k.Run(cur, 1, 100_000, 0, false, false)
	require.NoError(t, err)
	require.Less(t, absPositionHelper(s, idx), uint64(10_000))
}

func TestRunPanicModeForceClosesAllOpenPositions(t *testing.T) {
	s, e := newTestMarket(slab.MarketConfig{MaintenanceFeeBps: 100})
	idx, err := s.AllocateAccount(keys.Pubkey{9}, slab.KindUser)
	require.NoError(t, err)
	require.NoError(t, e.Deposit(idx, 1_000_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	k := NewKeeper(s, e)
	cur := &Cursor{}
	report, err := k.Run(cur, 1, 100_000, 0, false, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.ForceRealizes)
	require.Equal(t, int64(0), s.Accounts[idx].Position)
}

func TestRunWrapsCursorAndCollectsClosableAccounts(t *testing.T) {
	s, e := newTestMarket(slab.MarketConfig{})
	idx, err := s.AllocateAccount(keys.Pubkey{9}, slab.KindUser)
	require.NoError(t, err)
	_ = idx

	k := NewKeeper(s, e)
	cur := &Cursor{Next: slab.MaxAccounts - 1}
	report, err := k.Run(cur, 1, 100_000, 0, false, false)
	require.NoError(t, err)
	require.True(t, report.CursorWrapped)
	require.Equal(t, 1, report.AccountsCollected)
}

func TestLiquidationSliceSkipsWhenRequirementRoundsToZero(t *testing.T) {
	// Notional 10 * 100_000 / 1e6 = 1; 1 * 1 bps rounds to a zero
	// requirement, so zero capital still covers it.
	a := &slab.AccountEntry{Position: 10, Capital: 0}
	cfg := slab.MarketConfig{MaintenanceFeeBps: 1, MinLiquidationAbs: 1_000_000}
	size, should := LiquidationSlice(a, 100_000, cfg)
	require.False(t, should)
	require.Equal(t, uint64(0), size)
}

func absPositionHelper(s *slab.Slab, idx uint32) uint64 {
	p := s.Accounts[idx].Position
	if p < 0 {
		return uint64(-p)
	}
	return uint64(p)
}
