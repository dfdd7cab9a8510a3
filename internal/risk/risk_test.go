package risk

import (
	"testing"

	"percolator/core/keys"
	"percolator/internal/slab"

	"github.com/stretchr/testify/require"
)

func newTestSlab() *slab.Slab {
	s := slab.New(keys.Pubkey{1}, keys.Pubkey{2}, 1, slab.MarketConfig{
		MaintenanceFeeBps:      500,
		LiquidationBufferUnits: 0,
	})
	return s
}

func mustOpenAccount(t *testing.T, s *slab.Slab, owner keys.Pubkey) uint32 {
	idx, err := s.AllocateAccount(owner, slab.KindUser)
	require.NoError(t, err)
	return idx
}

func TestDepositCreditsCapitalAndAggregate(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)

	require.NoError(t, e.Deposit(idx, 1_000))
	require.Equal(t, uint64(1_000), s.Accounts[idx].Capital)
	require.Equal(t, uint64(1_000), s.Aggregates.CapitalTotal)
}

func TestWithdrawRejectsBelowRequiredMargin(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)

	require.NoError(t, e.Deposit(idx, 1_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	// Required margin = 10_000 * 100_000 / 1e6 * 500/10_000 = 50.
	require.NoError(t, e.Withdraw(idx, 900, 100_000))
	require.Error(t, e.Withdraw(idx, 100, 100_000))
}

func TestTradeOpenAndIncreaseBlendsEntryPrice(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	require.NoError(t, e.Deposit(idx, 100_000))

	require.NoError(t, e.Trade(idx, 10_000, 100_000))
	require.Equal(t, int64(10_000), s.Accounts[idx].Position)
	require.Equal(t, uint64(100_000), s.Accounts[idx].EntryPriceE6)
	require.Equal(t, uint64(10_000), s.Aggregates.OILong)

	require.NoError(t, e.Trade(idx, 10_000, 200_000))
	require.Equal(t, int64(20_000), s.Accounts[idx].Position)
	require.Equal(t, uint64(150_000), s.Accounts[idx].EntryPriceE6)
	require.Equal(t, uint64(20_000), s.Aggregates.OILong)
}

func TestTradeReduceRealizesPnL(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	require.NoError(t, e.Deposit(idx, 100_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	// Close half the position at a higher price: profit.
	require.NoError(t, e.Trade(idx, -5_000, 120_000))
	require.Equal(t, int64(5_000), s.Accounts[idx].Position)
	require.Equal(t, int64(100), s.Accounts[idx].RealizedPnL) // 5000 * 20000 / 1e6
	require.Equal(t, uint64(100), s.Aggregates.PnLPosTotal)
	require.Equal(t, uint64(100_000), s.Accounts[idx].EntryPriceE6) // unchanged on reduce
}

func TestTradeFlipResetsEntryPrice(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	require.NoError(t, e.Deposit(idx, 100_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	require.NoError(t, e.Trade(idx, -15_000, 110_000))
	require.Equal(t, int64(-5_000), s.Accounts[idx].Position)
	require.Equal(t, uint64(110_000), s.Accounts[idx].EntryPriceE6)
	require.Equal(t, uint64(0), s.Aggregates.OILong)
	require.Equal(t, uint64(5_000), s.Aggregates.OIShort)
}

func TestTradeCloseToZeroClearsEntryPrice(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	require.NoError(t, e.Deposit(idx, 100_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))
	require.NoError(t, e.Trade(idx, -10_000, 100_000))

	require.Equal(t, int64(0), s.Accounts[idx].Position)
	require.Equal(t, uint64(0), s.Accounts[idx].EntryPriceE6)
}

func TestAccrueFundingAndSettle(t *testing.T) {
	s := newTestSlab()
	s.Config.FundingRateBpsPerSlot = 100
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	require.NoError(t, e.Deposit(idx, 100_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	require.NoError(t, e.AccrueFunding(5))
	require.Equal(t, int64(500), s.Header.FundingIndexE6)

	require.NoError(t, e.SettleFunding(idx))
	require.Equal(t, int64(-5), s.Accounts[idx].RealizedPnL) // 10000 * 500 / 1e6, negated
}

func TestAccrueFundingNoOpWhenSlotDoesNotAdvance(t *testing.T) {
	s := newTestSlab()
	e := NewEngine(s)
	require.NoError(t, e.AccrueFunding(0))
	require.Equal(t, int64(0), s.Header.FundingIndexE6)
}

func TestOracleClosePositionFull(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	require.NoError(t, e.Deposit(idx, 100_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	require.NoError(t, e.OracleClosePosition(idx, 50_000))
	require.Equal(t, int64(0), s.Accounts[idx].Position)
	require.Equal(t, uint64(0), s.Aggregates.OILong)
	// Loss of 10000 * 50000 / 1e6 = 500 units.
	require.Equal(t, uint64(99_500), s.Accounts[idx].Capital)
}

func TestOracleClosePositionSliceProportional(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	require.NoError(t, e.Deposit(idx, 100_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	require.NoError(t, e.OracleClosePositionSlice(idx, 4_000, 100_000))
	require.Equal(t, int64(6_000), s.Accounts[idx].Position)
	require.Equal(t, uint64(6_000), s.Aggregates.OILong)
}

func TestOracleClosePositionSliceClampsToPosition(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	require.NoError(t, e.Deposit(idx, 100_000))
	require.NoError(t, e.Trade(idx, 10_000, 100_000))

	require.NoError(t, e.OracleClosePositionSlice(idx, 999_000, 100_000))
	require.Equal(t, int64(0), s.Accounts[idx].Position)
}

func TestSetPnLUpdatesAggregate(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)

	require.NoError(t, e.SetPnL(idx, 500))
	require.Equal(t, uint64(500), s.Aggregates.PnLPosTotal)

	require.NoError(t, e.SetPnL(idx, -100))
	require.Equal(t, uint64(0), s.Aggregates.PnLPosTotal)
	require.Equal(t, int64(-100), s.Accounts[idx].RealizedPnL)
}

func TestConservationHoldsAfterDepositTradeWithdraw(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)

	require.NoError(t, e.Deposit(idx, 10_000))
	s.VaultBalance += 10_000
	require.NoError(t, e.Trade(idx, 1_000, 100_000))
	require.NoError(t, e.Trade(idx, -500, 110_000))
	require.NoError(t, e.Withdraw(idx, 1_000, 100_000))
	s.VaultBalance -= 1_000

	require.NoError(t, s.CheckConservation())
}

func TestTouchAccountFullAdvancesWarmup(t *testing.T) {
	s := newTestSlab()
	idx := mustOpenAccount(t, s, keys.Pubkey{9})
	e := NewEngine(s)
	s.Accounts[idx].WarmupRemaining = 100
	s.Accounts[idx].WarmupSlope = 10
	s.Accounts[idx].WarmupStartedSlot = 0

	require.NoError(t, e.TouchAccountFull(idx, 5))
	require.Equal(t, uint64(50), s.Accounts[idx].WarmupRemaining)

	require.NoError(t, e.TouchAccountFull(idx, 15))
	require.Equal(t, uint64(0), s.Accounts[idx].WarmupRemaining)
}
