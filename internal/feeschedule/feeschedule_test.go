package feeschedule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownTier(t *testing.T) {
	_, err := New(Tier("bogus"))
	require.Error(t, err)
	var ip ErrInvalidParameters
	require.ErrorAs(t, err, &ip)
}

func TestMinProfitableHalfSpreadTwoMaker(t *testing.T) {
	s, err := New(TierRegular)
	require.NoError(t, err)

	mid := decimal.NewFromInt(100000)
	half := s.MinProfitableHalfSpread(mid, TwoMaker)

	// Regular tier maker = 10bps = 0.001 -> half spread = 100
	require.True(t, half.Equal(decimal.NewFromFloat(100)), "got %s", half)
}

// TestMinProfitableHalfSpreadMarketMakerRebate covers S6: a negative-rebate
// tier may legitimately produce a zero/negative minimum half-spread, which
// the caller (not this package) must clamp to MIN_SPREAD_DOLLAR.
func TestMinProfitableHalfSpreadMarketMakerRebate(t *testing.T) {
	s, err := New(TierMarketMaker)
	require.NoError(t, err)

	mid := decimal.NewFromInt(100000)
	half := s.MinProfitableHalfSpread(mid, TwoMaker)

	require.True(t, half.IsNegative(), "market-maker tier should have a negative min half-spread, got %s", half)
}

// TestFeeMonotonicity is invariant 8 from spec.md section 8: min profitable
// half-spread is monotone non-decreasing in each fee component.
func TestFeeMonotonicity(t *testing.T) {
	mid := decimal.NewFromInt(100000)

	regular, err := New(TierRegular)
	require.NoError(t, err)
	vip, err := New(TierVIP1)
	require.NoError(t, err)

	// VIP1 has lower maker/taker rates than Regular, so its min spread
	// must be lower or equal across both round-trip modes.
	for _, mode := range []RoundTripMode{TwoMaker, MakerPlusTaker} {
		regHalf := regular.MinProfitableHalfSpread(mid, mode)
		vipHalf := vip.MinProfitableHalfSpread(mid, mode)
		require.True(t, vipHalf.LessThanOrEqual(regHalf),
			"mode=%v: vip half %s should be <= regular half %s", mode, vipHalf, regHalf)
	}
}

// TestBBOViability is S6: at S=100000 with BBO=$0.20, the Regular tier's
// maker-fee-implied half spread of $100 is nowhere close to viable,
// while the negative-rebate market-maker tier trivially clears a $0.20 BBO.
func TestBBOViability(t *testing.T) {
	mid := decimal.NewFromInt(100000)
	bboHalf := decimal.NewFromFloat(0.10) // $0.20 BBO split across two sides

	regular, err := New(TierRegular)
	require.NoError(t, err)
	require.False(t, bboHalf.GreaterThan(regular.MinProfitableHalfSpread(mid, TwoMaker)),
		"regular tier should not be viable at a $0.20 BBO")

	mmTier, err := New(TierMarketMaker)
	require.NoError(t, err)
	require.True(t, bboHalf.GreaterThan(mmTier.MinProfitableHalfSpread(mid, TwoMaker)),
		"market-maker tier should be viable at a $0.20 BBO")
}
