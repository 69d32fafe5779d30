package epoch

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/glft-mm/glft-mm/internal/adapterio"
	"github.com/glft-mm/glft-mm/internal/feeschedule"
	"github.com/glft-mm/glft-mm/internal/kappa"
	"github.com/glft-mm/glft-mm/internal/ordermanager"
	"github.com/glft-mm/glft-mm/internal/riskgate"
	"github.com/glft-mm/glft-mm/internal/simulator"
	"github.com/glft-mm/glft-mm/pkg/mm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nil, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	fees, err := feeschedule.New(feeschedule.TierRegular)
	require.NoError(t, err)

	gateCfg := riskgate.Config{
		TickJumpPct:     0.02,
		DispWidenMult:   2.0,
		MinSpreadDollar: decimal.NewFromFloat(1),
		MaxSpreadDollar: decimal.NewFromFloat(1000),
		Fees:            fees,
		RoundTripMode:   feeschedule.TwoMaker,
	}
	omCfg := ordermanager.Config{
		PriceTolerance:   decimal.NewFromFloat(0.5),
		SizeTolerancePct: 0.1,
		AckTimeout:       3 * time.Second,
	}
	cfg := Config{
		Gamma:         0.1,
		KappaProvider: kappa.NewConstant(1.5, 140),
		Quantity:      decimal.NewFromFloat(0.01),
	}
	return New(cfg, gateCfg, omCfg, 30, 0.01, testLogger())
}

func TestRunEpochPlacesBothSidesFromFlatInventory(t *testing.T) {
	d := newTestDriver(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	gated, actions, err := d.RunEpoch(now, decimal.NewFromInt(100000), nil, 1.0)
	require.NoError(t, err)
	require.False(t, gated.WithdrawAll)
	require.Len(t, actions, 2)
}

func TestRunEpochWithdrawsOnOutlierTick(t *testing.T) {
	d := newTestDriver(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := d.RunEpoch(now, decimal.NewFromInt(100000), nil, 1.0)
	require.NoError(t, err)

	later := now.Add(time.Second)
	gated, _, err := d.RunEpoch(later, decimal.NewFromInt(200000), nil, 1.0)
	require.NoError(t, err)
	require.True(t, gated.WithdrawAll)
}

func TestOnFillUpdatesInventoryAndCash(t *testing.T) {
	d := newTestDriver(t)
	d.OnFill(mm.Fill{
		Side:  mm.Buy,
		Price: decimal.NewFromInt(100000),
		Size:  decimal.NewFromFloat(0.01),
		Fee:   decimal.NewFromFloat(0.1),
	})
	require.InDelta(t, 0.01, d.Inventory(), 1e-9)
	require.True(t, d.Cash().LessThan(decimal.Zero))
}

func TestSweepAckTimeoutsDoesNotPanicWithNoOpenOrders(t *testing.T) {
	d := newTestDriver(t)
	d.SweepAckTimeouts(time.Now().Add(time.Hour))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	d := newTestDriver(t)
	fake := adapterio.NewFake()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	fake.PushTick(mm.Tick{Price: 100000})

	err := Run(ctx, d, fake, 10*time.Millisecond, nil)
	require.Error(t, err)
}

func TestNewBacktestStrategyQuotesBothSidesWhenGateOpen(t *testing.T) {
	d := newTestDriver(t)
	strat := NewBacktestStrategy(d, decimal.NewFromFloat(0.01))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bid, ask, withdraw, err := strat.Decide(now, decimal.NewFromInt(100000))
	require.NoError(t, err)
	require.False(t, withdraw)
	require.NotNil(t, bid)
	require.NotNil(t, ask)

	var _ simulator.Strategy = strat
}

func TestToCommandMapsActionKinds(t *testing.T) {
	place := toCommand(ordermanager.Action{Kind: ordermanager.ActionPlace, Side: mm.Buy, ClientID: "a", Price: decimal.NewFromInt(1), Size: decimal.NewFromInt(1)})
	require.Equal(t, adapterio.CommandPlace, place.Kind)

	cancel := toCommand(ordermanager.Action{Kind: ordermanager.ActionCancel, Side: mm.Sell, CancelClientID: "b"})
	require.Equal(t, adapterio.CommandCancel, cancel.Kind)
	require.Equal(t, "b", cancel.ClientID)

	amend := toCommand(ordermanager.Action{Kind: ordermanager.ActionAmend, Side: mm.Buy, ClientID: "c"})
	require.Equal(t, adapterio.CommandAmend, amend.Kind)
}
