package simulator

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/glft-mm/glft-mm/internal/feeschedule"
	"github.com/glft-mm/glft-mm/pkg/mm"
)

// TestSynthesizeTicksBullishCandle is scenario S3 from spec.md section 8.
func TestSynthesizeTicksBullishCandle(t *testing.T) {
	candle := mm.Candle{
		Open: 99000, High: 101000, Low: 98500, Close: 100500, Volume: 5.0,
		Start: time.Unix(0, 0), Interval: time.Minute,
	}
	rng := rand.New(rand.NewPCG(1, 0))
	ticks := SynthesizeTicks(candle, 100, rng)

	require.Len(t, ticks, 100)
	require.InDelta(t, 99000, ticks[0].Price, 1e-9)
	require.InDelta(t, 100500, ticks[len(ticks)-1].Price, 1e-9)

	var totalVol float64
	for _, tick := range ticks {
		require.GreaterOrEqual(t, tick.Price, candle.Low)
		require.LessOrEqual(t, tick.Price, candle.High)
		totalVol += tick.Volume
	}
	require.InDelta(t, candle.Volume, totalVol, 1e-9)
}

func TestSynthesizeTicksBearishUsesHighLowPath(t *testing.T) {
	candle := mm.Candle{
		Open: 100500, High: 101000, Low: 98500, Close: 99000, Volume: 3.0,
		Start: time.Unix(0, 0), Interval: time.Minute,
	}
	rng := rand.New(rand.NewPCG(1, 0))
	ticks := SynthesizeTicks(candle, 100, rng)
	require.InDelta(t, 100500, ticks[0].Price, 1e-9)
	require.InDelta(t, 99000, ticks[len(ticks)-1].Price, 1e-9)
	// open->high->low->close: the tick a third of the way in sits near the
	// high, the one two thirds in near the low.
	require.Greater(t, ticks[33].Price, ticks[66].Price)
}

// TestMatchTickQueueDelay is scenario S4 from spec.md section 8.
func TestMatchTickQueueDelay(t *testing.T) {
	order := &RestingOrder{Side: mm.Buy, Price: decimal.NewFromInt(99500), Queue: decimal.NewFromFloat(1.0)}

	filled := MatchTick(order, mm.Tick{Price: 99400, Volume: 0.5})
	require.False(t, filled)
	require.True(t, order.Queue.Equal(decimal.NewFromFloat(0.5)))

	filled = MatchTick(order, mm.Tick{Price: 99300, Volume: 0.6})
	require.True(t, filled)
}

// TestMatchTickZeroQueueFillsImmediately covers the strict-inequality
// edge case named in spec.md section 4.7: at queue depth zero, the order
// fills on the first crossing tick regardless of volume.
func TestMatchTickZeroQueueFillsImmediately(t *testing.T) {
	order := &RestingOrder{Side: mm.Sell, Price: decimal.NewFromInt(100500), Queue: decimal.Zero}
	require.True(t, MatchTick(order, mm.Tick{Price: 100600, Volume: 0.0001}))
}

// TestMatchTickBothSidesIndependentTicks is scenario S5 from spec.md
// section 8: with zero queue, a tick that crosses neither order fills
// neither, and each side then fills on its own crossing tick.
func TestMatchTickBothSidesIndependentTicks(t *testing.T) {
	buy := &RestingOrder{Side: mm.Buy, Price: decimal.NewFromInt(99500), Queue: decimal.Zero}
	sell := &RestingOrder{Side: mm.Sell, Price: decimal.NewFromInt(100500), Queue: decimal.Zero}

	require.False(t, MatchTick(buy, mm.Tick{Price: 99600}))
	require.False(t, MatchTick(sell, mm.Tick{Price: 99600}))

	require.True(t, MatchTick(buy, mm.Tick{Price: 99400}))
	require.True(t, MatchTick(sell, mm.Tick{Price: 100600}))
}

// fixedStrategy quotes a constant bid/ask for every tick; used to
// exercise Simulator.Run end-to-end.
type fixedStrategy struct {
	bidPrice, askPrice decimal.Decimal
	size               decimal.Decimal
	fills              []mm.Fill
}

func (f *fixedStrategy) Decide(now time.Time, mid decimal.Decimal) (bid, ask *RestingOrder, withdraw bool, err error) {
	return &RestingOrder{Side: mm.Buy, Price: f.bidPrice, Size: f.size},
		&RestingOrder{Side: mm.Sell, Price: f.askPrice, Size: f.size},
		false, nil
}

func (f *fixedStrategy) OnFill(fill mm.Fill) { f.fills = append(f.fills, fill) }

func TestRunIsDeterministicAcrossRuns(t *testing.T) {
	candles := []mm.Candle{
		{Open: 100000, High: 100800, Low: 99200, Close: 100300, Volume: 2.0, Start: time.Unix(0, 0), Interval: time.Minute},
		{Open: 100300, High: 100900, Low: 99800, Close: 99900, Volume: 1.5, Start: time.Unix(60, 0), Interval: time.Minute},
	}
	fees, err := feeschedule.New(feeschedule.TierRegular)
	require.NoError(t, err)
	cfg := Config{
		TicksPerCandle: 50,
		QueueAlpha:     0.5,
		Seed:           42,
		Fees:           fees,
		DepthAtTouch:   decimal.NewFromFloat(2.0),
	}

	run := func() Result {
		sim := New(cfg)
		strat := &fixedStrategy{
			bidPrice: decimal.NewFromInt(99900),
			askPrice: decimal.NewFromInt(100400),
			size:     decimal.NewFromFloat(0.1),
		}
		result, err := sim.Run(candles, strat)
		require.NoError(t, err)
		return result
	}

	r1 := run()
	r2 := run()
	require.Equal(t, len(r1.Fills), len(r2.Fills))
	for i := range r1.Fills {
		require.True(t, r1.Fills[i].Price.Equal(r2.Fills[i].Price))
		require.True(t, r1.Fills[i].Timestamp.Equal(r2.Fills[i].Timestamp))
	}
	require.True(t, r1.Cash.Equal(r2.Cash))
	require.InDelta(t, r1.Inventory, r2.Inventory, 1e-12)
}
