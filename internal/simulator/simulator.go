// Package simulator turns OHLCV candles into a synthetic tick stream and
// evaluates queue-position-aware fills against resting orders, so the
// GLFT core can be backtested without a live exchange connection
// (spec.md section 4.7).
//
// The teacher has no tick-level backtest harness at all — quotes only
// ever go to a live Polymarket CLOB. The candle/tick shape here is
// grounded on `chidi150c-coinbase/backtest.go`'s CSV-driven candle
// walk-forward loop (inverted: that file reads candles and feeds a
// model, this one synthesizes ticks from candles and feeds a fill
// matcher), and the deterministic seeded randomness is grounded on
// `stadam23-Eve-flipper`'s `rand.New(rand.NewSource(seed))` idiom in its
// own test fixtures, carried here into production code via
// `math/rand/v2`'s PCG source.
package simulator

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/glft-mm/glft-mm/internal/feeschedule"
	"github.com/glft-mm/glft-mm/pkg/mm"
)

// Config holds the simulator tuning knobs spec.md section 6 names.
type Config struct {
	TicksPerCandle int // default 100
	QueueAlpha     float64 // default 0.5
	Seed           uint64  // cfg.SimSeed
	Fees           feeschedule.Schedule
	DepthAtTouch   decimal.Decimal // base units resting ahead at the touch, used to seed queue depth
}

// RestingOrder is one side's simulated resting order, with its queue
// position tracked as ticks consume volume ahead of it.
type RestingOrder struct {
	Side  mm.Side
	Price decimal.Decimal
	Size  decimal.Decimal
	Queue decimal.Decimal
}

// crosses reports whether a tick price crosses this resting order.
func (o *RestingOrder) crosses(tick mm.Tick) bool {
	price := decimal.NewFromFloat(tick.Price)
	if o.Side == mm.Buy {
		return price.LessThanOrEqual(o.Price)
	}
	return price.GreaterThanOrEqual(o.Price)
}

// MatchTick consumes tick volume against the order's queue and reports
// whether the order fills on this tick (spec.md section 4.7 fill model:
// strict zero-queue fills on the first crossing tick regardless of
// volume; otherwise the queue is decremented by the tick's volume).
func MatchTick(o *RestingOrder, tick mm.Tick) bool {
	if !o.crosses(tick) {
		return false
	}
	if o.Queue.LessThanOrEqual(decimal.Zero) {
		return true
	}
	tickVol := decimal.NewFromFloat(tick.Volume)
	o.Queue = o.Queue.Sub(tickVol)
	if o.Queue.LessThan(decimal.Zero) {
		o.Queue = decimal.Zero
	}
	return o.Queue.IsZero()
}

// SynthesizeTicks converts one OHLCV candle into n synthetic ticks
// following the open-low-high-close (bullish) or open-high-low-close
// (bearish) convention, with the candle's volume partitioned uniformly
// across ticks and any rounding remainder placed on the last tick so
// the total equals the candle's volume exactly.
func SynthesizeTicks(candle mm.Candle, n int, rng *rand.Rand) []mm.Tick {
	if n < 2 {
		n = 2
	}
	path := []float64{candle.Open, candle.Low, candle.High, candle.Close}
	if candle.Close < candle.Open {
		path = []float64{candle.Open, candle.High, candle.Low, candle.Close}
	}

	ticks := make([]mm.Tick, n)
	segments := len(path) - 1
	perTickVolume := candle.Volume / float64(n)
	assignedVolume := 0.0

	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1) // 0..1 across the whole candle
		segPos := t * float64(segments)
		seg := int(segPos)
		if seg >= segments {
			seg = segments - 1
		}
		frac := segPos - float64(seg)
		price := path[seg] + frac*(path[seg+1]-path[seg])

		if i != 0 && i != n-1 {
			segLow, segHigh := path[seg], path[seg+1]
			if segLow > segHigh {
				segLow, segHigh = segHigh, segLow
			}
			jitterRange := (segHigh - segLow) * 0.05
			if jitterRange > 0 {
				jitter := (rng.Float64()*2 - 1) * jitterRange
				price += jitter
			}
			price = clamp(price, candle.Low, candle.High)
		}
		if i == 0 {
			price = candle.Open
		}
		if i == n-1 {
			price = candle.Close
		}

		vol := perTickVolume
		if i == n-1 {
			vol = candle.Volume - assignedVolume
		} else {
			assignedVolume += perTickVolume
		}

		interval := candle.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		step := time.Duration(float64(interval) * float64(i) / float64(n-1))

		ticks[i] = mm.Tick{
			Price:  price,
			Volume: vol,
			Time:   candle.Start.Add(step),
		}
	}
	return ticks
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Strategy is the decision-making callback the simulator drives once per
// synthetic tick, matching spec.md section 4.8's "per-tick in backtest"
// epoch cadence. It is implemented by the epoch driver in backtest mode.
type Strategy interface {
	Decide(now time.Time, mid decimal.Decimal) (bid, ask *RestingOrder, withdraw bool, err error)
	OnFill(fill mm.Fill)
}

// Result is the outcome of a full Simulator.Run.
type Result struct {
	Fills      []mm.Fill
	Inventory  float64
	Cash       decimal.Decimal
	EquityPath []EquityPoint
}

// EquityPoint is one row of the equity curve, sampled once per candle.
type EquityPoint struct {
	Time   time.Time
	Equity decimal.Decimal
}

// Simulator owns the deterministic PRNG and fee schedule used to drive a
// backtest over a candle stream.
type Simulator struct {
	cfg Config
}

// New creates a Simulator. Run builds one PCG source per candle, seeded
// with the pair (cfg.Seed, candle index), so re-running from an arbitrary
// candle index reproduces the same tick stream for that candle.
func New(cfg Config) *Simulator {
	if cfg.TicksPerCandle == 0 {
		cfg.TicksPerCandle = 100
	}
	if cfg.QueueAlpha == 0 {
		cfg.QueueAlpha = 0.5
	}
	return &Simulator{cfg: cfg}
}

// Run drives the strategy across every candle's synthetic tick stream,
// evaluating fills and accumulating inventory, cash, and an equity
// curve. It performs no wall-clock reads; every timestamp derives from
// the candle stream, satisfying spec.md section 4.7's determinism
// requirement.
func (s *Simulator) Run(candles []mm.Candle, strategy Strategy) (Result, error) {
	var result Result
	var inventory float64
	cash := decimal.Zero

	for idx, candle := range candles {
		rng := rand.New(rand.NewPCG(s.cfg.Seed, uint64(idx)))
		ticks := SynthesizeTicks(candle, s.cfg.TicksPerCandle, rng)

		var totalVol float64
		for _, t := range ticks {
			totalVol += t.Volume
		}
		if diff := totalVol - candle.Volume; diff > 1e-6 || diff < -1e-6 {
			return result, fmt.Errorf("simulator: tick volume %.9f does not match candle volume %.9f at candle %d", totalVol, candle.Volume, idx)
		}

		var bid, ask *RestingOrder
		for _, tick := range ticks {
			mid := decimal.NewFromFloat(tick.Price)
			newBid, newAsk, withdraw, err := strategy.Decide(tick.Time, mid)
			if err != nil {
				return result, fmt.Errorf("simulator: strategy decide: %w", err)
			}
			if withdraw {
				bid, ask = nil, nil
			} else {
				if newBid != nil && (bid == nil || !bid.Price.Equal(newBid.Price)) {
					bid = newBid
					bid.Queue = s.queueFor(bid.Size)
				}
				if newAsk != nil && (ask == nil || !ask.Price.Equal(newAsk.Price)) {
					ask = newAsk
					ask.Queue = s.queueFor(ask.Size)
				}
			}

			// Buy evaluated before sell on the same tick (spec.md section
			// 4.7: "two fills on the same tick are permitted and must
			// update inventory and cash in a deterministic order (buy
			// first)").
			if bid != nil && MatchTick(bid, tick) {
				fill := s.settle(mm.Buy, bid.Price, bid.Size, tick.Time, &inventory, &cash)
				result.Fills = append(result.Fills, fill)
				strategy.OnFill(fill)
				bid = nil
			}
			if ask != nil && MatchTick(ask, tick) {
				fill := s.settle(mm.Sell, ask.Price, ask.Size, tick.Time, &inventory, &cash)
				result.Fills = append(result.Fills, fill)
				strategy.OnFill(fill)
				ask = nil
			}
		}

		lastPrice := decimal.NewFromFloat(candle.Close)
		equity := cash.Add(lastPrice.Mul(decimal.NewFromFloat(inventory)))
		result.EquityPath = append(result.EquityPath, EquityPoint{Time: candle.Start, Equity: equity})
	}

	result.Inventory = inventory
	result.Cash = cash
	return result, nil
}

func (s *Simulator) queueFor(size decimal.Decimal) decimal.Decimal {
	depth := s.cfg.DepthAtTouch
	if depth.IsZero() {
		depth = size.Div(decimal.NewFromFloat(s.cfg.QueueAlpha))
	}
	return depth.Mul(decimal.NewFromFloat(s.cfg.QueueAlpha))
}

func (s *Simulator) settle(side mm.Side, price, size decimal.Decimal, ts time.Time, inventory *float64, cash *decimal.Decimal) mm.Fill {
	fee := price.Mul(size).Mul(s.cfg.Fees.MakerRate())
	sizeFloat, _ := size.Float64()
	notional := price.Mul(size)

	if side == mm.Buy {
		*inventory += sizeFloat
		*cash = cash.Sub(notional).Sub(fee)
	} else {
		*inventory -= sizeFloat
		*cash = cash.Add(notional).Sub(fee)
	}

	return mm.Fill{
		Timestamp: ts,
		Side:      side,
		Price:     price,
		Size:      size,
		IsMaker:   true,
		Fee:       fee,
	}
}
