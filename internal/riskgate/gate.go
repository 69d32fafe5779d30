// Package riskgate implements the risk/safety state machine that decides
// whether, how wide, and how skewed to quote at each decision epoch
// (spec.md section 4.5). It runs eight sequential guard stages over the
// quoter's raw (bid, ask); ordering is load-bearing and must not change.
//
// The gate owns all of its own mutable cooldown/arming state
// (mm.GuardState) and is driven from a single goroutine (the epoch
// driver), so unlike the teacher's risk.Manager — which is accessed
// concurrently from one goroutine per market and therefore needs a
// sync.RWMutex — this gate needs no lock at all (spec.md section 5:
// "no locks required under the single-threaded discipline"). The
// inventory hard-limit, kill-switch-style halt, and fill-toxicity
// tracking are generalizations of the teacher's risk.Manager and
// strategy.FlowTracker into this single ordered pipeline.
package riskgate

import (
	"time"

	"github.com/glft-mm/glft-mm/internal/feeschedule"
	"github.com/glft-mm/glft-mm/internal/quoter"
	"github.com/glft-mm/glft-mm/pkg/mm"
	"github.com/shopspring/decimal"
)

// ErrGateHalt is surfaced when the kappa provider (or another upstream
// component) has escalated to Degraded and the gate must pull quotes
// entirely (spec.md section 7).
type ErrGateHalt struct {
	Reason string
}

func (e ErrGateHalt) Error() string { return "riskgate: halted: " + e.Reason }

// Config holds every threshold spec.md section 6's configuration table
// assigns to the gate.
type Config struct {
	TickJumpPct      float64 // step 1, default 0.02
	DisplacementPct  float64 // step 2
	DispWidenMult    float64 // step 2, default 2.0
	DisplacementCooldown time.Duration // tau_D

	RegimeFilterEnabled bool // step 3

	InventorySoftLimit float64 // step 4
	InventoryHardLimit float64 // step 5

	MinSpreadDollar decimal.Decimal // step 6
	MaxSpreadDollar decimal.Decimal // step 6
	Fees            feeschedule.Schedule
	RoundTripMode   feeschedule.RoundTripMode

	NImb          int           // step 7: fill window length
	ImbThreshold  float64       // step 7: fraction one-sided to trigger cooldown
	ImbalanceCooldown time.Duration // tau_I

	LiqThresholdPct float64 // step 8, default 0.20
	IsFutures       bool
}

// Input is everything the gate needs for one epoch, computed upstream by
// the book, volatility estimator, kappa provider, and quoter.
type Input struct {
	Now             time.Time
	Mid             decimal.Decimal
	TickIsOutlier   bool // from book.OnTick's ErrStaleTick
	Raw             quoter.Result
	Inventory       float64
	Regime          mm.Regime
	DistanceToLiqPct float64 // futures only; ignored for spot
	GateHalted      bool     // true if kappa (or another upstream) escalated to Degraded
}

// Gate runs the eight-step pipeline and owns the cooldown/arming state
// between epochs.
type Gate struct {
	cfg   Config
	guard mm.GuardState

	fillSides []mm.Side
	fillCap   int
}

// New creates a gate with the given configuration.
func New(cfg Config) *Gate {
	g := &Gate{cfg: cfg}
	if cfg.NImb > 0 {
		g.fillCap = cfg.NImb
		g.fillSides = make([]mm.Side, 0, cfg.NImb)
	}
	return g
}

// RecordFill feeds a confirmed fill into the fill-imbalance tracker (step
// 7). Older entries beyond N_IMB are dropped, oldest first.
func (g *Gate) RecordFill(side mm.Side) {
	if g.fillCap == 0 {
		return
	}
	g.fillSides = append(g.fillSides, side)
	if len(g.fillSides) > g.fillCap {
		g.fillSides = g.fillSides[len(g.fillSides)-g.fillCap:]
	}
}

// GuardState returns a copy of the gate's current cooldown/arming state.
func (g *Gate) GuardState() mm.GuardState { return g.guard }

// Run executes all eight guard stages in spec.md section 4.5's fixed
// order and returns the gated verdict.
func (g *Gate) Run(in Input) (mm.GatedQuote, error) {
	if in.GateHalted {
		return withdrawAll("kappa provider degraded"), ErrGateHalt{Reason: "kappa degraded"}
	}

	// Step 1: tick filter. The caller (epoch driver) is responsible for
	// not advancing the volatility estimator when this fires; the gate's
	// job here is only to withdraw.
	if in.TickIsOutlier {
		return withdrawAll("tick jump exceeds outlier threshold"), nil
	}

	bid := in.Raw.BidPrice()
	ask := in.Raw.AskPrice()
	halfSpread := decimal.NewFromFloat(in.Raw.HalfSpread)
	reservation := decimal.NewFromFloat(in.Raw.Reservation)

	// Step 2: displacement guard. Pure widening, never a withdraw.
	widenMult := decimal.NewFromInt(1)
	if !g.guard.LastQuoteMid.IsZero() {
		displacement := in.Mid.Sub(g.guard.LastQuoteMid).Abs()
		threshold := in.Mid.Mul(decimal.NewFromFloat(g.cfg.DisplacementPct))
		if displacement.GreaterThan(threshold) {
			g.guard.DisplacementCooldownUntil = in.Now.Add(g.cfg.DisplacementCooldown)
		}
	}
	if in.Now.Before(g.guard.DisplacementCooldownUntil) {
		mult := g.cfg.DispWidenMult
		if mult <= 0 {
			mult = 2
		}
		widenMult = decimal.NewFromFloat(mult)
	}
	halfSpread = halfSpread.Mul(widenMult)
	bid = reservation.Sub(halfSpread.Div(decimal.NewFromInt(2)))
	ask = reservation.Add(halfSpread.Div(decimal.NewFromInt(2)))

	// Step 3: regime filter.
	if g.cfg.RegimeFilterEnabled && in.Regime == mm.RegimeTrending {
		return withdrawAll("trending regime"), nil
	}

	// Step 4: inventory skew (asymmetric spreads).
	u := 0.0
	if g.cfg.InventorySoftLimit > 0 {
		u = in.Inventory / g.cfg.InventorySoftLimit
	}
	u = clampFloat(u, -1, 1)
	bidFrac := decimal.NewFromFloat(0.5 * (1 - u))
	askFrac := decimal.NewFromFloat(0.5 * (1 + u))
	bid = reservation.Sub(halfSpread.Mul(bidFrac))
	ask = reservation.Add(halfSpread.Mul(askFrac))

	out := mm.GatedQuote{
		Bid: mm.GatedSide{Price: bid},
		Ask: mm.GatedSide{Price: ask},
	}

	// Step 5: hard inventory limit.
	absInv := in.Inventory
	if absInv < 0 {
		absInv = -absInv
	}
	if g.cfg.InventoryHardLimit > 0 && absInv >= g.cfg.InventoryHardLimit {
		if in.Inventory > 0 {
			// Long and growing longer: withdraw the bid.
			out.Bid.Withdraw = true
			out.Bid.WithdrawWhy = "inventory hard limit"
		} else if in.Inventory < 0 {
			out.Ask.Withdraw = true
			out.Ask.WithdrawWhy = "inventory hard limit"
		} else {
			return withdrawAll("inventory hard limit with zero sign"), nil
		}
	}

	// Step 6: spread clamp.
	minProfitable := g.cfg.Fees.MinProfitableHalfSpread(in.Mid, g.cfg.RoundTripMode)
	floor := g.cfg.MinSpreadDollar
	twiceProfitable := minProfitable.Mul(decimal.NewFromInt(2))
	if twiceProfitable.GreaterThan(floor) {
		floor = twiceProfitable
	}
	spread := ask.Sub(bid)
	if spread.LessThan(floor) {
		mid := reservation
		bid = mid.Sub(floor.Div(decimal.NewFromInt(2)))
		ask = mid.Add(floor.Div(decimal.NewFromInt(2)))
	}
	spread = ask.Sub(bid)
	if !g.cfg.MaxSpreadDollar.IsZero() && spread.GreaterThan(g.cfg.MaxSpreadDollar) {
		mid := reservation
		bid = mid.Sub(g.cfg.MaxSpreadDollar.Div(decimal.NewFromInt(2)))
		ask = mid.Add(g.cfg.MaxSpreadDollar.Div(decimal.NewFromInt(2)))
	}
	if bid.GreaterThanOrEqual(ask) {
		return withdrawAll("spread clamp inverted bid/ask"), nil
	}
	out.Bid.Price = bid
	out.Ask.Price = ask

	// Step 7: fill-imbalance cooldown.
	if g.cfg.NImb > 0 && len(g.fillSides) >= g.cfg.NImb {
		buyCount := 0
		for _, s := range g.fillSides {
			if s == mm.Buy {
				buyCount++
			}
		}
		sellCount := len(g.fillSides) - buyCount
		dominant := buyCount
		if sellCount > dominant {
			dominant = sellCount
		}
		frac := float64(dominant) / float64(len(g.fillSides))
		if frac >= g.cfg.ImbThreshold {
			g.guard.ImbalanceCooldownUntil = in.Now.Add(g.cfg.ImbalanceCooldown)
		}
	}
	if in.Now.Before(g.guard.ImbalanceCooldownUntil) {
		underfilled := g.underfilledSide()
		if underfilled == mm.Buy {
			out.Ask.Withdraw = true
			out.Ask.WithdrawWhy = "fill imbalance cooldown"
		} else if underfilled == mm.Sell {
			out.Bid.Withdraw = true
			out.Bid.WithdrawWhy = "fill imbalance cooldown"
		}
	}

	// Step 8: liquidation guard (futures only).
	if g.cfg.IsFutures && g.cfg.LiqThresholdPct > 0 && in.DistanceToLiqPct < g.cfg.LiqThresholdPct {
		g.guard.LiquidationArmed = true
		minSpread := g.cfg.MinSpreadDollar
		if in.Inventory > 0 {
			// Long near liquidation on a drop: close by selling.
			out.Ask.Price = in.Mid.Sub(minSpread)
			out.Ask.ReduceOnly = true
			out.Ask.Withdraw = false
			out.Bid.Withdraw = true
			out.Bid.WithdrawWhy = "liquidation guard"
		} else if in.Inventory < 0 {
			out.Bid.Price = in.Mid.Add(minSpread)
			out.Bid.ReduceOnly = true
			out.Bid.Withdraw = false
			out.Ask.Withdraw = true
			out.Ask.WithdrawWhy = "liquidation guard"
		}
	} else {
		g.guard.LiquidationArmed = false
	}

	if out.Bid.Withdraw && out.Ask.Withdraw {
		out.WithdrawAll = true
		out.WithdrawWhy = "both sides withdrawn"
	}

	// Record the mid at which we actually placed a quote, not merely
	// computed one, so step 2's displacement guard measures movement
	// since our last real placement (spec.md section 3) rather than
	// epoch-to-epoch drift.
	if !out.WithdrawAll {
		g.guard.LastQuoteMid = in.Mid
	}

	return out, nil
}

// underfilledSide returns which side received fewer fills in the current
// window, so step 7 can permit quoting only on that side.
func (g *Gate) underfilledSide() mm.Side {
	buyCount := 0
	for _, s := range g.fillSides {
		if s == mm.Buy {
			buyCount++
		}
	}
	sellCount := len(g.fillSides) - buyCount
	if buyCount > sellCount {
		return mm.Sell
	}
	return mm.Buy
}

func withdrawAll(reason string) mm.GatedQuote {
	return mm.GatedQuote{
		WithdrawAll: true,
		WithdrawWhy: reason,
		Bid:         mm.GatedSide{Withdraw: true, WithdrawWhy: reason},
		Ask:         mm.GatedSide{Withdraw: true, WithdrawWhy: reason},
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
