// Package mm defines the shared vocabulary for the GLFT market-making core:
// sides, regimes, candles, depth snapshots, fills, and the quote/guard
// types that flow between the quoter, the risk gate, the order manager,
// and the tick simulator. It has no dependency on any other internal
// package so it can be imported from any layer.
package mm

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Regime is the coarse market-state classification fed by an external
// trend/ADX feed and consulted by the risk gate's regime filter.
type Regime string

const (
	RegimeRanging  Regime = "RANGING"
	RegimeTrending Regime = "TRENDING"
	RegimeUnknown  Regime = "UNKNOWN"
)

// InstrumentKind distinguishes spot from perpetual futures venues; the
// liquidation guard (risk gate step 8) only applies to futures.
type InstrumentKind string

const (
	InstrumentSpot     InstrumentKind = "SPOT"
	InstrumentPerpetual InstrumentKind = "PERPETUAL"
)

// Candle is one OHLCV bar, the unit the tick simulator consumes.
type Candle struct {
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Start    time.Time
	Interval time.Duration // bar period, used to space synthetic ticks
}

// Tick is a single synthetic (or live) price/volume print within a candle.
type Tick struct {
	Price  float64
	Volume float64
	Time   time.Time
}

// DepthLevel is one (price, size) resting level, ordered outward from the
// touch within a DepthSnapshot.
type DepthLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// DepthSnapshot is the two-sided order book depth used by the live κ
// provider. It is never retained across epochs — only the derived κ is.
type DepthSnapshot struct {
	Timestamp time.Time
	Bids      []DepthLevel // ordered outward from the touch (best bid first)
	Asks      []DepthLevel // ordered outward from the touch (best ask first)
}

// BestBid returns the touch bid price, or false if the book side is empty.
func (d DepthSnapshot) BestBid() (decimal.Decimal, bool) {
	if len(d.Bids) == 0 {
		return decimal.Zero, false
	}
	return d.Bids[0].Price, true
}

// BestAsk returns the touch ask price, or false if the book side is empty.
func (d DepthSnapshot) BestAsk() (decimal.Decimal, bool) {
	if len(d.Asks) == 0 {
		return decimal.Zero, false
	}
	return d.Asks[0].Price, true
}

// Fill records a single confirmed execution, inbound from the exchange
// adapter's on_fill callback or synthesized by the tick simulator.
type Fill struct {
	Timestamp time.Time
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	OrderID   string
	IsMaker   bool
	Fee       decimal.Decimal
}

// AckStatus is the outcome of a venue acknowledgement for a placed,
// cancelled, or amended order.
type AckStatus string

const (
	AckAccepted  AckStatus = "accepted"
	AckRejected  AckStatus = "rejected"
	AckCancelled AckStatus = "cancelled"
)

// Ack is the inbound venue acknowledgement for a client order id.
type Ack struct {
	ClientID string
	Status   AckStatus
	Reason   string
	Time     time.Time
}

// OpenQuote is one resting order owned by the order manager. At most one
// per side may exist at any time (spec invariant: |open_quotes| <= 2).
type OpenQuote struct {
	Side       Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	ClientID   string
	VenueOrderID string
	PlacedAt   time.Time
	Pending    bool // true while awaiting an ACK
}

// GuardState is the risk gate's mutable cooldown/arming state. It is
// mutated only by the gate itself (spec.md section 5).
type GuardState struct {
	DisplacementCooldownUntil time.Time
	ImbalanceCooldownUntil    time.Time
	LiquidationArmed          bool
	LastQuoteMid              decimal.Decimal
}

// RawQuote is the quoter's unclamped output for both sides before the
// risk gate runs.
type RawQuote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// GatedSide is the risk gate's verdict for a single side of the book.
type GatedSide struct {
	Price       decimal.Decimal
	Size        decimal.Decimal
	Withdraw    bool
	ReduceOnly  bool
	WithdrawWhy string
}

// GatedQuote is the risk gate's verdict for both sides of the book after
// running the full pipeline (spec.md section 4.5).
type GatedQuote struct {
	Bid           GatedSide
	Ask           GatedSide
	WithdrawAll   bool
	WithdrawWhy   string
}
