// Package book maintains a local mirror of the most recent mid-price and
// depth snapshot for one symbol, and detects staleness and outlier ticks.
// It generalizes the teacher's market.Book (which mirrored a Polymarket
// binary-market CLOB book) from a pair of [0,1]-bounded YES/NO books to a
// single dollar-priced depth book, and adds the tick-jump outlier filter
// that is step 1 of the risk gate (spec.md section 4.5).
package book

import (
	"sync"
	"time"

	"github.com/glft-mm/glft-mm/pkg/mm"
	"github.com/shopspring/decimal"
)

// ErrStaleTick is returned when a tick's jump relative to the previous
// mid exceeds the configured outlier threshold.
type ErrStaleTick struct {
	PctMove float64
	Limit   float64
}

func (e ErrStaleTick) Error() string {
	return "book: tick jump exceeds outlier threshold"
}

// Book is a concurrency-safe mirror of the latest mid price and depth for
// one symbol.
type Book struct {
	mu sync.RWMutex

	mid       decimal.Decimal
	haveMid   bool
	prevMid   decimal.Decimal
	depth     mm.DepthSnapshot
	haveDepth bool
	updated   time.Time
}

// New creates an empty book.
func New() *Book {
	return &Book{}
}

// OnTick applies a new mid-price observation (spec.md: on_tick(ts, mid)).
// tickJumpPct is the outlier threshold (spec.md default 2%); if exceeded,
// the tick is rejected and the stored mid is left unchanged so the
// volatility estimator does not advance on outliers.
func (b *Book) OnTick(ts time.Time, mid decimal.Decimal, tickJumpPct float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.haveMid && !b.mid.IsZero() {
		diff := mid.Sub(b.mid).Abs()
		pct := diff.Div(b.mid)
		limit := decimal.NewFromFloat(tickJumpPct)
		if pct.GreaterThan(limit) {
			pf, _ := pct.Float64()
			return ErrStaleTick{PctMove: pf, Limit: tickJumpPct}
		}
	}

	b.prevMid = b.mid
	b.mid = mid
	b.haveMid = true
	b.updated = ts
	return nil
}

// OnDepth replaces the stored depth snapshot (spec.md: on_depth(...)).
// Depth is never retained beyond the current epoch by the kappa provider,
// but the book itself keeps the latest snapshot so callers can read it
// within the epoch it arrived.
func (b *Book) OnDepth(depth mm.DepthSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.depth = depth
	b.haveDepth = true
	b.updated = depth.Timestamp
}

// Mid returns the current mid price, or false if no tick has arrived yet.
func (b *Book) Mid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mid, b.haveMid
}

// PrevMid returns the mid price before the most recent accepted tick.
func (b *Book) PrevMid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.prevMid, b.haveMid
}

// Depth returns the latest depth snapshot, or false if none has arrived.
func (b *Book) Depth() (mm.DepthSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.depth, b.haveDepth
}

// IsStale reports whether no update has arrived within maxAge of now.
func (b *Book) IsStale(now time.Time, maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.updated.IsZero() {
		return true
	}
	return now.Sub(b.updated) > maxAge
}
