// Package kappa calibrates the order-book liquidity parameters kappa
// (exponential fill-intensity decay) and A (baseline arrival rate) that
// feed the GLFT quoter (spec.md section 4.3).
//
// Two Provider implementations share a single capability, the same
// duck-typed-capability idiom spec.md section 9 calls for: Constant
// returns a fixed pair, Live recalibrates from order-book depth no more
// often than every refresh interval and degrades gracefully on failure.
package kappa

import (
	"fmt"
	"math"
	"time"

	"github.com/glft-mm/glft-mm/pkg/mm"
)

// Status reports a provider's health for the gate to consult.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusStale    Status = "stale"
	StatusDegraded Status = "degraded"
)

// ErrCalibration is returned when a live fit cannot be performed, e.g.
// fewer than 3 usable depth levels exist.
type ErrCalibration struct {
	Reason string
}

func (e ErrCalibration) Error() string {
	return fmt.Sprintf("kappa: calibration error: %s", e.Reason)
}

// Values is a (kappa, A) pair in the units spec.md section 3 defines:
// kappa in 1/$, A a baseline Poisson arrival rate.
type Values struct {
	Kappa float64
	A     float64
}

// Provider is the capability both modes implement.
type Provider interface {
	// GetKappa returns the current (kappa, A) pair. depth may be nil for
	// providers that don't consume it (Constant).
	GetKappa(now time.Time, depth *mm.DepthSnapshot) (Values, error)
	Status() Status
}

// Constant always returns a fixed configured pair and never reads depth.
type Constant struct {
	values Values
}

// NewConstant builds a Constant provider. kappa and A must be positive;
// the quoter enforces this at use time (InvalidParameters), this
// constructor does not duplicate that check so configuration loading can
// surface a single consistent error path.
func NewConstant(kappa, arrivalRate float64) *Constant {
	return &Constant{values: Values{Kappa: kappa, A: arrivalRate}}
}

func (c *Constant) GetKappa(time.Time, *mm.DepthSnapshot) (Values, error) {
	return c.values, nil
}

func (c *Constant) Status() Status { return StatusHealthy }

// Live recalibrates kappa/A from depth snapshots at most once per
// refresh interval, fitting lambda(delta) = A * exp(-kappa * delta) via
// weighted least squares in log space: ln(size) = ln(A) - kappa*delta.
type Live struct {
	refresh    time.Duration
	levels     int // number of book levels per side to use
	staleLimit int // consecutive failures before escalating to Degraded

	lastFit      Values
	haveFit      bool
	lastFitAt    time.Time
	staleStreak  int
	degraded     bool
}

// NewLive builds a Live provider. levels is the number of top-of-book
// levels per side fed into the regression (spec.md: "first N levels of
// each side"); staleLimit is K_stale.
func NewLive(refresh time.Duration, levels, staleLimit int) *Live {
	if levels < 3 {
		levels = 3
	}
	if staleLimit < 1 {
		staleLimit = 1
	}
	return &Live{refresh: refresh, levels: levels, staleLimit: staleLimit}
}

func (l *Live) Status() Status {
	switch {
	case l.degraded:
		return StatusDegraded
	case l.staleStreak > 0:
		return StatusStale
	default:
		return StatusHealthy
	}
}

// GetKappa refits from depth if the refresh interval has elapsed since
// the last successful fit; otherwise it returns the cached value. On
// fit failure it returns the last good value (if any) and increments the
// stale counter, escalating to Degraded after staleLimit consecutive
// failures.
func (l *Live) GetKappa(now time.Time, depth *mm.DepthSnapshot) (Values, error) {
	if depth == nil {
		return Values{}, ErrCalibration{Reason: "live provider requires a depth snapshot"}
	}

	if l.haveFit && now.Sub(l.lastFitAt) < l.refresh {
		return l.lastFit, nil
	}

	fit, err := l.fit(depth)
	if err != nil {
		l.staleStreak++
		if l.staleStreak >= l.staleLimit {
			l.degraded = true
		}
		if l.haveFit {
			return l.lastFit, nil
		}
		return Values{}, err
	}

	l.lastFit = fit
	l.haveFit = true
	l.lastFitAt = now
	l.staleStreak = 0
	l.degraded = false
	return fit, nil
}

// fit performs one side's cumulative-size regression and averages both
// sides' results. A side is skipped if it has fewer than 3 usable levels
// (non-positive cumulative size or non-positive distance from mid).
func (l *Live) fit(depth *mm.DepthSnapshot) (Values, error) {
	mid, ok := midFromDepth(depth)
	if !ok {
		return Values{}, ErrCalibration{Reason: "cannot derive mid from empty depth"}
	}

	var fits []Values

	if v, ok := l.fitSide(depth.Bids, mid, true); ok {
		fits = append(fits, v)
	}
	if v, ok := l.fitSide(depth.Asks, mid, false); ok {
		fits = append(fits, v)
	}

	if len(fits) == 0 {
		return Values{}, ErrCalibration{Reason: "fewer than 3 usable levels on both sides"}
	}

	var kappaSum, aSum float64
	for _, f := range fits {
		kappaSum += f.Kappa
		aSum += f.A
	}
	n := float64(len(fits))
	return Values{Kappa: kappaSum / n, A: aSum / n}, nil
}

func midFromDepth(depth *mm.DepthSnapshot) (float64, bool) {
	bid, bidOK := depth.BestBid()
	ask, askOK := depth.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	bidF, _ := bid.Float64()
	askF, _ := ask.Float64()
	return (bidF + askF) / 2, true
}

// fitSide runs the weighted least squares fit ln(cumSize) = ln(A) -
// kappa*delta over up to l.levels on one side. Weighted by cumSize so
// near-touch (high liquidity) levels dominate the fit, matching how the
// live intensity is dominated by near-touch fills.
func (l *Live) fitSide(levels []mm.DepthLevel, mid float64, isBid bool) (Values, bool) {
	n := len(levels)
	if n > l.levels {
		n = l.levels
	}

	type point struct{ x, y, w float64 }
	var pts []point

	cum := 0.0
	for i := 0; i < n; i++ {
		price, _ := levels[i].Price.Float64()
		size, _ := levels[i].Size.Float64()
		if size <= 0 {
			continue
		}
		cum += size

		var delta float64
		if isBid {
			delta = mid - price
		} else {
			delta = price - mid
		}
		if delta <= 0 || cum <= 0 {
			continue
		}
		pts = append(pts, point{x: delta, y: math.Log(cum), w: cum})
	}

	if len(pts) < 3 {
		return Values{}, false
	}

	// Weighted least squares: y = a - kappa*x, solved via normal equations.
	var sw, swx, swy, swxx, swxy float64
	for _, p := range pts {
		sw += p.w
		swx += p.w * p.x
		swy += p.w * p.y
		swxx += p.w * p.x * p.x
		swxy += p.w * p.x * p.y
	}

	denom := sw*swxx - swx*swx
	if denom == 0 {
		return Values{}, false
	}

	// slope = -kappa
	slope := (sw*swxy - swx*swy) / denom
	intercept := (swy - slope*swx) / sw

	kappa := -slope
	a := math.Exp(intercept)

	if kappa <= 0 || math.IsNaN(kappa) || math.IsInf(kappa, 0) || a <= 0 || math.IsNaN(a) {
		return Values{}, false
	}

	return Values{Kappa: kappa, A: a}, true
}
