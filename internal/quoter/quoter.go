// Package quoter implements the GLFT (Guéant-Lehalle-Fernandez-Tapia)
// infinite-horizon extension of Avellaneda-Stoikov: converting
// (mid, inventory, volatility, kappa, A, gamma) into a pair of raw
// admissible limit prices (spec.md section 4.4).
//
// This is a direct generalization of the teacher's
// strategy.Maker.computeQuotes reservation-price/optimal-spread math,
// carried from Polymarket's [0,1]-bounded binary-market prices to
// arbitrary positive dollar mids, and swapped from the finite-horizon
// Avellaneda-Stoikov spread formula to the GLFT infinite-horizon one.
package quoter

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// eulerE is Euler's number, used verbatim in the GLFT half-spread formula.
const eulerE = 2.718281828459045

// ErrInvalidParameters is returned when kappa, gamma, or sigma are outside
// their admissible domains (spec.md section 4.4 edge policies).
type ErrInvalidParameters struct {
	Reason string
}

func (e ErrInvalidParameters) Error() string {
	return fmt.Sprintf("quoter: invalid parameters: %s", e.Reason)
}

// Params bundles the GLFT quoter's inputs. All fields are dollar/absolute
// units per spec.md section 3; Inventory is signed base-asset units.
type Params struct {
	Mid         float64
	Inventory   float64
	SigmaDollar float64
	Kappa       float64
	ArrivalRate float64
	Gamma       float64
}

// Result is the quoter's raw (unclamped, pre-gate) output.
type Result struct {
	Reservation float64
	HalfSpread  float64
	BidRaw      float64
	AskRaw      float64
}

// BidPrice returns BidRaw as an exact decimal for callers downstream of
// pricing that must avoid raw float64 (spec.md section 3 / SPEC_FULL.md).
func (r Result) BidPrice() decimal.Decimal { return decimal.NewFromFloat(r.BidRaw) }

// AskPrice returns AskRaw as an exact decimal.
func (r Result) AskPrice() decimal.Decimal { return decimal.NewFromFloat(r.AskRaw) }

// kappaOverGammaLogThreshold is the point above which ln(1+kappa/gamma)
// must be evaluated in log space to avoid losing precision to the +1
// term (spec.md section 4.4 numerical note).
const kappaOverGammaLogThreshold = 1e6

// Quote computes the reservation price and GLFT half-spread, and derives
// the raw bid/ask around it.
//
//	r = S - q*gamma*sigma^2
//	delta = (1/kappa)*ln(1+kappa/gamma) + sqrt(e*sigma^2*gamma/(2*A*kappa))
//	bid_raw = r - delta/2, ask_raw = r + delta/2
func Quote(p Params) (Result, error) {
	if p.Kappa <= 0 {
		return Result{}, ErrInvalidParameters{Reason: "kappa must be > 0"}
	}
	if p.Gamma <= 0 {
		return Result{}, ErrInvalidParameters{Reason: "gamma must be > 0"}
	}
	if p.SigmaDollar < 0 {
		return Result{}, ErrInvalidParameters{Reason: "sigma_dollar must be >= 0"}
	}
	if p.ArrivalRate <= 0 {
		return Result{}, ErrInvalidParameters{Reason: "arrival rate A must be > 0"}
	}

	reservation := p.Mid - p.Inventory*p.Gamma*p.SigmaDollar*p.SigmaDollar

	kOverG := p.Kappa / p.Gamma
	var logTerm float64
	if kOverG > kappaOverGammaLogThreshold {
		// ln(1+x) ~ ln(x) for very large x; avoids catastrophic precision
		// loss from adding 1 to a huge number before taking the log.
		logTerm = math.Log(kOverG)
	} else {
		logTerm = math.Log1p(kOverG)
	}

	inventoryTerm := (1.0 / p.Kappa) * logTerm

	radicand := eulerE * p.SigmaDollar * p.SigmaDollar * p.Gamma / (2.0 * p.ArrivalRate * p.Kappa)
	if math.IsInf(radicand, 1) || radicand < 0 {
		return Result{
			Reservation: reservation,
			HalfSpread:  math.Inf(1),
			BidRaw:      math.Inf(-1),
			AskRaw:      math.Inf(1),
		}, nil
	}

	spreadTerm := math.Sqrt(radicand)
	halfSpread := inventoryTerm + spreadTerm

	if math.IsInf(halfSpread, 1) || math.IsNaN(halfSpread) {
		return Result{
			Reservation: reservation,
			HalfSpread:  math.Inf(1),
			BidRaw:      math.Inf(-1),
			AskRaw:      math.Inf(1),
		}, nil
	}

	return Result{
		Reservation: reservation,
		HalfSpread:  halfSpread,
		BidRaw:      reservation - halfSpread/2,
		AskRaw:      reservation + halfSpread/2,
	}, nil
}
