// Package volatility maintains a rolling estimate of mid-price log-return
// volatility (spec.md section 4.2). The estimator is a fixed-capacity ring
// buffer, the same bounded-window idiom the teacher's flow tracker uses
// for recent fills, generalized from a time window to a sample-count
// window because sigma_pct is defined over a fixed number of returns (W),
// not a wall-clock duration.
package volatility

import "math"

// Estimator tracks the last W log-returns of the mid-price series and
// derives a sample standard deviation in percentage and dollar terms.
type Estimator struct {
	window    int
	returns   []float64
	cursor    int
	filled    bool
	lastMid   float64
	haveLast  bool
	bootstrap float64 // returned until W samples have accumulated
}

// New creates an estimator with ring-buffer capacity window and a
// bootstrap sigma_pct used before W samples exist. A bootstrapSigmaPct
// that is not finite and strictly positive is replaced with 0.01, so the
// bootstrap is never zero and never NaN.
func New(window int, bootstrapSigmaPct float64) *Estimator {
	if window < 1 {
		window = 1
	}
	if bootstrapSigmaPct <= 0 || math.IsNaN(bootstrapSigmaPct) || math.IsInf(bootstrapSigmaPct, 0) {
		bootstrapSigmaPct = 0.01
	}
	return &Estimator{
		window:    window,
		returns:   make([]float64, window),
		bootstrap: bootstrapSigmaPct,
	}
}

// Observe feeds a new mid-price sample, computing and storing
// ln(mid/lastMid) once a previous sample exists.
func (e *Estimator) Observe(mid float64) {
	if mid <= 0 || math.IsNaN(mid) || math.IsInf(mid, 0) {
		return
	}
	if !e.haveLast {
		e.lastMid = mid
		e.haveLast = true
		return
	}

	r := math.Log(mid / e.lastMid)
	e.lastMid = mid

	e.returns[e.cursor] = r
	e.cursor = (e.cursor + 1) % e.window
	if e.cursor == 0 {
		e.filled = true
	}
}

// SampleCount returns how many returns are currently buffered.
func (e *Estimator) SampleCount() int {
	if e.filled {
		return e.window
	}
	return e.cursor
}

// SigmaPct returns the sample standard deviation of buffered log-returns.
// If fewer than window samples have accumulated, it returns the bootstrap
// value, which is never zero and never NaN.
func (e *Estimator) SigmaPct() float64 {
	n := e.SampleCount()
	if n < e.window {
		return e.bootstrap
	}

	var mean float64
	for _, r := range e.returns {
		mean += r
	}
	mean /= float64(n)

	var sumSq float64
	for _, r := range e.returns {
		d := r - mean
		sumSq += d * d
	}
	variance := sumSq / float64(n)
	sigma := math.Sqrt(variance)
	if sigma <= 0 || math.IsNaN(sigma) {
		return e.bootstrap
	}
	return sigma
}

// SigmaDollar converts the percentage sigma into dollar units at the given
// mid price (sigma_dollar = sigma_pct * mid).
func (e *Estimator) SigmaDollar(mid float64) float64 {
	return e.SigmaPct() * mid
}
