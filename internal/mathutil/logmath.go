// Package mathutil holds log-domain helpers for mixture scoring.
package mathutil

import "math"

// LogZero stands in for log(0).
const LogZero = -1e30

// Log2Pi is log(2*pi), the per-dimension term of a Gaussian normaliser.
var Log2Pi = math.Log(2 * math.Pi)

// logAddCutoff is the gap past which the smaller term no longer changes a
// float64 sum (exp(-36) is below machine epsilon).
const logAddCutoff = -36.0

// LogAdd returns log(exp(a) + exp(b)).
func LogAdd(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if b <= LogZero {
		return a
	}
	d := b - a
	if d < logAddCutoff {
		return a
	}
	return a + math.Log1p(math.Exp(d))
}

// LogSum returns log(sum exp(v)), or LogZero when v is empty.
func LogSum(v []float64) float64 {
	s := LogZero
	for _, x := range v {
		s = LogAdd(s, x)
	}
	return s
}
