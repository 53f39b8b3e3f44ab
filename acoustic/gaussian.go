package acoustic

import (
	"fmt"
	"math"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/internal/mathutil"
)

// Gaussian is a single diagonal-covariance component of a mixture.
type Gaussian struct {
	Weight   float64
	GConst   float64 // log((2*pi)^d * prod(variance)), as stored in model files
	Mean     []float64
	Variance []float64
}

// Dim returns the component dimensionality.
func (g *Gaussian) Dim() int {
	return len(g.Mean)
}

// Validate reports a mean/variance length mismatch.
func (g *Gaussian) Validate() error {
	if len(g.Mean) != len(g.Variance) {
		return fmt.Errorf("%w: mean has %d dims, variance %d", errs.ErrDimensionMismatch, len(g.Mean), len(g.Variance))
	}
	return nil
}

// ComputeGConst recalculates GConst from the variance vector.
func (g *Gaussian) ComputeGConst() {
	g.GConst = float64(len(g.Variance))*mathutil.Log2Pi + sumLog(g.Variance)
}

// LogProb returns the unweighted log density of x.
func (g *Gaussian) LogProb(x []float64) float64 {
	maha := 0.0
	for i, m := range g.Mean {
		d := x[i] - m
		maha += d * d / g.Variance[i]
	}
	return -0.5 * (g.GConst + maha)
}

func sumLog(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += math.Log(x)
	}
	return s
}

// Stream is a named Gaussian mixture: the distribution one tree leaf owns for
// one feature stream. Model type, phone, state and stream index are derived
// from the name.
type Stream struct {
	Name    string
	Mixture []Gaussian
}

// Info decodes the stream's macro name. ok is false when the name does not
// follow the leaf-name grammar.
func (s *Stream) Info() (MacroName, bool) {
	return ParseMacroName(s.Name)
}

// Type is the model type encoded in the name, or ModelUnknown.
func (s *Stream) Type() ModelType {
	m, _ := s.Info()
	return m.Type
}

// Dim returns the dimensionality of the first non-empty component. MSD
// streams carry zero-dimension components for their discrete space.
func (s *Stream) Dim() int {
	for i := range s.Mixture {
		if d := s.Mixture[i].Dim(); d > 0 {
			return d
		}
	}
	return 0
}

// Validate checks that the stream has components, that each is well formed
// and that all non-empty components share one dimensionality.
func (s *Stream) Validate() error {
	if len(s.Mixture) == 0 {
		return errs.Formatf("stream %s: no mixture components", s.Name)
	}
	dim := s.Dim()
	for i := range s.Mixture {
		g := &s.Mixture[i]
		if err := g.Validate(); err != nil {
			return fmt.Errorf("stream %s mixture %d: %w", s.Name, i+1, err)
		}
		if d := g.Dim(); d != 0 && d != dim {
			return fmt.Errorf("stream %s mixture %d: %w: %d dims, want %d", s.Name, i+1, errs.ErrDimensionMismatch, d, dim)
		}
	}
	return nil
}

// LogProb computes log sum_k w_k N(x; mu_k, sigma_k) over the non-empty
// components.
func (s *Stream) LogProb(x []float64) (float64, error) {
	if len(x) != s.Dim() {
		return mathutil.LogZero, fmt.Errorf("stream %s: %w: observation has %d dims, want %d", s.Name, errs.ErrDimensionMismatch, len(x), s.Dim())
	}
	terms := make([]float64, 0, len(s.Mixture))
	for i := range s.Mixture {
		g := &s.Mixture[i]
		if g.Dim() == 0 || g.Weight <= 0 {
			continue
		}
		terms = append(terms, math.Log(g.Weight)+g.LogProb(x))
	}
	return mathutil.LogSum(terms), nil
}

// CorrectVariance raises every variance element below floor to the floor
// value and refreshes GConst for the touched components. Zero-dimension
// components are skipped.
func (s *Stream) CorrectVariance(floor []float64) error {
	for i := range s.Mixture {
		g := &s.Mixture[i]
		if g.Dim() == 0 {
			continue
		}
		if len(floor) != len(g.Variance) {
			return fmt.Errorf("stream %s: %w: floor has %d dims, variance %d", s.Name, errs.ErrDimensionMismatch, len(floor), len(g.Variance))
		}
		changed := false
		for d, f := range floor {
			if g.Variance[d] < f {
				g.Variance[d] = f
				changed = true
			}
		}
		if changed {
			g.ComputeGConst()
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Stream) Clone() *Stream {
	c := &Stream{Name: s.Name, Mixture: make([]Gaussian, len(s.Mixture))}
	for i, g := range s.Mixture {
		c.Mixture[i] = Gaussian{
			Weight:   g.Weight,
			GConst:   g.GConst,
			Mean:     append([]float64(nil), g.Mean...),
			Variance: append([]float64(nil), g.Variance...),
		}
	}
	return c
}
