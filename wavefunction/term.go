package wavefunction

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/vmc/state"
)

// Term is one factor psi_t of the trial wavefunction.
// Derivatives are of ln(psi_t), taken with respect to particle coordinates
// and to the term's own parameter slot.
type Term interface {
	Kind() Kind

	// Value returns psi_t.
	Value(p Params, c *state.Configuration) float64
	// LogValue returns ln(psi_t).
	LogValue(p Params, c *state.Configuration) float64
	// FirstLogDerivative adds the gradient of ln(psi_t) with respect to the
	// coordinates of particle k into dst, which has length D.
	FirstLogDerivative(dst []float64, p Params, c *state.Configuration, k int)
	// SecondLogDerivative returns the Laplacian of ln(psi_t) summed over all particles.
	SecondLogDerivative(p Params, c *state.Configuration) float64
	// ParamGradientOfFirst adds the parameter derivative of FirstLogDerivative into dst.
	ParamGradientOfFirst(dst []float64, p Params, c *state.Configuration, k int)
	// ParamGradientOfSecond returns the parameter derivative of SecondLogDerivative.
	ParamGradientOfSecond(p Params, c *state.Configuration) float64
	// LogParamDerivative returns the parameter derivative of ln(psi_t).
	LogParamDerivative(p Params, c *state.Configuration) float64

	// Check returns state.ErrNumerical if the term is singular on c.
	Check(p Params, c *state.Configuration) error
}

// NewTerm returns the term of kind k.
func NewTerm(k Kind) (Term, error) {
	switch k {
	case SingleParticle:
		return gaussian{}, nil
	case PairCorrelation:
		return padeJastrow{}, nil
	case ExponentialOrbital:
		return orbital{}, nil
	default:
		return nil, errors.Errorf("unknown term %d", int(k))
	}
}

type gaussian struct{}

func (gaussian) Kind() Kind { return SingleParticle }

func (t gaussian) Value(p Params, c *state.Configuration) float64 {
	return math.Exp(t.LogValue(p, c))
}

func (gaussian) LogValue(p Params, c *state.Configuration) float64 {
	return -0.5 * p[Alpha] * c.SquaredRadii()
}

func (gaussian) FirstLogDerivative(dst []float64, p Params, c *state.Configuration, k int) {
	floats.AddScaled(dst, -p[Alpha], c.Position(k))
}

func (gaussian) SecondLogDerivative(p Params, c *state.Configuration) float64 {
	return -p[Alpha] * float64(c.N*c.D)
}

func (gaussian) ParamGradientOfFirst(dst []float64, p Params, c *state.Configuration, k int) {
	floats.AddScaled(dst, -1, c.Position(k))
}

func (gaussian) ParamGradientOfSecond(p Params, c *state.Configuration) float64 {
	return -float64(c.N * c.D)
}

func (gaussian) LogParamDerivative(p Params, c *state.Configuration) float64 {
	return -0.5 * c.SquaredRadii()
}

func (gaussian) Check(p Params, c *state.Configuration) error { return nil }

// padeJastrow correlates every pair through f(R) = R/(1+beta R), with
// f'(R) = 1/u^2 and f''(R) = -2 beta/u^3 where u = 1+beta R.
type padeJastrow struct{}

func (padeJastrow) Kind() Kind { return PairCorrelation }

func (t padeJastrow) Value(p Params, c *state.Configuration) float64 {
	return math.Exp(t.LogValue(p, c))
}

func (padeJastrow) LogValue(p Params, c *state.Configuration) float64 {
	b := p[Beta]
	var s float64
	for i := 0; i < c.N; i++ {
		for j := 0; j < i; j++ {
			r := c.Distance(i, j)
			s += r / (1 + b*r)
		}
	}
	return s
}

func (padeJastrow) FirstLogDerivative(dst []float64, p Params, c *state.Configuration, k int) {
	b := p[Beta]
	addPairs(dst, c, k, func(r float64) float64 {
		u := 1 + b*r
		return 1 / (u * u * r)
	})
}

func (padeJastrow) SecondLogDerivative(p Params, c *state.Configuration) float64 {
	b, d := p[Beta], float64(c.D-1)
	var s float64
	for i := 0; i < c.N; i++ {
		for j := 0; j < i; j++ {
			r := c.Distance(i, j)
			u := 1 + b*r
			s += -2*b/(u*u*u) + d/(r*u*u)
		}
	}
	// Each pair contributes to the Laplacian of both of its particles.
	return 2 * s
}

func (padeJastrow) ParamGradientOfFirst(dst []float64, p Params, c *state.Configuration, k int) {
	b := p[Beta]
	addPairs(dst, c, k, func(r float64) float64 {
		u := 1 + b*r
		return -2 / (u * u * u)
	})
}

func (padeJastrow) ParamGradientOfSecond(p Params, c *state.Configuration) float64 {
	b, d := p[Beta], float64(c.D-1)
	var s float64
	for i := 0; i < c.N; i++ {
		for j := 0; j < i; j++ {
			r := c.Distance(i, j)
			u := 1 + b*r
			u3 := u * u * u
			s += (4*b*r-2)/(u3*u) - 2*d/u3
		}
	}
	return 2 * s
}

func (padeJastrow) LogParamDerivative(p Params, c *state.Configuration) float64 {
	b := p[Beta]
	var s float64
	for i := 0; i < c.N; i++ {
		for j := 0; j < i; j++ {
			r := c.Distance(i, j)
			u := 1 + b*r
			s -= r * r / (u * u)
		}
	}
	return s
}

func (padeJastrow) Check(p Params, c *state.Configuration) error {
	if err := c.CheckPairs(); err != nil {
		return errors.Wrap(err, "")
	}
	for i := 0; i < c.N; i++ {
		for j := 0; j < i; j++ {
			if 1+p[Beta]*c.Distance(i, j) <= 0 {
				return errors.Wrap(state.ErrNumerical, fmt.Sprintf("jastrow pole beta %f pair %d %d", p[Beta], i, j))
			}
		}
	}
	return nil
}

// addPairs adds sum_{j != k} g(R_kj) (x_k - x_j) into dst.
func addPairs(dst []float64, c *state.Configuration, k int, g func(r float64) float64) {
	xk := c.Position(k)
	for j := 0; j < c.N; j++ {
		if j == k {
			continue
		}
		gr := g(c.Distance(k, j))
		for a, xj := range c.Position(j) {
			dst[a] += gr * (xk[a] - xj)
		}
	}
}

type orbital struct{}

func (orbital) Kind() Kind { return ExponentialOrbital }

func (t orbital) Value(p Params, c *state.Configuration) float64 {
	return math.Exp(t.LogValue(p, c))
}

func (orbital) LogValue(p Params, c *state.Configuration) float64 {
	return -p[Gamma] * floats.Sum(c.Radial)
}

func (orbital) FirstLogDerivative(dst []float64, p Params, c *state.Configuration, k int) {
	floats.AddScaled(dst, -p[Gamma]/c.Radial[k], c.Position(k))
}

func (orbital) SecondLogDerivative(p Params, c *state.Configuration) float64 {
	return -p[Gamma] * inverseRadii(c)
}

func (orbital) ParamGradientOfFirst(dst []float64, p Params, c *state.Configuration, k int) {
	floats.AddScaled(dst, -1/c.Radial[k], c.Position(k))
}

func (orbital) ParamGradientOfSecond(p Params, c *state.Configuration) float64 {
	return -inverseRadii(c)
}

func (orbital) LogParamDerivative(p Params, c *state.Configuration) float64 {
	return -floats.Sum(c.Radial)
}

func (orbital) Check(p Params, c *state.Configuration) error {
	if err := c.CheckRadial(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// inverseRadii returns sum_i (D-1)/r_i, the Laplacian of sum_i r_i.
func inverseRadii(c *state.Configuration) float64 {
	var s float64
	for _, r := range c.Radial {
		s += 1 / r
	}
	return float64(c.D-1) * s
}
