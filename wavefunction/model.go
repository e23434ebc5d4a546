// Package wavefunction implements the trial wavefunction as a product of terms.
package wavefunction

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/vmc/state"
)

// Model is the trial wavefunction Psi, the product of its terms.
// A Model has no mutable state and may be shared between chains.
type Model struct {
	terms []Term
}

// NewModel returns the product of the terms of kinds, in order.
func NewModel(kinds []Kind) (*Model, error) {
	if len(kinds) == 0 {
		return nil, errors.Errorf("no terms")
	}
	m := &Model{terms: make([]Term, 0, len(kinds))}
	seen := make(map[Kind]bool)
	for _, k := range kinds {
		if seen[k] {
			return nil, errors.Errorf("duplicate term %s", k)
		}
		seen[k] = true

		t, err := NewTerm(k)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		m.terms = append(m.terms, t)
	}
	return m, nil
}

// Kinds returns the kinds of the terms of m.
func (m *Model) Kinds() []Kind {
	kinds := make([]Kind, 0, len(m.terms))
	for _, t := range m.terms {
		kinds = append(kinds, t.Kind())
	}
	return kinds
}

// Check returns state.ErrNumerical if any term is singular on c.
func (m *Model) Check(p Params, c *state.Configuration) error {
	for _, t := range m.terms {
		if err := t.Check(p, c); err != nil {
			return errors.Wrap(err, t.Kind().String())
		}
	}
	return nil
}

// Value returns Psi.
// It under or overflows for many particles, use LogValue for ratios.
func (m *Model) Value(p Params, c *state.Configuration) float64 {
	return math.Exp(m.LogValue(p, c))
}

// LogValue returns ln(Psi).
func (m *Model) LogValue(p Params, c *state.Configuration) float64 {
	var v float64
	for _, t := range m.terms {
		v += t.LogValue(p, c)
	}
	return v
}

// Density returns |Psi|^2, the unnormalized sampling density.
func (m *Model) Density(p Params, c *state.Configuration) float64 {
	return math.Exp(m.LogDensity(p, c))
}

// LogDensity returns ln(|Psi|^2).
func (m *Model) LogDensity(p Params, c *state.Configuration) float64 {
	return 2 * m.LogValue(p, c)
}

// Gradient writes the gradient of ln(Psi) with respect to particle k into dst.
func (m *Model) Gradient(dst []float64, p Params, c *state.Configuration, k int) []float64 {
	dst = resize(dst, c.D)
	for _, t := range m.terms {
		t.FirstLogDerivative(dst, p, c, k)
	}
	return dst
}

// QuantumForce writes the drift 2 grad_k ln(Psi) into dst.
func (m *Model) QuantumForce(dst []float64, p Params, c *state.Configuration, k int) []float64 {
	dst = m.Gradient(dst, p, c, k)
	floats.Scale(2, dst)
	return dst
}

// Local is the model's contribution to the local measurements at one configuration.
type Local struct {
	// Kinetic is the local kinetic energy.
	Kinetic float64
	// LogGradient is the parameter derivative of ln(Psi).
	LogGradient Params
	// KineticGradient is the parameter derivative of Kinetic.
	KineticGradient Params
}

// Workspace holds buffers reused across calls to Model.Local.
// A Workspace must not be shared between goroutines.
type Workspace struct {
	grads [][]float64
	dg    []float64
}

func (w *Workspace) resize(n, d int) {
	if len(w.grads) != n {
		w.grads = make([][]float64, n)
	}
	w.dg = resize(w.dg, d)
}

// Local returns the kinetic energy and both parameter gradients at c,
// checking c once and computing the coordinate gradients once.
func (m *Model) Local(w *Workspace, p Params, c *state.Configuration) (Local, error) {
	if err := m.Check(p, c); err != nil {
		return Local{}, errors.Wrap(err, "")
	}
	m.gradients(w, p, c)
	l := Local{
		Kinetic:         m.kinetic(w, p, c),
		LogGradient:     m.logGradient(p, c),
		KineticGradient: m.kineticGradient(w, p, c),
	}
	return l, nil
}

// Kinetic returns the local kinetic energy -1/2 laplacian(Psi)/Psi, computed as
// -1/2 (sum_k |grad_k ln Psi|^2 + laplacian(ln Psi)).
func (m *Model) Kinetic(p Params, c *state.Configuration) (float64, error) {
	if err := m.Check(p, c); err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	var w Workspace
	m.gradients(&w, p, c)
	return m.kinetic(&w, p, c), nil
}

// LogGradient returns the derivative of ln(Psi) with respect to each active
// parameter. Inactive slots are zero.
func (m *Model) LogGradient(p Params, c *state.Configuration) (Params, error) {
	if err := m.Check(p, c); err != nil {
		return Params{}, errors.Wrap(err, "")
	}
	return m.logGradient(p, c), nil
}

// KineticGradient returns the derivative of Kinetic with respect to each
// active parameter,
// -1/2 (ParamGradientOfSecond + 2 sum_k grad_k ln Psi . ParamGradientOfFirst_k).
// The bracket, ParamGradientOfSecond + 2 sum_k ..., is -2 times the result.
func (m *Model) KineticGradient(p Params, c *state.Configuration) (Params, error) {
	if err := m.Check(p, c); err != nil {
		return Params{}, errors.Wrap(err, "")
	}
	var w Workspace
	m.gradients(&w, p, c)
	return m.kineticGradient(&w, p, c), nil
}

// gradients writes grad_k ln(Psi) of every particle into w.
func (m *Model) gradients(w *Workspace, p Params, c *state.Configuration) {
	w.resize(c.N, c.D)
	for k := range w.grads {
		w.grads[k] = m.Gradient(w.grads[k], p, c, k)
	}
}

func (m *Model) kinetic(w *Workspace, p Params, c *state.Configuration) float64 {
	var s float64
	for _, g := range w.grads {
		s += floats.Dot(g, g)
	}
	for _, t := range m.terms {
		s += t.SecondLogDerivative(p, c)
	}
	return -0.5 * s
}

func (m *Model) logGradient(p Params, c *state.Configuration) Params {
	var dst Params
	for _, t := range m.terms {
		dst[t.Kind().Slot()] = t.LogParamDerivative(p, c)
	}
	return dst
}

func (m *Model) kineticGradient(w *Workspace, p Params, c *state.Configuration) Params {
	var dst Params
	for _, t := range m.terms {
		var cross float64
		for k, g := range w.grads {
			clear(w.dg)
			t.ParamGradientOfFirst(w.dg, p, c, k)
			cross += floats.Dot(g, w.dg)
		}
		dst[t.Kind().Slot()] = -0.5 * (t.ParamGradientOfSecond(p, c) + 2*cross)
	}
	return dst
}

func resize(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	v = v[:n]
	clear(v)
	return v
}
