// Package hamiltonian evaluates the local energy of a trial wavefunction.
package hamiltonian

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/vmc/state"
	"github.com/fumin/vmc/wavefunction"
)

// Potential is the external potential acting on every particle.
type Potential int

const (
	// HarmonicTrap is 1/2 w^2 |x|^2.
	HarmonicTrap Potential = iota
	// InverseDistance is -1/2 w^2 / |x|.
	InverseDistance
)

var potentialNames = map[Potential]string{
	HarmonicTrap:    "harmonic-trap",
	InverseDistance: "inverse-distance",
}

func (v Potential) String() string {
	if s, ok := potentialNames[v]; ok {
		return s
	}
	return fmt.Sprintf("Potential(%d)", int(v))
}

// Valid reports whether v is a known potential.
func (v Potential) Valid() bool {
	_, ok := potentialNames[v]
	return ok
}

func (v Potential) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, errors.Errorf("unknown potential %d", int(v))
	}
	return []byte(v.String()), nil
}

func (v *Potential) UnmarshalText(b []byte) error {
	for k, s := range potentialNames {
		if s == string(b) {
			*v = k
			return nil
		}
	}
	return errors.Errorf("unknown potential %q", b)
}

// Energy is the local energy split into its parts.
type Energy struct {
	Kinetic     float64
	Potential   float64
	Interaction float64
}

// Total returns the local energy.
func (e Energy) Total() float64 {
	return e.Kinetic + e.Potential + e.Interaction
}

// Hamiltonian is the kinetic energy of a wavefunction model, an external
// potential of strength omega, and optionally a pairwise Coulomb repulsion.
type Hamiltonian struct {
	model       *wavefunction.Model
	potential   Potential
	omega       float64
	interacting bool
}

// New returns the Hamiltonian for model.
func New(model *wavefunction.Model, potential Potential, omega float64, interacting bool) (*Hamiltonian, error) {
	if !potential.Valid() {
		return nil, errors.Errorf("unknown potential %d", int(potential))
	}
	h := &Hamiltonian{model: model, potential: potential, omega: omega, interacting: interacting}
	return h, nil
}

// Evaluate returns the local energy of the trial wavefunction at c.
func (h *Hamiltonian) Evaluate(p wavefunction.Params, c *state.Configuration) (Energy, error) {
	kinetic, err := h.model.Kinetic(p, c)
	if err != nil {
		return Energy{}, errors.Wrap(err, "")
	}
	e, err := h.Energy(kinetic, c)
	if err != nil {
		return Energy{}, errors.Wrap(err, "")
	}
	return e, nil
}

// Energy completes an already computed kinetic energy with the potential
// and interaction energies of c.
func (h *Hamiltonian) Energy(kinetic float64, c *state.Configuration) (Energy, error) {
	e := Energy{Kinetic: kinetic}
	var err error
	e.Potential, err = h.Potential(c)
	if err != nil {
		return Energy{}, errors.Wrap(err, "")
	}
	e.Interaction, err = h.Interaction(c)
	if err != nil {
		return Energy{}, errors.Wrap(err, "")
	}
	return e, nil
}

// Potential returns the external potential energy of c.
func (h *Hamiltonian) Potential(c *state.Configuration) (float64, error) {
	w2 := h.omega * h.omega
	switch h.potential {
	case HarmonicTrap:
		return 0.5 * w2 * c.SquaredRadii(), nil
	case InverseDistance:
		if err := c.CheckRadial(); err != nil {
			return math.NaN(), errors.Wrap(err, "")
		}
		var s float64
		for _, r := range c.Radial {
			s += 1 / r
		}
		return -0.5 * w2 * s, nil
	default:
		return math.NaN(), errors.Errorf("unknown potential %d", int(h.potential))
	}
}

// Interaction returns the pairwise repulsion of c, or zero if the
// Hamiltonian is not interacting.
func (h *Hamiltonian) Interaction(c *state.Configuration) (float64, error) {
	if !h.interacting {
		return 0, nil
	}
	v, err := PairSum(c.Pair)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return v, nil
}

// PairSum returns sum_{i<j} 1/r_ij over the strict lower triangle of r.
func PairSum(r mat.Symmetric) (float64, error) {
	n := r.SymmetricDim()
	var s float64
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			rij := r.At(i, j)
			if rij == 0 {
				return math.NaN(), errors.Wrap(state.ErrNumerical, fmt.Sprintf("particles %d and %d coincide", i, j))
			}
			s += 1 / rij
		}
	}
	return s, nil
}
