// Package exactdiag computes reference energies by diagonalizing
// finite-difference Hamiltonians.
package exactdiag

import (
	"cmp"
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/vmc"
	"github.com/fumin/vmc/hamiltonian"
)

const (
	// DefaultPoints is the number of interior grid points.
	DefaultPoints = 800

	// harmonicExtent is the half width of the harmonic grid in units of 1/sqrt(omega).
	harmonicExtent = 10
	// radialExtent is the radius of the radial grid in units of 1/k.
	radialExtent = 20
)

// ErrUnsupported is returned for systems without a finite-difference reference.
var ErrUnsupported = errors.New("unsupported")

// valVec is an eigenvalue with its normalized eigenvector.
type valVec struct {
	Val float64
	Vec []float64
}

// grid is a uniform one dimensional grid.
type grid struct {
	// X are the grid points.
	X []float64
	// H is the spacing.
	H float64
}

// eigen returns the eigenpairs of h in ascending order of eigenvalue.
func eigen(h *mat.SymDense) ([]valVec, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(h, true); !ok {
		return nil, errors.Errorf("eigen decomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	n := len(vals)
	vvs := make([]valVec, 0, n)
	for i, v := range vals {
		vvs = append(vvs, valVec{Val: v, Vec: mat.Col(nil, i, &vecs)})
	}
	slices.SortFunc(vvs, func(a, b valVec) int { return cmp.Compare(a.Val, b.Val) })
	return vvs, nil
}

// harmonic returns the grid and the finite-difference Hamiltonian
// -1/2 d^2/dx^2 + 1/2 omega^2 x^2 with Dirichlet walls.
func harmonic(omega float64, points int) (grid, *mat.SymDense) {
	l := harmonicExtent / math.Sqrt(omega)
	g := grid{X: make([]float64, points), H: 2 * l / float64(points+1)}
	for i := range g.X {
		g.X[i] = -l + float64(i+1)*g.H
	}
	return g, laplacian(g, func(x float64) float64 { return 0.5 * omega * omega * x * x })
}

// radial returns the grid and the finite-difference Hamiltonian
// -1/2 d^2/dr^2 - k/r of the s-wave radial function u(r) = r R(r), with u(0) = 0.
func radial(k float64, points int) (grid, *mat.SymDense) {
	rmax := radialExtent / k
	g := grid{X: make([]float64, points), H: rmax / float64(points+1)}
	for i := range g.X {
		g.X[i] = float64(i+1) * g.H
	}
	return g, laplacian(g, func(r float64) float64 { return -k / r })
}

func laplacian(g grid, v func(float64) float64) *mat.SymDense {
	n := len(g.X)
	h := mat.NewSymDense(n, nil)
	kin := 0.5 / (g.H * g.H)
	for i, x := range g.X {
		h.SetSym(i, i, 2*kin+v(x))
		if i > 0 {
			h.SetSym(i, i-1, -kin)
		}
	}
	return h
}

// groundEnergy returns the lowest eigenvalue of h.
func groundEnergy(h *mat.SymDense) (float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(h, false); !ok {
		return math.NaN(), errors.Errorf("eigen decomposition failed")
	}
	return slices.Min(eig.Values(nil)), nil
}

// Reference returns the ground state energy of the non-interacting system of cfg.
// The particles are distinguishable and all occupy the single particle ground state.
func Reference(cfg vmc.Config, points int) (float64, error) {
	if cfg.Interaction {
		return math.NaN(), errors.Wrap(ErrUnsupported, "interaction")
	}
	if points < 1 {
		return math.NaN(), errors.Errorf("points %d", points)
	}
	// Both potentials depend on omega^2.
	omega := math.Abs(cfg.Omega)
	if omega == 0 {
		return math.NaN(), errors.Wrap(ErrUnsupported, "no bound state at zero omega")
	}

	switch cfg.Potential {
	case hamiltonian.HarmonicTrap:
		// Separable into N*D independent oscillators.
		_, h := harmonic(omega, points)
		e, err := groundEnergy(h)
		if err != nil {
			return math.NaN(), errors.Wrap(err, "")
		}
		return float64(cfg.Particles*cfg.Dimensions) * e, nil
	case hamiltonian.InverseDistance:
		if cfg.Dimensions != 3 {
			return math.NaN(), errors.Wrapf(ErrUnsupported, "inverse distance in %d dimensions", cfg.Dimensions)
		}
		_, h := radial(0.5*omega*omega, points)
		e, err := groundEnergy(h)
		if err != nil {
			return math.NaN(), errors.Wrap(err, "")
		}
		return float64(cfg.Particles) * e, nil
	default:
		return math.NaN(), errors.Wrapf(ErrUnsupported, "%v", cfg.Potential)
	}
}
