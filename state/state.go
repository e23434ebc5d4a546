// Package state holds the particle configuration sampled by the Markov chain.
package state

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNumerical reports a configuration on which a quantity is undefined,
// such as a particle at the origin of an inverse-distance potential.
var ErrNumerical = errors.New("numerical error")

// Configuration is the positions of N particles in D dimensions together with
// quantities derived from them.
// Radial and Pair are only ever written by Derive.
type Configuration struct {
	N int
	D int

	// X is the N by D coordinate matrix.
	X *mat.Dense
	// Radial[i] is the distance of particle i from the origin.
	Radial []float64
	// Pair is the matrix of pairwise distances, with a zero diagonal.
	Pair *mat.SymDense
}

// New returns a configuration owning x, with derived quantities computed.
func New(x *mat.Dense) *Configuration {
	n, d := x.Dims()
	c := &Configuration{N: n, D: d, X: x, Radial: make([]float64, n), Pair: mat.NewSymDense(n, nil)}
	c.Derive()
	return c
}

// Zeros returns a configuration with all particles at the origin.
func Zeros(n, d int) *Configuration {
	return New(mat.NewDense(n, d, nil))
}

// Derive recomputes Radial and Pair from X.
func (c *Configuration) Derive() {
	radii(c.Radial, c.X)
	distances(c.Pair, c.X)
}

// Position returns the coordinates of particle k, backed by X.
func (c *Configuration) Position(k int) []float64 {
	return c.X.RawRowView(k)
}

// Distance returns the distance between particles i and j.
func (c *Configuration) Distance(i, j int) float64 {
	return c.Pair.At(i, j)
}

// SquaredRadii returns the sum over particles of |x_i|^2.
func (c *Configuration) SquaredRadii() float64 {
	var s float64
	for _, r := range c.Radial {
		s += r * r
	}
	return s
}

// CheckRadial returns ErrNumerical if a particle sits at the origin.
func (c *Configuration) CheckRadial() error {
	for i, r := range c.Radial {
		if r == 0 {
			return errors.Wrap(ErrNumerical, fmt.Sprintf("particle %d at origin", i))
		}
	}
	return nil
}

// CheckPairs returns ErrNumerical if two particles coincide.
func (c *Configuration) CheckPairs() error {
	for i := 0; i < c.N; i++ {
		for j := 0; j < i; j++ {
			if c.Pair.At(i, j) == 0 {
				return errors.Wrap(ErrNumerical, fmt.Sprintf("particles %d and %d coincide", i, j))
			}
		}
	}
	return nil
}

// CopyFrom overwrites c with src. Both must have the same shape.
func (c *Configuration) CopyFrom(src *Configuration) {
	if c.N != src.N || c.D != src.D {
		panic(fmt.Sprintf("%dx%d %dx%d", c.N, c.D, src.N, src.D))
	}
	c.X.Copy(src.X)
	copy(c.Radial, src.Radial)
	c.Pair.CopySym(src.Pair)
}

// Clone returns a deep copy of c.
func (c *Configuration) Clone() *Configuration {
	d := Zeros(c.N, c.D)
	d.CopyFrom(c)
	return d
}

// Radii returns the distance of every row of x from the origin.
func Radii(x mat.Matrix) []float64 {
	n, _ := x.Dims()
	r := make([]float64, n)
	radii(r, x)
	return r
}

// Distances returns the matrix of distances between the rows of x.
func Distances(x mat.Matrix) *mat.SymDense {
	n, _ := x.Dims()
	p := mat.NewSymDense(n, nil)
	distances(p, x)
	return p
}

func radii(dst []float64, x mat.Matrix) {
	for i := range dst {
		dst[i] = floats.Norm(mat.Row(nil, i, x), 2)
	}
}

func distances(dst *mat.SymDense, x mat.Matrix) {
	n, _ := x.Dims()
	for i := 0; i < n; i++ {
		xi := mat.Row(nil, i, x)
		dst.SetSym(i, i, 0)
		for j := 0; j < i; j++ {
			dst.SetSym(i, j, floats.Distance(xi, mat.Row(nil, j, x), 2))
		}
	}
}

// Distribution is how initial positions are drawn.
type Distribution int

const (
	// Normal draws every coordinate from the standard normal distribution.
	Normal Distribution = iota
	// Uniform draws every coordinate uniformly from [-1/2, 1/2).
	Uniform
)

var distributionNames = map[Distribution]string{
	Normal:  "normal",
	Uniform: "uniform",
}

func (d Distribution) String() string {
	if s, ok := distributionNames[d]; ok {
		return s
	}
	return fmt.Sprintf("Distribution(%d)", int(d))
}

// Valid reports whether d is a known distribution.
func (d Distribution) Valid() bool {
	_, ok := distributionNames[d]
	return ok
}

func (d Distribution) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, errors.Errorf("unknown distribution %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Distribution) UnmarshalText(b []byte) error {
	for k, s := range distributionNames {
		if s == string(b) {
			*d = k
			return nil
		}
	}
	return errors.Errorf("unknown distribution %q", b)
}

// Random returns a configuration with positions drawn from dist.
func Random(rng *rand.Rand, n, d int, dist Distribution) *Configuration {
	data := make([]float64, n*d)
	for i := range data {
		switch dist {
		case Uniform:
			data[i] = rng.Float64() - 0.5
		default:
			data[i] = rng.NormFloat64()
		}
	}
	return New(mat.NewDense(n, d, data))
}
