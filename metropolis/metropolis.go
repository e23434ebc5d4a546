// Package metropolis implements the Markov chain that samples |Psi|^2.
package metropolis

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/fumin/vmc/state"
	"github.com/fumin/vmc/wavefunction"
)

// Sampling is the proposal policy of a Sampler.
type Sampling int

const (
	// LocalMove shifts one coordinate of one particle uniformly in [-dx/2, dx/2).
	LocalMove Sampling = iota
	// DriftDiffusion moves one particle along the quantum force plus Gaussian
	// noise of variance dx, the Langevin step of importance sampling.
	DriftDiffusion
)

var samplingNames = map[Sampling]string{
	LocalMove:      "local-move",
	DriftDiffusion: "drift-diffusion",
}

func (s Sampling) String() string {
	if name, ok := samplingNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Sampling(%d)", int(s))
}

// Valid reports whether s is a known sampling policy.
func (s Sampling) Valid() bool {
	_, ok := samplingNames[s]
	return ok
}

func (s Sampling) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Errorf("unknown sampling %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Sampling) UnmarshalText(b []byte) error {
	for k, name := range samplingNames {
		if name == string(b) {
			*s = k
			return nil
		}
	}
	return errors.Errorf("unknown sampling %q", b)
}

// Proposal draws a candidate configuration.
type Proposal interface {
	// Propose writes a candidate derived from cur into dst, and returns
	// ln(T(dst->cur)/T(cur->dst)), the log ratio of the reverse and forward
	// transition densities.
	Propose(dst, cur *state.Configuration, p wavefunction.Params, rng *rand.Rand) (float64, error)
}

// NewProposal returns the proposal policy s with step size step.
func NewProposal(s Sampling, model *wavefunction.Model, step float64) (Proposal, error) {
	if !(step > 0) {
		return nil, errors.Errorf("step %f", step)
	}
	switch s {
	case LocalMove:
		return localMove{step: step}, nil
	case DriftDiffusion:
		return &driftDiffusion{model: model, dt: step}, nil
	default:
		return nil, errors.Errorf("unknown sampling %d", int(s))
	}
}

type localMove struct {
	step float64
}

func (m localMove) Propose(dst, cur *state.Configuration, p wavefunction.Params, rng *rand.Rand) (float64, error) {
	dst.CopyFrom(cur)
	i, a := rng.IntN(cur.N), rng.IntN(cur.D)
	dst.X.Set(i, a, cur.X.At(i, a)+(rng.Float64()-0.5)*m.step)
	dst.Derive()
	return 0, nil
}

type driftDiffusion struct {
	model *wavefunction.Model
	dt    float64
}

func (m *driftDiffusion) Propose(dst, cur *state.Configuration, p wavefunction.Params, rng *rand.Rand) (float64, error) {
	if err := m.model.Check(p, cur); err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	dst.CopyFrom(cur)
	k := rng.IntN(cur.N)
	x := cur.Position(k)
	fx := m.model.QuantumForce(nil, p, cur, k)

	y := dst.Position(k)
	sd := math.Sqrt(m.dt)
	for a := range y {
		y[a] = x[a] + 0.5*fx[a]*m.dt + sd*rng.NormFloat64()
	}
	dst.Derive()
	if err := m.model.Check(p, dst); err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	fy := m.model.QuantumForce(nil, p, dst, k)

	// Green's function of the Fokker-Planck step,
	// T(x->y) ~ exp(-|y - x - dt F(x)/2|^2 / (2 dt)).
	var forward, reverse float64
	for a := range y {
		df := y[a] - x[a] - 0.5*m.dt*fx[a]
		dr := x[a] - y[a] - 0.5*m.dt*fy[a]
		forward += df * df
		reverse += dr * dr
	}
	return (forward - reverse) / (2 * m.dt), nil
}

// Accept is the Metropolis test: a move of the given acceptance ratio is
// accepted against the uniform draw u in [0, 1) iff ratio >= u.
func Accept(ratio, u float64) bool {
	return ratio >= u
}

// Sampler advances a Markov chain whose stationary density is |Psi|^2.
// Its only state is its random source and a scratch candidate.
type Sampler struct {
	model    *wavefunction.Model
	proposal Proposal
	rng      *rand.Rand

	candidate *state.Configuration
}

// New returns a sampler drawing randomness from rng.
func New(model *wavefunction.Model, proposal Proposal, rng *rand.Rand) *Sampler {
	s := &Sampler{model: model, proposal: proposal, rng: rng}
	return s
}

// Rand returns the random source of s.
func (s *Sampler) Rand() *rand.Rand {
	return s.rng
}

// Step proposes a move from cur and, if accepted, writes it into cur.
// The acceptance ratio is formed from log densities so it stays finite for
// large systems.
func (s *Sampler) Step(p wavefunction.Params, cur *state.Configuration) (bool, error) {
	if s.candidate == nil || s.candidate.N != cur.N || s.candidate.D != cur.D {
		s.candidate = state.Zeros(cur.N, cur.D)
	}

	logT, err := s.proposal.Propose(s.candidate, cur, p, s.rng)
	if err != nil {
		return false, errors.Wrap(err, "")
	}
	logRatio := s.model.LogDensity(p, s.candidate) - s.model.LogDensity(p, cur) + logT
	if math.IsNaN(logRatio) {
		return false, errors.Wrapf(state.ErrNumerical, "acceptance ratio %f", logRatio)
	}

	if !Accept(math.Exp(logRatio), s.rng.Float64()) {
		return false, nil
	}
	cur.CopyFrom(s.candidate)
	return true, nil
}
