package vmc

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/fumin/vmc/hamiltonian"
	"github.com/fumin/vmc/metropolis"
	"github.com/fumin/vmc/state"
	"github.com/fumin/vmc/wavefunction"
)

const (
	// ctxCheckPeriod is the number of steps between cancellation checks.
	ctxCheckPeriod = 1024
)

// Estimate is the combined Monte Carlo statistics of one iteration.
type Estimate struct {
	Samples     int
	Energy      float64
	Variance    float64
	StdErr      float64
	ChainStdErr float64
	Acceptance  float64

	// LogGradSum is the sum over samples of d ln(Psi) / d theta.
	LogGradSum wavefunction.Params
	// LogGradEnergySum is the sum over samples of the local energy times d ln(Psi) / d theta.
	LogGradEnergySum wavefunction.Params
	// KineticGradient is the mean of d E_kin / d theta.
	KineticGradient wavefunction.Params
}

// An Estimator samples the walkers for one iteration.
type Estimator interface {
	Estimate(ctx context.Context, p wavefunction.Params, walkers []*state.Configuration) (Estimate, error)
}

// Chains runs independent Markov chains in parallel, one per walker.
type Chains struct {
	model       *wavefunction.Model
	hamiltonian *hamiltonian.Hamiltonian
	samplers    []*metropolis.Sampler
	sweeps      int
}

// NewChains returns n chains, chain i drawing from the PCG stream (seed, i).
func NewChains(model *wavefunction.Model, h *hamiltonian.Hamiltonian, proposal metropolis.Proposal, n int, seed uint64, sweeps int) *Chains {
	c := &Chains{model: model, hamiltonian: h, sweeps: sweeps}
	for i := range n {
		rng := rand.New(rand.NewPCG(seed, uint64(i)))
		c.samplers = append(c.samplers, metropolis.New(model, proposal, rng))
	}
	return c
}

// Walkers returns one random configuration per chain.
func (c *Chains) Walkers(n, d int, dist state.Distribution) []*state.Configuration {
	walkers := make([]*state.Configuration, 0, len(c.samplers))
	for _, s := range c.samplers {
		walkers = append(walkers, state.Random(s.Rand(), n, d, dist))
	}
	return walkers
}

// Thermalize advances every walker by steps without measuring.
func (c *Chains) Thermalize(ctx context.Context, p wavefunction.Params, walkers []*state.Configuration, steps int) error {
	if err := c.checkWalkers(walkers); err != nil {
		return errors.Wrap(err, "")
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, w := range walkers {
		s := c.samplers[i]
		g.Go(func() error {
			for j := range steps {
				if j%ctxCheckPeriod == 0 {
					if err := ctx.Err(); err != nil {
						return errors.Wrap(err, "")
					}
				}
				if _, err := s.Step(p, w); err != nil {
					return errors.Wrap(err, fmt.Sprintf("chain %d step %d", i, j))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Estimate runs every chain for the configured number of sweeps and combines the results.
func (c *Chains) Estimate(ctx context.Context, p wavefunction.Params, walkers []*state.Configuration) (Estimate, error) {
	if err := c.checkWalkers(walkers); err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}

	accs := make([]accumulator, len(walkers))
	g, ctx := errgroup.WithContext(ctx)
	for i, w := range walkers {
		g.Go(func() error {
			if err := c.sweep(ctx, &accs[i], c.samplers[i], p, w); err != nil {
				return errors.Wrap(err, fmt.Sprintf("chain %d", i))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Estimate{}, errors.Wrap(err, "")
	}
	return merge(accs), nil
}

func (c *Chains) checkWalkers(walkers []*state.Configuration) error {
	if len(walkers) != len(c.samplers) {
		return errors.Errorf("%d walkers %d chains", len(walkers), len(c.samplers))
	}
	return nil
}

func (c *Chains) sweep(ctx context.Context, acc *accumulator, s *metropolis.Sampler, p wavefunction.Params, w *state.Configuration) error {
	var ws wavefunction.Workspace
	for i := range c.sweeps {
		if i%ctxCheckPeriod == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "")
			}
		}

		accepted, err := s.Step(p, w)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("step %d", i))
		}
		l, err := c.model.Local(&ws, p, w)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("step %d", i))
		}
		e, err := c.hamiltonian.Energy(l.Kinetic, w)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("step %d", i))
		}
		acc.add(accepted, e.Total(), l.LogGradient, l.KineticGradient)
	}
	return nil
}

// accumulator holds the running sums of one chain.
type accumulator struct {
	samples  int
	accepted int
	e        float64
	e2       float64
	o        wavefunction.Params
	oe       wavefunction.Params
	dk       wavefunction.Params
}

func (acc *accumulator) add(accepted bool, e float64, o, dk wavefunction.Params) {
	acc.samples++
	if accepted {
		acc.accepted++
	}
	acc.e += e
	acc.e2 += e * e
	for i := range o {
		acc.o[i] += o[i]
		acc.oe[i] += o[i] * e
		acc.dk[i] += dk[i]
	}
}

func merge(accs []accumulator) Estimate {
	var total accumulator
	means := make([]float64, 0, len(accs))
	for _, acc := range accs {
		total.samples += acc.samples
		total.accepted += acc.accepted
		total.e += acc.e
		total.e2 += acc.e2
		for i := range acc.o {
			total.o[i] += acc.o[i]
			total.oe[i] += acc.oe[i]
			total.dk[i] += acc.dk[i]
		}
		means = append(means, acc.e/float64(acc.samples))
	}

	m := float64(total.samples)
	est := Estimate{Samples: total.samples, LogGradSum: total.o, LogGradEnergySum: total.oe}
	est.Energy = total.e / m
	est.Variance = max(0, total.e2/m-est.Energy*est.Energy)
	est.StdErr = math.Sqrt(est.Variance / m)
	if len(means) > 1 {
		est.ChainStdErr = stat.StdErr(stat.StdDev(means, nil), float64(len(means)))
	}
	est.Acceptance = float64(total.accepted) / m
	for i := range total.dk {
		est.KineticGradient[i] = total.dk[i] / m
	}
	return est
}
