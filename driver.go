package vmc

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/fumin/vmc/hamiltonian"
	"github.com/fumin/vmc/metropolis"
	"github.com/fumin/vmc/optimize"
	"github.com/fumin/vmc/wavefunction"
)

// Options are options for a Driver.
type Options struct {
	estimator Estimator
	observers []Observer
}

// NewOptions returns the default options, sampling with Chains and no observers.
func NewOptions() Options {
	return Options{}
}

// Estimator replaces the Monte Carlo sampling of every iteration with e.
func (opt Options) Estimator(e Estimator) Options {
	opt.estimator = e
	return opt
}

// Observers adds observers notified after every iteration.
func (opt Options) Observers(obs ...Observer) Options {
	opt.observers = append(opt.observers[:len(opt.observers):len(opt.observers)], obs...)
	return opt
}

// Driver runs the Variational Monte Carlo loop.
type Driver struct {
	cfg       Config
	model     *wavefunction.Model
	optimizer optimize.Optimizer
	chains    *Chains
	estimator Estimator
	observers []Observer
}

// New validates cfg and returns a driver for it.
func New(cfg Config, options ...Options) (*Driver, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	d := &Driver{cfg: cfg, observers: opt.observers}
	var err error
	d.model, err = wavefunction.NewModel(cfg.Terms)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	h, err := hamiltonian.New(d.model, cfg.Potential, cfg.Omega, cfg.Interaction)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	d.optimizer, err = optimize.New(cfg.Optimizer, cfg.LearningRate)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	proposal, err := metropolis.NewProposal(cfg.Sampling, d.model, cfg.Step)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	d.chains = NewChains(d.model, h, proposal, cfg.Chains, cfg.Seed, cfg.Sweeps)

	d.estimator = d.chains
	if opt.estimator != nil {
		d.estimator = opt.estimator
	}
	return d, nil
}

// Config returns the configuration of d.
func (d *Driver) Config() Config {
	return d.cfg
}

// Start returns a running state with random walkers, thermalized with the initial parameters.
func (d *Driver) Start(ctx context.Context) (*RunState, error) {
	rs := &RunState{Params: d.cfg.Params, Status: Running}
	rs.Walkers = d.chains.Walkers(d.cfg.Particles, d.cfg.Dimensions, d.cfg.Initial)
	if d.cfg.Thermalization > 0 {
		if err := d.chains.Thermalize(ctx, rs.Params, rs.Walkers, d.cfg.Thermalization); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return rs, nil
}

// Iterate runs one iteration on rs.
// The iteration's energy is appended, then the run converges if it differs
// from the previous one by less than the tolerance, with at least two earlier
// energies. Otherwise the parameters take one optimizer step, and the run is
// exhausted once it has MaxIterations energies.
func (d *Driver) Iterate(ctx context.Context, rs *RunState) (Iteration, error) {
	if rs.Status.Terminal() {
		return Iteration{}, errors.Wrap(ErrTerminal, rs.Status.String())
	}

	est, err := d.estimator.Estimate(ctx, rs.Params, rs.Walkers)
	if err != nil {
		return Iteration{}, errors.Wrap(err, "")
	}
	it := Iteration{
		Index:           len(rs.Energies) + 1,
		Energy:          est.Energy,
		Variance:        est.Variance,
		StdErr:          est.StdErr,
		ChainStdErr:     est.ChainStdErr,
		Acceptance:      est.Acceptance,
		Params:          rs.Params,
		KineticGradient: est.KineticGradient,
	}
	rs.Energies = append(rs.Energies, est.Energy)
	rs.Iterations = append(rs.Iterations, it)

	n := len(rs.Energies)
	switch {
	case n > 2 && math.Abs(rs.Energies[n-1]-rs.Energies[n-2]) < d.cfg.Tolerance:
		rs.Status = Converged
	default:
		s := optimize.Statistics{
			Samples:       est.Samples,
			MeanEnergy:    est.Energy,
			GradSum:       est.LogGradSum[:],
			GradEnergySum: est.LogGradEnergySum[:],
		}
		update := d.optimizer.Update(nil, s)
		for _, k := range d.model.Kinds() {
			rs.Params[k.Slot()] -= update[k.Slot()]
		}
		if n >= d.cfg.MaxIterations {
			rs.Status = ExhaustedIterations
		}
	}

	for _, o := range d.observers {
		o.Observe(it, rs)
	}
	return it, nil
}

// Run starts a run and iterates until it is terminal.
func (d *Driver) Run(ctx context.Context) (*RunState, error) {
	rs, err := d.Start(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	for !rs.Status.Terminal() {
		if _, err := d.Iterate(ctx, rs); err != nil {
			return rs, errors.Wrap(err, "")
		}
	}
	return rs, nil
}
