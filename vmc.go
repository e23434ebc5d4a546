// Package vmc estimates ground state energies with Variational Monte Carlo.
//
// A Driver samples |Psi|^2 of a trial wavefunction with Metropolis chains,
// averages the local energy, and moves the variational parameters down the
// energy gradient until consecutive energies agree within a tolerance.
package vmc

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/vmc/hamiltonian"
	"github.com/fumin/vmc/metropolis"
	"github.com/fumin/vmc/optimize"
	"github.com/fumin/vmc/state"
	"github.com/fumin/vmc/wavefunction"
)

var (
	// ErrConfig is returned for an invalid Config.
	ErrConfig = errors.New("invalid config")
	// ErrTerminal is returned when iterating a run that has finished.
	ErrTerminal = errors.New("run is terminal")
)

// Config is the immutable description of a run.
type Config struct {
	// Particles is the number of particles N.
	Particles int `yaml:"particles"`
	// Dimensions is the number of spatial dimensions D.
	Dimensions int `yaml:"dimensions"`
	// Sweeps is the number of Metropolis steps per chain per iteration.
	Sweeps int `yaml:"sweeps"`
	// MaxIterations bounds the number of iterations.
	MaxIterations int `yaml:"max_iterations"`
	// Omega is the strength of the external potential.
	Omega float64 `yaml:"omega"`
	// Step is the proposal step, dx for local moves and the time step for drift diffusion.
	Step float64 `yaml:"step"`
	// LearningRate is the gradient descent rate eta.
	LearningRate float64 `yaml:"learning_rate"`
	// Tolerance is the energy difference below which a run has converged.
	Tolerance float64 `yaml:"tolerance"`

	Interaction bool                  `yaml:"interaction"`
	Potential   hamiltonian.Potential `yaml:"potential"`
	Sampling    metropolis.Sampling   `yaml:"sampling"`
	Optimizer   optimize.Kind         `yaml:"optimizer"`
	Terms       []wavefunction.Kind   `yaml:"terms"`
	// Params are the initial variational parameters.
	Params wavefunction.Params `yaml:"params"`

	// Chains is the number of independent Markov chains.
	Chains int `yaml:"chains"`
	// Seed seeds the random source of every chain.
	Seed uint64 `yaml:"seed"`
	// Thermalization is the number of steps discarded before the first iteration.
	Thermalization int `yaml:"thermalization"`
	// Initial is the distribution of the starting positions.
	Initial state.Distribution `yaml:"initial"`
}

// DefaultConfig returns a single particle in a three dimensional harmonic trap.
func DefaultConfig() Config {
	cfg := Config{
		Particles:     1,
		Dimensions:    3,
		Sweeps:        100000,
		MaxIterations: 100,
		Omega:         1,
		Step:          0.1,
		LearningRate:  0.05,
		Tolerance:     1e-4,
		Potential:     hamiltonian.HarmonicTrap,
		Sampling:      metropolis.LocalMove,
		Optimizer:     optimize.GradientDescent,
		Terms:         []wavefunction.Kind{wavefunction.SingleParticle},
		Params:        wavefunction.Params{1, 1, 1},
		Chains:        1,
		Initial:       state.Normal,
	}
	return cfg
}

// ParseConfig parses a YAML document on top of DefaultConfig.
func ParseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrapf(ErrConfig, "%v", err)
	}
	return cfg, nil
}

// Validate returns an error wrapping ErrConfig if cfg is invalid.
func (cfg Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"particles", cfg.Particles},
		{"dimensions", cfg.Dimensions},
		{"sweeps", cfg.Sweeps},
		{"max_iterations", cfg.MaxIterations},
		{"chains", cfg.Chains},
	}
	for _, p := range positive {
		if p.v < 1 {
			return errors.Wrapf(ErrConfig, "%s %d", p.name, p.v)
		}
	}
	if cfg.Thermalization < 0 {
		return errors.Wrapf(ErrConfig, "thermalization %d", cfg.Thermalization)
	}

	if math.IsNaN(cfg.Omega) || math.IsInf(cfg.Omega, 0) {
		return errors.Wrapf(ErrConfig, "omega %f", cfg.Omega)
	}
	if !(cfg.Step > 0) || math.IsInf(cfg.Step, 0) {
		return errors.Wrapf(ErrConfig, "step %f", cfg.Step)
	}
	if !(cfg.LearningRate > 0) || math.IsInf(cfg.LearningRate, 0) {
		return errors.Wrapf(ErrConfig, "learning rate %f", cfg.LearningRate)
	}
	if !(cfg.Tolerance > 0) || math.IsInf(cfg.Tolerance, 0) {
		return errors.Wrapf(ErrConfig, "tolerance %f", cfg.Tolerance)
	}
	for i, v := range cfg.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrConfig, "param %d %f", i, v)
		}
	}

	if !cfg.Potential.Valid() {
		return errors.Wrapf(ErrConfig, "potential %d", int(cfg.Potential))
	}
	if !cfg.Sampling.Valid() {
		return errors.Wrapf(ErrConfig, "sampling %d", int(cfg.Sampling))
	}
	if !cfg.Optimizer.Valid() {
		return errors.Wrapf(ErrConfig, "optimizer %d", int(cfg.Optimizer))
	}
	if !cfg.Initial.Valid() {
		return errors.Wrapf(ErrConfig, "initial %d", int(cfg.Initial))
	}
	if _, err := wavefunction.NewModel(cfg.Terms); err != nil {
		return errors.Wrapf(ErrConfig, "%v", err)
	}
	return nil
}

// Status is the state of a run.
type Status int

const (
	Running Status = iota
	// Converged means consecutive energies agreed within the tolerance.
	Converged
	// ExhaustedIterations means the iteration budget ran out before convergence.
	ExhaustedIterations
)

var statusNames = map[Status]string{
	Running:             "running",
	Converged:           "converged",
	ExhaustedIterations: "exhausted-iterations",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether no further iterations may run.
func (s Status) Terminal() bool {
	return s == Converged || s == ExhaustedIterations
}

func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, errors.Errorf("unknown status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for k, name := range statusNames {
		if name == string(b) {
			*s = k
			return nil
		}
	}
	return errors.Errorf("unknown status %q", b)
}

// Iteration is the outcome of one iteration.
type Iteration struct {
	// Index counts iterations from 1.
	Index int
	// Energy is the mean local energy.
	Energy float64
	// Variance is the variance of the local energy.
	Variance float64
	// StdErr is sqrt(Variance / samples), ignoring autocorrelation.
	StdErr float64
	// ChainStdErr is the standard error of the per chain means, zero for a single chain.
	ChainStdErr float64
	// Acceptance is the fraction of accepted proposals.
	Acceptance float64
	// Params are the parameters the samples were drawn with.
	Params wavefunction.Params
	// KineticGradient is the mean derivative of the local kinetic energy
	// with respect to the parameters.
	KineticGradient wavefunction.Params
}

// RunState is the mutable state of a run.
type RunState struct {
	// Walkers holds the configuration of every chain.
	Walkers []*state.Configuration
	// Params are the current variational parameters.
	Params wavefunction.Params
	// Energies is the mean energy of every iteration so far.
	Energies []float64
	// Iterations has one entry per element of Energies.
	Iterations []Iteration
	Status     Status
}
