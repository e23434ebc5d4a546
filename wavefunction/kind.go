package wavefunction

import (
	"fmt"

	"github.com/pkg/errors"
)

// Slots of the variational parameters.
const (
	Alpha = iota
	Beta
	Gamma

	NumParams
)

// Params are the variational parameters.
// Only the slots of active terms are meaningful.
type Params [NumParams]float64

// Kind identifies a wavefunction term.
type Kind int

const (
	// SingleParticle is the uncorrelated Gaussian factor exp(-alpha/2 sum |x_i|^2).
	SingleParticle Kind = iota
	// PairCorrelation is the Pade-Jastrow factor exp(sum_{i<j} R_ij/(1+beta R_ij)).
	PairCorrelation
	// ExponentialOrbital is the hydrogen-like factor exp(-gamma sum |x_i|).
	ExponentialOrbital
)

var kindNames = map[Kind]string{
	SingleParticle:     "single-particle",
	PairCorrelation:    "pairwise-correlation",
	ExponentialOrbital: "exponential-orbital",
}

// Slot returns the parameter slot owned by terms of kind k.
func (k Kind) Slot() int {
	return int(k)
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is a known term kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errors.Errorf("unknown term %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return errors.Wrap(err, "")
	}
	*k = v
	return nil
}

// ParseKind returns the term kind named s.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return -1, errors.Errorf("unknown term %q", s)
}
