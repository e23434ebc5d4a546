// Package optimize turns Monte Carlo statistics into variational parameter updates.
package optimize

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnimplemented is returned when selecting an optimizer that is recognized
// but not implemented.
var ErrUnimplemented = errors.New("unimplemented")

// Kind is an optimization method.
type Kind int

const (
	GradientDescent Kind = iota
	// Adam is adaptive moment estimation.
	Adam
)

var kindNames = map[Kind]string{
	GradientDescent: "gradient-descent",
	Adam:            "adam",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is a known optimization method.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errors.Errorf("unknown optimizer %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for v, s := range kindNames {
		if s == string(b) {
			*k = v
			return nil
		}
	}
	return errors.Errorf("unknown optimizer %q", b)
}

// Statistics are sums accumulated over the Monte Carlo samples of one iteration.
type Statistics struct {
	// Samples is the number of samples summed over.
	Samples int
	// MeanEnergy is the average local energy.
	MeanEnergy float64
	// GradSum is the sum of the parameter gradients of ln(Psi).
	GradSum []float64
	// GradEnergySum is the sum of the parameter gradients multiplied by the local energy.
	GradEnergySum []float64
}

// Optimizer computes the parameter update from one iteration's statistics.
// New parameters are the old ones minus the update.
type Optimizer interface {
	Update(dst []float64, s Statistics) []float64
}

// New returns the optimizer of kind k with learning rate eta.
func New(k Kind, eta float64) (Optimizer, error) {
	if !(eta > 0) {
		return nil, errors.Errorf("learning rate %f", eta)
	}
	switch k {
	case GradientDescent:
		return Descent{Eta: eta}, nil
	case Adam:
		return nil, errors.Wrap(ErrUnimplemented, k.String())
	default:
		return nil, errors.Errorf("unknown optimizer %d", int(k))
	}
}

// Descent is stochastic gradient descent on the energy, with the gradient
// estimated as the covariance 2 (<O E> - <E><O>) where O is the parameter
// derivative of ln(Psi).
type Descent struct {
	Eta float64
}

// Update writes 2 eta (<O E> - <E><O>) into dst.
func (g Descent) Update(dst []float64, s Statistics) []float64 {
	if len(s.GradSum) != len(s.GradEnergySum) {
		panic(fmt.Sprintf("%d %d", len(s.GradSum), len(s.GradEnergySum)))
	}
	if cap(dst) < len(s.GradSum) {
		dst = make([]float64, len(s.GradSum))
	}
	dst = dst[:len(s.GradSum)]

	m := float64(s.Samples)
	for i, ge := range s.GradEnergySum {
		dst[i] = 2 * g.Eta * (ge/m - s.MeanEnergy*s.GradSum[i]/m)
	}
	return dst
}
