package metropolis

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/vmc/state"
	"github.com/fumin/vmc/wavefunction"
)

// maxSource makes every uniform draw the largest value below one.
type maxSource struct{}

func (maxSource) Uint64() uint64 { return math.MaxUint64 }

// scale proposes every coordinate multiplied by f.
type scale struct {
	f float64
}

func (s scale) Propose(dst, cur *state.Configuration, p wavefunction.Params, rng *rand.Rand) (float64, error) {
	dst.CopyFrom(cur)
	dst.X.Scale(s.f, cur.X)
	dst.Derive()
	return 0, nil
}

// nanProposal leaves the configuration unchanged with an undefined Green's ratio.
type nanProposal struct{}

func (nanProposal) Propose(dst, cur *state.Configuration, p wavefunction.Params, rng *rand.Rand) (float64, error) {
	dst.CopyFrom(cur)
	return math.NaN(), nil
}

func gaussianModel(t *testing.T) *wavefunction.Model {
	m, err := wavefunction.NewModel([]wavefunction.Kind{wavefunction.SingleParticle})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return m
}

func TestAccept(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ratio    float64
		u        float64
		expected bool
	}{
		{ratio: 1, u: math.Nextafter(1, 0), expected: true},
		{ratio: 1, u: 0, expected: true},
		{ratio: 7.5, u: 0.999, expected: true},
		{ratio: math.Inf(1), u: 0.5, expected: true},
		{ratio: 0.3, u: 0.3, expected: true},
		{ratio: 0.3, u: 0.31, expected: false},
		{ratio: 0, u: 0.01, expected: false},
		{ratio: math.NaN(), u: 0, expected: false},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.ratio, test.u), func(t *testing.T) {
			t.Parallel()
			if got := Accept(test.ratio, test.u); got != test.expected {
				t.Fatalf("%v, expected %v", got, test.expected)
			}
		})
	}
}

func TestUphillAlwaysAccepted(t *testing.T) {
	t.Parallel()
	m := gaussianModel(t)
	p := wavefunction.Params{wavefunction.Alpha: 1}
	s := New(m, scale{f: 0.5}, rand.New(maxSource{}))
	cur := state.New(mat.NewDense(2, 2, []float64{1, 2, -3, 1}))
	for i := range 10 {
		before := m.Density(p, cur)
		accepted, err := s.Step(p, cur)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if !accepted {
			t.Fatalf("%d rejected", i)
		}
		if m.Density(p, cur) < before {
			t.Fatalf("%d %f %f", i, m.Density(p, cur), before)
		}
	}
}

func TestRejectKeepsConfiguration(t *testing.T) {
	t.Parallel()
	m := gaussianModel(t)
	p := wavefunction.Params{wavefunction.Alpha: 1}
	s := New(m, scale{f: 10}, rand.New(maxSource{}))
	cur := state.New(mat.NewDense(2, 2, []float64{1, 2, -3, 1}))
	orig := cur.Clone()

	accepted, err := s.Step(p, cur)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if accepted {
		t.Fatalf("accepted")
	}
	if !mat.Equal(cur.X, orig.X) || !mat.Equal(cur.Pair, orig.Pair) {
		t.Fatalf("%v, expected %v", mat.Formatted(cur.X), mat.Formatted(orig.X))
	}
}

func TestManyParticles(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n     int
		kinds []wavefunction.Kind
	}{
		{n: 40, kinds: []wavefunction.Kind{wavefunction.SingleParticle, wavefunction.PairCorrelation}},
		{n: 400, kinds: []wavefunction.Kind{wavefunction.SingleParticle}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %v", test.n, test.kinds), func(t *testing.T) {
			t.Parallel()
			m, err := wavefunction.NewModel(test.kinds)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			p := wavefunction.Params{1, 0.5, 1}
			prop, err := NewProposal(LocalMove, m, 0.5)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			rng := rand.New(rand.NewPCG(3, uint64(test.n)))
			s := New(m, prop, rng)
			cur := state.Random(rng, test.n, 3, state.Normal)
			if v := m.Density(p, cur); v != 0 && !math.IsInf(v, 1) {
				t.Fatalf("density %g is representable", v)
			}

			const steps = 500
			var accepted int
			for range steps {
				ok, err := s.Step(p, cur)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if ok {
					accepted++
				}
			}
			if rate := float64(accepted) / steps; rate < 0.5 {
				t.Fatalf("acceptance %f", rate)
			}
		})
	}
}

func TestUndefinedRatio(t *testing.T) {
	t.Parallel()
	m := gaussianModel(t)
	s := New(m, nanProposal{}, rand.New(rand.NewPCG(1, 2)))
	cur := state.New(mat.NewDense(2, 2, []float64{1, 2, -3, 1}))
	accepted, err := s.Step(wavefunction.Params{1}, cur)
	if !errors.Is(err, state.ErrNumerical) {
		t.Fatalf("%+v", err)
	}
	if accepted {
		t.Fatalf("accepted")
	}
}

func TestLocalMove(t *testing.T) {
	t.Parallel()
	const step = 0.2
	prop, err := NewProposal(LocalMove, gaussianModel(t), step)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rng := rand.New(rand.NewPCG(1, 1))
	cur := state.Random(rng, 3, 2, state.Normal)
	dst := state.Zeros(3, 2)
	for range 100 {
		logT, err := prop.Propose(dst, cur, wavefunction.Params{1}, rng)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if logT != 0 {
			t.Fatalf("%f", logT)
		}

		var diff mat.Dense
		diff.Sub(dst.X, cur.X)
		var moved int
		for _, v := range diff.RawMatrix().Data {
			if v == 0 {
				continue
			}
			moved++
			if math.Abs(v) > step/2 {
				t.Fatalf("%f", v)
			}
		}
		if moved > 1 {
			t.Fatalf("%v", mat.Formatted(&diff))
		}
		if !mat.Equal(dst.Pair, state.Distances(dst.X)) {
			t.Fatalf("stale distances")
		}
	}
}

func TestStationaryDensity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sampling Sampling
		step     float64
	}{
		{sampling: LocalMove, step: 2},
		{sampling: DriftDiffusion, step: 0.5},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.sampling), func(t *testing.T) {
			t.Parallel()
			const n, d = 2, 2
			const alpha = 1.0
			m := gaussianModel(t)
			p := wavefunction.Params{wavefunction.Alpha: alpha}
			prop, err := NewProposal(test.sampling, m, test.step)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			rng := rand.New(rand.NewPCG(7, uint64(test.sampling)))
			s := New(m, prop, rng)
			cur := state.Random(rng, n, d, state.Normal)

			const burnIn, steps = 1000, 200000
			var r2 float64
			var accepted int
			for i := range burnIn + steps {
				ok, err := s.Step(p, cur)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if i < burnIn {
					continue
				}
				if ok {
					accepted++
				}
				r2 += cur.SquaredRadii()
			}
			r2 /= steps

			// For |Psi|^2 = exp(-alpha |x|^2) every coordinate has variance 1/(2 alpha).
			expected := float64(n*d) / (2 * alpha)
			if math.Abs(r2-expected) > 0.1 {
				t.Fatalf("%f, expected %f", r2, expected)
			}
			if rate := float64(accepted) / steps; rate <= 0.1 || rate >= 1 {
				t.Fatalf("acceptance %f", rate)
			}
		})
	}
}

func TestNewProposal(t *testing.T) {
	t.Parallel()
	m := gaussianModel(t)
	if _, err := NewProposal(LocalMove, m, 0); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewProposal(Sampling(5), m, 1); err == nil {
		t.Fatalf("expected error")
	}

	var s Sampling
	if err := s.UnmarshalText([]byte("drift-diffusion")); err != nil {
		t.Fatalf("%+v", err)
	}
	if s != DriftDiffusion {
		t.Fatalf("%v", s)
	}
	if err := s.UnmarshalText([]byte("brute-force")); err == nil {
		t.Fatalf("expected error")
	}
}
