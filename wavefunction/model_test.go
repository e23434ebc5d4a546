package wavefunction

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/vmc/state"
)

func testConfiguration() *state.Configuration {
	return state.New(mat.NewDense(3, 3, []float64{
		0.3, -0.2, 0.5,
		-0.4, 0.6, 0.1,
		0.7, 0.2, -0.3,
	}))
}

func shifted(c *state.Configuration, k, a int, h float64) *state.Configuration {
	s := c.Clone()
	s.X.Set(k, a, s.X.At(k, a)+h)
	s.Derive()
	return s
}

func TestNewModel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kinds []Kind
		ok    bool
	}{
		{kinds: []Kind{SingleParticle}, ok: true},
		{kinds: []Kind{PairCorrelation, SingleParticle, ExponentialOrbital}, ok: true},
		{kinds: nil, ok: false},
		{kinds: []Kind{SingleParticle, SingleParticle}, ok: false},
		{kinds: []Kind{Kind(7)}, ok: false},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.kinds), func(t *testing.T) {
			t.Parallel()
			m, err := NewModel(test.kinds)
			if (err == nil) != test.ok {
				t.Fatalf("%+v, expected ok %v", err, test.ok)
			}
			if err != nil {
				return
			}
			if !slices.Equal(m.Kinds(), test.kinds) {
				t.Fatalf("%v, expected %v", m.Kinds(), test.kinds)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()
	for k, name := range kindNames {
		got, err := ParseKind(name)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if got != k {
			t.Fatalf("%v, expected %v", got, k)
		}
		b, err := k.MarshalText()
		if err != nil || string(b) != name {
			t.Fatalf("%s %+v, expected %s", b, err, name)
		}
	}
	if _, err := ParseKind("slater"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGaussianKinetic(t *testing.T) {
	t.Parallel()
	m, err := NewModel([]Kind{SingleParticle})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	c := testConfiguration()
	p := Params{Alpha: 0.8}
	kin, err := m.Kinetic(p, c)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	a := p[Alpha]
	expected := 0.5*a*float64(c.N*c.D) - 0.5*a*a*c.SquaredRadii()
	if math.Abs(kin-expected) > 1e-12 {
		t.Fatalf("%f, expected %f", kin, expected)
	}
}

func TestFiniteDifferences(t *testing.T) {
	t.Parallel()
	p := Params{Alpha: 0.8, Beta: 0.4, Gamma: 0.6}
	tests := []struct {
		kinds []Kind
	}{
		{kinds: []Kind{SingleParticle}},
		{kinds: []Kind{PairCorrelation}},
		{kinds: []Kind{ExponentialOrbital}},
		{kinds: []Kind{SingleParticle, PairCorrelation}},
		{kinds: []Kind{ExponentialOrbital, PairCorrelation, SingleParticle}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.kinds), func(t *testing.T) {
			t.Parallel()
			m, err := NewModel(test.kinds)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			c := testConfiguration()

			// Kinetic energy against a numerical Laplacian of Psi.
			const h = 1e-3
			psi := m.Value(p, c)
			var lap float64
			for k := 0; k < c.N; k++ {
				for a := 0; a < c.D; a++ {
					up := m.Value(p, shifted(c, k, a, h))
					down := m.Value(p, shifted(c, k, a, -h))
					lap += (up - 2*psi + down) / (h * h)
				}
			}
			kin, err := m.Kinetic(p, c)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if expected := -0.5 * lap / psi; math.Abs(kin-expected) > 1e-5 {
				t.Fatalf("kinetic %f, expected %f", kin, expected)
			}

			// Parameter derivatives.
			const hp = 1e-5
			logGrad, err := m.LogGradient(p, c)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			kinGrad, err := m.KineticGradient(p, c)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			active := make(map[int]bool)
			for _, k := range test.kinds {
				active[k.Slot()] = true
			}
			for slot := range NumParams {
				if !active[slot] {
					if logGrad[slot] != 0 || kinGrad[slot] != 0 {
						t.Fatalf("slot %d %f %f, expected zero", slot, logGrad[slot], kinGrad[slot])
					}
					continue
				}
				up, down := p, p
				up[slot] += hp
				down[slot] -= hp

				expected := (math.Log(m.Value(up, c)) - math.Log(m.Value(down, c))) / (2 * hp)
				if math.Abs(logGrad[slot]-expected) > 1e-6 {
					t.Fatalf("log slot %d %f, expected %f", slot, logGrad[slot], expected)
				}

				kinUp, err := m.Kinetic(up, c)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				kinDown, err := m.Kinetic(down, c)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				expected = (kinUp - kinDown) / (2 * hp)
				if math.Abs(kinGrad[slot]-expected) > 1e-6 {
					t.Fatalf("kinetic slot %d %f, expected %f", slot, kinGrad[slot], expected)
				}
			}
		})
	}
}

func TestLocal(t *testing.T) {
	t.Parallel()
	m, err := NewModel([]Kind{SingleParticle, PairCorrelation, ExponentialOrbital})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	p := Params{Alpha: 0.8, Beta: 0.4, Gamma: 0.6}
	rng := rand.New(rand.NewPCG(5, 6))
	// One workspace across configurations of different sizes.
	var w Workspace
	for _, n := range []int{3, 3, 7, 2, 5} {
		c := state.Random(rng, n, 3, state.Normal)
		l, err := m.Local(&w, p, c)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		kin, err := m.Kinetic(p, c)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		logGrad, err := m.LogGradient(p, c)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		kinGrad, err := m.KineticGradient(p, c)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if math.Abs(l.Kinetic-kin) > 1e-12 {
			t.Fatalf("%d %f, expected %f", n, l.Kinetic, kin)
		}
		for slot := range NumParams {
			if math.Abs(l.LogGradient[slot]-logGrad[slot]) > 1e-12 || math.Abs(l.KineticGradient[slot]-kinGrad[slot]) > 1e-12 {
				t.Fatalf("%d %+v, expected %v %v", n, l, logGrad, kinGrad)
			}
		}
	}
}

func TestLogValue(t *testing.T) {
	t.Parallel()
	m, err := NewModel([]Kind{SingleParticle, PairCorrelation, ExponentialOrbital})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	p := Params{Alpha: 0.8, Beta: 0.4, Gamma: 0.6}
	c := testConfiguration()
	if expected := math.Log(m.Value(p, c)); math.Abs(m.LogValue(p, c)-expected) > 1e-12 {
		t.Fatalf("%f, expected %f", m.LogValue(p, c), expected)
	}
	if expected := 2 * m.LogValue(p, c); math.Abs(m.LogDensity(p, c)-expected) > 1e-12 {
		t.Fatalf("%f, expected %f", m.LogDensity(p, c), expected)
	}

	// Psi itself overflows at this size while its logarithm stays finite.
	big := state.Random(rand.New(rand.NewPCG(1, 1)), 60, 3, state.Normal)
	p = Params{Alpha: 1, Beta: 0.5, Gamma: 1}
	if v := m.LogValue(p, big); math.IsNaN(v) || math.IsInf(v, 0) {
		t.Fatalf("%f", v)
	}
	if v := m.Density(p, big); !math.IsInf(v, 1) {
		t.Fatalf("%g", v)
	}
}

func TestQuantumForce(t *testing.T) {
	t.Parallel()
	m, err := NewModel([]Kind{SingleParticle})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	c := testConfiguration()
	p := Params{Alpha: 0.5}
	f := m.QuantumForce(nil, p, c, 1)
	for a, x := range c.Position(1) {
		if expected := -2 * p[Alpha] * x; math.Abs(f[a]-expected) > 1e-12 {
			t.Fatalf("%d %f, expected %f", a, f[a], expected)
		}
	}
}

func TestSingular(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind Kind
		x    *mat.Dense
		p    Params
	}{
		{kind: PairCorrelation, x: mat.NewDense(2, 2, []float64{1, 1, 1, 1}), p: Params{Beta: 1}},
		{kind: PairCorrelation, x: mat.NewDense(2, 1, []float64{0, 2}), p: Params{Beta: -0.5}},
		{kind: ExponentialOrbital, x: mat.NewDense(2, 2, []float64{0, 0, 1, 1}), p: Params{Gamma: 1}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.kind, test.x.RawMatrix().Data), func(t *testing.T) {
			t.Parallel()
			m, err := NewModel([]Kind{test.kind})
			if err != nil {
				t.Fatalf("%+v", err)
			}
			c := state.New(test.x)
			if _, err := m.Kinetic(test.p, c); !errors.Is(err, state.ErrNumerical) {
				t.Fatalf("%+v", err)
			}
			if _, err := m.KineticGradient(test.p, c); !errors.Is(err, state.ErrNumerical) {
				t.Fatalf("%+v", err)
			}
			var w Workspace
			if _, err := m.Local(&w, test.p, c); !errors.Is(err, state.ErrNumerical) {
				t.Fatalf("%+v", err)
			}
		})
	}
}
