package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/vmc"
	"github.com/fumin/vmc/hamiltonian"
	"github.com/fumin/vmc/wavefunction"
)

func TestSaveRun(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	s, err := Open(filepath.Join(dir, "vmc.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer s.Close()

	cfg := vmc.DefaultConfig()
	cfg.Particles = 2
	cfg.Terms = []wavefunction.Kind{wavefunction.SingleParticle, wavefunction.PairCorrelation}
	cfg.Potential = hamiltonian.InverseDistance
	cfg.Params = wavefunction.Params{0.5, 0.25, 1}
	rs := &vmc.RunState{
		Params:   wavefunction.Params{0.6, 0.2, 1},
		Energies: []float64{3.1, 3.05, 3.04995},
		Status:   vmc.Converged,
	}
	for i, e := range rs.Energies {
		rs.Iterations = append(rs.Iterations, vmc.Iteration{
			Index:      i + 1,
			Energy:     e,
			Variance:   0.1 / float64(i+1),
			StdErr:     0.001,
			Acceptance: 0.9,
			Params:     wavefunction.Params{0.5 + 0.05*float64(i), 0.25, 1},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ids := make([]int64, 0)
	for range 2 {
		id, err := s.SaveRun(ctx, cfg, rs)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		ids = append(ids, id)
	}
	if ids[0] == ids[1] {
		t.Fatalf("%v", ids)
	}

	energies, err := s.Energies(ctx, ids[1])
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if fmt.Sprint(energies) != fmt.Sprint(rs.Energies) {
		t.Fatalf("%v, expected %v", energies, rs.Energies)
	}

	r, err := s.Run(ctx, ids[0])
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if r.Status != rs.Status || r.Params != rs.Params {
		t.Fatalf("%v %v, expected %v %v", r.Status, r.Params, rs.Status, rs.Params)
	}
	if fmt.Sprint(r.Config) != fmt.Sprint(cfg) {
		t.Fatalf("%#v, expected %#v", r.Config, cfg)
	}
	if fmt.Sprint(r.Iterations) != fmt.Sprint(rs.Iterations) {
		t.Fatalf("%v, expected %v", r.Iterations, rs.Iterations)
	}
	if time.Since(r.Created) > time.Minute {
		t.Fatalf("%v", r.Created)
	}

	if _, err := s.Run(ctx, 12345); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("%+v", err)
	}
}

func TestReopen(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)
	dbPath := filepath.Join(dir, "vmc.db")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rs := &vmc.RunState{Params: wavefunction.Params{1, 1, 1}, Energies: []float64{1.5}, Status: vmc.ExhaustedIterations}
	rs.Iterations = []vmc.Iteration{{Index: 1, Energy: 1.5}}
	id, err := s.SaveRun(ctx, vmc.DefaultConfig(), rs)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("%+v", err)
	}

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer s.Close()
	r, err := s.Run(ctx, id)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if r.Status != vmc.ExhaustedIterations || len(r.Iterations) != 1 {
		t.Fatalf("%#v", r)
	}
}
