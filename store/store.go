// Package store persists runs and their energy histories in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/vmc"
	"github.com/fumin/vmc/wavefunction"
)

const (
	tableRuns       = "runs"
	tableIterations = "iterations"
)

// Run is a stored run.
type Run struct {
	ID         int64
	Created    time.Time
	Config     vmc.Config
	Status     vmc.Status
	Params     wavefunction.Params
	Iterations []vmc.Iteration
}

// Store is a SQLite database of runs.
type Store struct {
	Path string

	db *sql.DB
}

// Open opens the database at dbPath, creating the tables if needed.
func Open(dbPath string) (*Store, error) {
	s := &Store{Path: dbPath}
	var err error
	s.db, err = newDB(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// SaveRun stores the configuration, outcome and iterations of a run, and returns its id.
func (s *Store) SaveRun(ctx context.Context, cfg vmc.Config, rs *vmc.RunState) (int64, error) {
	cfgB, err := yaml.Marshal(cfg)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	defer tx.Rollback()

	sqlStr := fmt.Sprintf(`INSERT INTO %s (created, config, status, alpha, beta, gamma) VALUES (?, ?, ?, ?, ?, ?)`, tableRuns)
	args := []any{time.Now().UTC().Format(time.RFC3339Nano), string(cfgB), rs.Status.String(),
		rs.Params[wavefunction.Alpha], rs.Params[wavefunction.Beta], rs.Params[wavefunction.Gamma]}
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return -1, errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return -1, errors.Wrap(err, "")
	}

	sqlStr = fmt.Sprintf(`INSERT INTO %s (run, iteration, energy, variance, stderr, chain_stderr, acceptance, alpha, beta, gamma) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableIterations)
	stmt, err := tx.PrepareContext(ctx, sqlStr)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	defer stmt.Close()
	for _, it := range rs.Iterations {
		args := []any{id, it.Index, it.Energy, it.Variance, it.StdErr, it.ChainStdErr, it.Acceptance,
			it.Params[wavefunction.Alpha], it.Params[wavefunction.Beta], it.Params[wavefunction.Gamma]}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return -1, errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
		}
	}

	if err := tx.Commit(); err != nil {
		return -1, errors.Wrap(err, "")
	}
	return id, nil
}

// Energies returns the energy history of run id.
func (s *Store) Energies(ctx context.Context, id int64) ([]float64, error) {
	sqlStr := fmt.Sprintf(`SELECT energy FROM %s WHERE run=? ORDER BY iteration`, tableIterations)
	rows, err := s.db.QueryContext(ctx, sqlStr, id)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	energies := make([]float64, 0)
	for rows.Next() {
		var e float64
		if err := rows.Scan(&e); err != nil {
			return nil, errors.Wrap(err, "")
		}
		energies = append(energies, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return energies, nil
}

// Run returns run id. It returns sql.ErrNoRows if there is no such run.
func (s *Store) Run(ctx context.Context, id int64) (Run, error) {
	r := Run{ID: id}
	sqlStr := fmt.Sprintf(`SELECT created, config, status, alpha, beta, gamma FROM %s WHERE id=?`, tableRuns)
	var created, cfgStr, status string
	p := &r.Params
	err := s.db.QueryRowContext(ctx, sqlStr, id).Scan(&created, &cfgStr, &status, &p[wavefunction.Alpha], &p[wavefunction.Beta], &p[wavefunction.Gamma])
	if err != nil {
		return Run{}, errors.Wrap(err, fmt.Sprintf("run %d", id))
	}
	r.Created, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, errors.Wrap(err, "")
	}
	if err := yaml.Unmarshal([]byte(cfgStr), &r.Config); err != nil {
		return Run{}, errors.Wrap(err, "")
	}
	if err := r.Status.UnmarshalText([]byte(status)); err != nil {
		return Run{}, errors.Wrap(err, "")
	}

	r.Iterations, err = s.iterations(ctx, id)
	if err != nil {
		return Run{}, errors.Wrap(err, "")
	}
	return r, nil
}

func (s *Store) iterations(ctx context.Context, id int64) ([]vmc.Iteration, error) {
	sqlStr := fmt.Sprintf(`SELECT iteration, energy, variance, stderr, chain_stderr, acceptance, alpha, beta, gamma FROM %s WHERE run=? ORDER BY iteration`, tableIterations)
	rows, err := s.db.QueryContext(ctx, sqlStr, id)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	its := make([]vmc.Iteration, 0)
	for rows.Next() {
		var it vmc.Iteration
		p := &it.Params
		if err := rows.Scan(&it.Index, &it.Energy, &it.Variance, &it.StdErr, &it.ChainStdErr, &it.Acceptance, &p[wavefunction.Alpha], &p[wavefunction.Beta], &p[wavefunction.Gamma]); err != nil {
			return nil, errors.Wrap(err, "")
		}
		its = append(its, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return its, nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY,
		created TEXT NOT NULL,
		config TEXT NOT NULL,
		status TEXT NOT NULL,
		alpha REAL, beta REAL, gamma REAL) STRICT`, tableRuns)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run INTEGER REFERENCES %s(id) ON DELETE CASCADE,
		iteration INTEGER,
		energy REAL, variance REAL, stderr REAL, chain_stderr REAL, acceptance REAL,
		alpha REAL, beta REAL, gamma REAL,
		PRIMARY KEY (run, iteration)) STRICT`, tableIterations, tableRuns)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
