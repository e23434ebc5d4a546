package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/fumin/vmc"
	"github.com/fumin/vmc/exactdiag"
	"github.com/fumin/vmc/monitor"
	"github.com/fumin/vmc/store"
	"github.com/fumin/vmc/wavefunction"
)

const (
	fnameDB       = "vmc.db"
	fnameConfig   = "config.yaml"
	fnameEnergies = "energies.csv"
)

var (
	configPath  = flag.String("c", "", "YAML run configuration, defaults are used if empty")
	runDir      = flag.String("d", filepath.Join("runs", "vmc"), "run directory")
	metricsAddr = flag.String("metrics", "", "address to serve Prometheus metrics on, disabled if empty")
	logInterval = flag.Duration("log", 5*time.Second, "minimum interval between progress logs")
)

func readConfig(fpath string) (vmc.Config, error) {
	if fpath == "" {
		return vmc.DefaultConfig(), nil
	}
	b, err := os.ReadFile(fpath)
	if err != nil {
		return vmc.Config{}, errors.Wrap(err, "")
	}
	cfg, err := vmc.ParseConfig(b)
	if err != nil {
		return vmc.Config{}, errors.Wrap(err, fpath)
	}
	return cfg, nil
}

func writeConfig(dir string, cfg vmc.Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, fnameConfig), b, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("%+v", errors.Wrap(err, addr))
		}
	}()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func energyRecords(rs *vmc.RunState) [][]string {
	records := [][]string{{"iteration", "energy", "stderr", "acceptance", "alpha", "beta", "gamma"}}
	for _, it := range rs.Iterations {
		records = append(records, []string{
			strconv.Itoa(it.Index),
			formatFloat(it.Energy),
			formatFloat(it.StdErr),
			formatFloat(it.Acceptance),
			formatFloat(it.Params[wavefunction.Alpha]),
			formatFloat(it.Params[wavefunction.Beta]),
			formatFloat(it.Params[wavefunction.Gamma]),
		})
	}
	return records
}

func writeEnergies(dir string, records [][]string) error {
	fpath := filepath.Join(dir, fnameEnergies)
	f, err := os.Create(fpath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	if err1 := w.WriteAll(records); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func save(dir string, cfg vmc.Config, rs *vmc.RunState) (int64, error) {
	s, err := store.Open(filepath.Join(dir, fnameDB))
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	id, err := s.SaveRun(ctx, cfg, rs)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	return id, nil
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	cfg, err := readConfig(*configPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeConfig(*runDir, cfg); err != nil {
		return errors.Wrap(err, "")
	}

	observers := []vmc.Observer{vmc.NewLogObserver(*logInterval)}
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		c, err := monitor.NewCollector(reg)
		if err != nil {
			return errors.Wrap(err, "")
		}
		observers = append(observers, c)
		serveMetrics(*metricsAddr, reg)
	}

	d, err := vmc.New(cfg, vmc.NewOptions().Observers(observers...))
	if err != nil {
		return errors.Wrap(err, "")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rs, err := d.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "")
	}

	switch ref, err := exactdiag.Reference(cfg, exactdiag.DefaultPoints); {
	case errors.Is(err, exactdiag.ErrUnsupported):
		log.Printf("no reference energy: %v", err)
	case err != nil:
		return errors.Wrap(err, "")
	default:
		log.Printf("reference energy %f, variational energy %f", ref, rs.Energies[len(rs.Energies)-1])
	}

	id, err := save(*runDir, cfg, rs)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("run %d %s, params %v", id, rs.Status, rs.Params)

	records := energyRecords(rs)
	if err := writeEnergies(*runDir, records); err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(os.Stdout)
	if err := w.WriteAll(records); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
