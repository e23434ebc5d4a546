// Package monitor exports the progress of a run as Prometheus metrics.
package monitor

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fumin/vmc"
	"github.com/fumin/vmc/wavefunction"
)

var slotNames = [wavefunction.NumParams]string{
	wavefunction.Alpha: "alpha",
	wavefunction.Beta:  "beta",
	wavefunction.Gamma: "gamma",
}

// Collector is a vmc.Observer updating Prometheus metrics after every iteration.
type Collector struct {
	energy     prometheus.Gauge
	stderr     prometheus.Gauge
	acceptance prometheus.Gauge
	params     *prometheus.GaugeVec
	iterations prometheus.Counter
	status     *prometheus.GaugeVec
}

// NewCollector returns a collector with its metrics registered on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		energy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vmc_energy",
			Help: "Mean local energy of the last iteration.",
		}),
		stderr: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vmc_energy_stderr",
			Help: "Standard error of the mean local energy of the last iteration.",
		}),
		acceptance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vmc_acceptance_ratio",
			Help: "Fraction of accepted Metropolis proposals in the last iteration.",
		}),
		params: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vmc_parameter",
			Help: "Current variational parameters.",
		}, []string{"slot"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmc_iterations_total",
			Help: "Number of completed iterations.",
		}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vmc_status",
			Help: "One for the current status of the run, zero otherwise.",
		}, []string{"status"}),
	}
	for _, m := range []prometheus.Collector{c.energy, c.stderr, c.acceptance, c.params, c.iterations, c.status} {
		if err := reg.Register(m); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return c, nil
}

func (c *Collector) Observe(it vmc.Iteration, rs *vmc.RunState) {
	c.energy.Set(it.Energy)
	c.stderr.Set(it.StdErr)
	c.acceptance.Set(it.Acceptance)
	for i, name := range slotNames {
		c.params.WithLabelValues(name).Set(rs.Params[i])
	}
	c.iterations.Inc()
	for _, s := range []vmc.Status{vmc.Running, vmc.Converged, vmc.ExhaustedIterations} {
		var v float64
		if s == rs.Status {
			v = 1
		}
		c.status.WithLabelValues(s.String()).Set(v)
	}
}
