package vmc

import (
	"log"
	"time"

	"github.com/fumin/vmc/util"
)

// An Observer is notified after every iteration of a Driver.
// Observers run on the driver's goroutine and must not modify rs.
type Observer interface {
	Observe(it Iteration, rs *RunState)
}

// LogObserver logs iterations, at most one per period, and always the last one.
type LogObserver struct {
	throttler *util.Throttler
}

func NewLogObserver(period time.Duration) *LogObserver {
	o := &LogObserver{throttler: util.NewThrottler(period)}
	return o
}

func (o *LogObserver) Observe(it Iteration, rs *RunState) {
	ok, skipped := o.throttler.Ok(rs.Status.Terminal())
	if !ok {
		return
	}
	if rs.Status.Terminal() {
		log.Printf("%s after %d iterations, energy %f variance %g params %v", rs.Status, it.Index, it.Energy, it.Variance, rs.Params)
		return
	}
	log.Printf("iteration %d (%d unlogged) energy %f stderr %g acceptance %.3f params %v", it.Index, skipped, it.Energy, it.StdErr, it.Acceptance, it.Params)
}
