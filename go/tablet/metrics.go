package tablet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var driversStartedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stratum_tablet_drivers_started_total",
	Help: "counter of transaction drivers admitted by tablet peers",
}, []string{"kind", "role"})

var driversCompletedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stratum_tablet_drivers_completed_total",
	Help: "counter of transaction drivers reaching a terminal phase",
}, []string{"kind", "result"})

var logGCRunsCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "stratum_tablet_log_gc_runs_total",
	Help: "counter of log garbage collection passes",
})

var logGCSegmentsCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "stratum_tablet_log_gc_segments_total",
	Help: "counter of log segments reclaimed by garbage collection",
})
