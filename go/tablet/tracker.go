package tablet

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// recentTraceCount bounds the cache of completed-driver traces retained
// for diagnostics.
const recentTraceCount = 32

// Tracker is the registry of in-flight transaction drivers of one peer.
// Every admitted operation is represented here from construction until it
// reaches a terminal phase.
type Tracker struct {
	mu      sync.Mutex
	live    map[*Driver]struct{}
	drained chan struct{} // Non-nil while a drain wait is outstanding.
	recent  *lru.Cache[string, string]
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	var recent, err = lru.New[string, string](recentTraceCount)
	if err != nil {
		panic(err) // Only fails on a non-positive size.
	}
	return &Tracker{
		live:   make(map[*Driver]struct{}),
		recent: recent,
	}
}

// Add registers |d| as in-flight.
func (t *Tracker) Add(d *Driver) {
	t.mu.Lock()
	t.live[d] = struct{}{}
	t.mu.Unlock()
}

// Remove deregisters |d|, retaining its trace for diagnostics. If the
// live set empties, outstanding drain waits are released.
func (t *Tracker) Remove(d *Driver) {
	t.mu.Lock()
	delete(t.live, d)
	t.recent.Add(d.Name(), d.trace.Dump())

	if len(t.live) == 0 && t.drained != nil {
		close(t.drained)
		t.drained = nil
	}
	t.mu.Unlock()
}

// Pending returns a snapshot of the in-flight drivers, in no particular
// order.
func (t *Tracker) Pending() []*Driver {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out = make([]*Driver, 0, len(t.live))
	for d := range t.live {
		out = append(out, d)
	}
	return out
}

// Len returns the number of in-flight drivers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// WaitForDrain blocks until the live set is empty, warning each second
// while drivers remain. Safe to call repeatedly and concurrently.
func (t *Tracker) WaitForDrain() {
	for {
		t.mu.Lock()
		if len(t.live) == 0 {
			t.mu.Unlock()
			return
		}
		if t.drained == nil {
			t.drained = make(chan struct{})
		}
		var ch = t.drained
		var pending = len(t.live)
		t.mu.Unlock()

		select {
		case <-ch:
			return
		case <-time.After(time.Second):
			log.WithField("pending", pending).
				Warn("waiting for in-flight transactions to drain")
		}
	}
}

// RecentTraces returns the retained traces of recently completed drivers,
// keyed by driver name.
func (t *Tracker) RecentTraces() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out = make(map[string]string, t.recent.Len())
	for _, k := range t.recent.Keys() {
		if v, ok := t.recent.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// StartInstrumentation registers a gauge of the live-driver count with
// |reg|, labeled by |tabletID|.
func (t *Tracker) StartInstrumentation(reg prometheus.Registerer, tabletID string) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "stratum_tablet_drivers_in_flight",
		Help:        "Number of in-flight transaction drivers of the tablet peer.",
		ConstLabels: prometheus.Labels{"tablet": tabletID},
	}, func() float64 { return float64(t.Len()) }))
}
