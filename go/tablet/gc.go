package tablet

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stratumdb/stratum/go/opid"
)

// EarliestNeededOpID computes the smallest OpID still referenced by any
// in-flight driver, registered anchor, or the log itself. Log segments
// strictly below it are safe to reclaim.
//
// The log's last entry is sampled first and fixes a ceiling: any operation
// admitted afterward cannot replicate below it, so it's safe for the later
// registry and tracker samples to miss such operations. If nothing has
// ever been recorded, the Minimum sentinel is returned and everything is
// retained.
func (p *Peer) EarliestNeededOpID() opid.OpID {
	var min opid.OpID
	var recorded bool

	if last, ok := p.wal.LastEntryOpID(); ok {
		min, recorded = last, true
	}
	if anchor, ok := p.storage.AnchorRegistry().EarliestAnchor(); ok {
		if !recorded || anchor.Less(min) {
			min, recorded = anchor, true
		}
	}
	for _, d := range p.tracker.Pending() {
		// Drivers still in Prepare have no OpID; they're covered by the
		// last-entry ceiling sampled above.
		if op, ok := d.OpID(); ok && (!recorded || op.Less(min)) {
			min, recorded = op, true
		}
	}

	if !recorded {
		return opid.Minimum
	}
	return min
}

// runLogGC is the peer's garbage collection worker. It loops until the
// stop latch trips, reclaiming log segments below the earliest needed
// OpID each pass. GC errors are logged and retried next tick.
func (p *Peer) runLogGC() {
	defer close(p.gcDone)

	var logger = log.WithField("tablet", p.meta.OID())
	if !p.opts.EnableLogGC {
		logger.Info("log GC is disabled; worker exiting")
		return
	}

	for {
		p.collectLogGarbage(logger)

		select {
		case <-p.gcStop:
			return
		case <-time.After(p.opts.LogGCSleepDelay):
		}
	}
}

func (p *Peer) collectLogGarbage(logger *log.Entry) {
	var min = p.EarliestNeededOpID()
	logGCRunsCounter.Inc()

	var reclaimed, err = p.wal.GC(min)
	if err != nil {
		logger.WithError(err).Warn("log GC pass failed")
		return
	}
	logGCSegmentsCounter.Add(float64(reclaimed))

	if reclaimed != 0 {
		logger.WithFields(log.Fields{
			"minOpID":  min.String(),
			"segments": reclaimed,
		}).Debug("reclaimed log segments")
	}
}
