package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Counters are owned and written by exactly one worker. The reporter
// reads them without synchronization: they only ever grow, and a
// slightly torn snapshot is acceptable for display, so the hot path
// carries no atomics.
type Counters struct {
	Received    uint64
	Transmitted uint64
	Dropped     uint64
}

func (c *Counters) add(other Counters) {
	c.Received += other.Received
	c.Transmitted += other.Transmitted
	c.Dropped += other.Dropped
}

// WorkerStats is one worker's counters at the time of a snapshot.
type WorkerStats struct {
	Worker int
	Counters
}

// Snapshot collects every worker's counters. Safe to call while
// workers run, with the same skew caveat as the reporter.
func (e *engine) Snapshot() []WorkerStats {
	stats := make([]WorkerStats, len(e.workers))
	for i, w := range e.workers {
		stats[i] = WorkerStats{Worker: w.id, Counters: w.counters}
	}
	return stats
}

func (e *engine) reporter(ctx context.Context, period time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.logStats()
		}
	}
}

func (e *engine) logStats() {
	var total Counters
	for _, stats := range e.Snapshot() {
		logrus.WithFields(logrus.Fields{
			"worker":      stats.Worker,
			"received":    stats.Received,
			"transmitted": stats.Transmitted,
			"dropped":     stats.Dropped,
		}).Info("Forwarding statistics")
		total.add(stats.Counters)
	}
	logrus.Infof("Total: received=%v transmitted=%v dropped=%v",
		total.Received, total.Transmitted, total.Dropped)
}
