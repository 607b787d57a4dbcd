package metrics

import (
	"sync/atomic"
	"time"
)

// Collector counts requests and payslip computations.
type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	totalDurationMs uint64

	computations      uint64
	computeFailures   uint64
	linesEmitted      uint64
	computeDurationUs uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordCompute counts one payslip computation.
func (c *Collector) RecordCompute(lines int, duration time.Duration, err error) {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.computations, 1)
	if err != nil {
		atomic.AddUint64(&c.computeFailures, 1)
	}
	atomic.AddUint64(&c.linesEmitted, uint64(lines))
	atomic.AddUint64(&c.computeDurationUs, uint64(duration.Microseconds()))
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	computations := atomic.LoadUint64(&c.computations)
	computeUs := atomic.LoadUint64(&c.computeDurationUs)
	avgCompute := float64(0)
	if computations > 0 {
		avgCompute = float64(computeUs) / float64(computations)
	}
	return map[string]any{
		"requestsTotal":          total,
		"errorsTotal":            errs,
		"avgDurationMs":          avg,
		"totalDurationMs":        totalMs,
		"computationsTotal":      computations,
		"computationFailures":    atomic.LoadUint64(&c.computeFailures),
		"linesEmittedTotal":      atomic.LoadUint64(&c.linesEmitted),
		"avgComputeDurationUs":   avgCompute,
		"totalComputeDurationUs": computeUs,
	}
}
