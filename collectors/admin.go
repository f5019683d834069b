/*
 * This file is part of Artiswarm.
 *
 * Artiswarm is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Artiswarm is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Artiswarm.  If not, see <http://www.gnu.org/licenses/>.
 */

package collectors

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type AdminCollector struct {
	flushTimeHistogram *prometheus.Histogram
	sweepTimeHistogram *prometheus.HistogramVec
	verifyTimeSummary  *prometheus.Histogram

	evictedCounter  *prometheus.CounterVec
	downloadCounter *prometheus.CounterVec
	erroredCounter  prometheus.Counter
}

var (
	// Data
	flushTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "artiswarm_registry_flush_seconds",
		Help:    "Histogram of the time taken to flush transfer registry to disk",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
	sweepTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artiswarm_sweep_seconds",
		Help:    "Histogram of the time taken by maintenance sweeps",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"type"})
	verifyTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "artiswarm_verify_seconds",
		Help:    "Histogram of the time taken to verify local piece data before seeding",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	evictedEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "artiswarm_registry_removed_total",
		Help: "Number of transfer registry entries removed, by reason",
	}, []string{"reason"})
	downloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "artiswarm_downloads_total",
		Help: "Number of supervised downloads, by outcome",
	}, []string{"outcome"})
	erroredRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artiswarm_errored_requests_total",
		Help: "Number of tracker requests that panicked while being handled",
	})
)

func NewAdminCollector() *AdminCollector {
	return &AdminCollector{
		flushTimeHistogram: &flushTime,
		sweepTimeHistogram: sweepTime,
		verifyTimeSummary:  &verifyTime,

		evictedCounter:  evictedEntries,
		downloadCounter: downloads,
		erroredCounter:  erroredRequests,
	}
}

func (collector *AdminCollector) Describe(ch chan<- *prometheus.Desc) {
	flushTime.Describe(ch)
	sweepTime.Describe(ch)
	verifyTime.Describe(ch)

	evictedEntries.Describe(ch)
	downloads.Describe(ch)
	erroredRequests.Describe(ch)
}

func (collector *AdminCollector) Collect(ch chan<- prometheus.Metric) {
	flushTime.Collect(ch)
	sweepTime.Collect(ch)
	verifyTime.Collect(ch)

	evictedEntries.Collect(ch)
	downloads.Collect(ch)
	erroredRequests.Collect(ch)
}

func UpdateFlushTime(time time.Duration) {
	flushTime.Observe(time.Seconds())
}

func UpdateSweepTime(sweepType string, time time.Duration) {
	sweepTime.WithLabelValues(sweepType).Observe(time.Seconds())
}

func UpdateVerifyTime(time time.Duration) {
	verifyTime.Observe(time.Seconds())
}

func IncrementRemoved(reason string, n int) {
	evictedEntries.WithLabelValues(reason).Add(float64(n))
}

func IncrementDownloads(outcome string) {
	downloads.WithLabelValues(outcome).Inc()
}

func IncrementErroredRequests() {
	erroredRequests.Inc()
}
