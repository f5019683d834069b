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
	"math"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type NormalCollector struct {
	uptimeMetric          *prometheus.Desc
	registryMetric        *prometheus.Desc
	seedingMetric         *prometheus.Desc
	swarmsMetric          *prometheus.Desc
	peersMetric           *prometheus.Desc
	peerAddressesMetric   *prometheus.Desc
	requestsMetric        *prometheus.Desc
	poolPendingMetric     *prometheus.Desc
	registryCapacityValue *prometheus.Desc
}

var ( // Data
	uptime           atomic.Uint64 // float64 bits
	registryEntries  atomic.Int64
	registryCapacity atomic.Int64
	seeding          atomic.Int64
	swarms           atomic.Int64
	peers            atomic.Int64
	peerAddresses    atomic.Int64
	requests         atomic.Uint64
	poolPending      atomic.Int64
)

func NewNormalCollector() *NormalCollector {
	return &NormalCollector{
		uptimeMetric:          prometheus.NewDesc("artiswarm_uptime", "System uptime in seconds", nil, nil),
		registryMetric:        prometheus.NewDesc("artiswarm_registry_entries", "Number of source files in transfer registry", nil, nil),
		registryCapacityValue: prometheus.NewDesc("artiswarm_registry_capacity", "Configured transfer registry capacity", nil, nil),
		seedingMetric:         prometheus.NewDesc("artiswarm_seeding", "Number of torrents currently being seeded", nil, nil),
		swarmsMetric:          prometheus.NewDesc("artiswarm_swarms", "Number of swarms currently being tracked", nil, nil),
		peersMetric:           prometheus.NewDesc("artiswarm_peers", "Number of peers currently being tracked", nil, nil),
		peerAddressesMetric:   prometheus.NewDesc("artiswarm_peer_addresses", "Number of distinct peer addresses across all swarms", nil, nil),
		requestsMetric:        prometheus.NewDesc("artiswarm_requests", "Number of successful tracker requests handled", nil, nil),
		poolPendingMetric:     prometheus.NewDesc("artiswarm_pool_pending", "Number of tasks waiting in the work pool queue", nil, nil),
	}
}

func (collector *NormalCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.uptimeMetric
	ch <- collector.registryMetric
	ch <- collector.registryCapacityValue
	ch <- collector.seedingMetric
	ch <- collector.swarmsMetric
	ch <- collector.peersMetric
	ch <- collector.peerAddressesMetric
	ch <- collector.requestsMetric
	ch <- collector.poolPendingMetric
}

func (collector *NormalCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(collector.uptimeMetric, prometheus.CounterValue, math.Float64frombits(uptime.Load()))
	ch <- prometheus.MustNewConstMetric(collector.registryMetric, prometheus.GaugeValue, float64(registryEntries.Load()))
	ch <- prometheus.MustNewConstMetric(collector.registryCapacityValue, prometheus.GaugeValue, float64(registryCapacity.Load()))
	ch <- prometheus.MustNewConstMetric(collector.seedingMetric, prometheus.GaugeValue, float64(seeding.Load()))
	ch <- prometheus.MustNewConstMetric(collector.swarmsMetric, prometheus.GaugeValue, float64(swarms.Load()))
	ch <- prometheus.MustNewConstMetric(collector.peersMetric, prometheus.GaugeValue, float64(peers.Load()))
	ch <- prometheus.MustNewConstMetric(collector.peerAddressesMetric, prometheus.GaugeValue, float64(peerAddresses.Load()))
	ch <- prometheus.MustNewConstMetric(collector.requestsMetric, prometheus.CounterValue, float64(requests.Load()))
	ch <- prometheus.MustNewConstMetric(collector.poolPendingMetric, prometheus.GaugeValue, float64(poolPending.Load()))
}

func UpdateUptime(tempUptime float64) {
	uptime.Store(math.Float64bits(tempUptime))
}

func UpdateRegistry(entries, capacity int) {
	registryEntries.Store(int64(entries))
	registryCapacity.Store(int64(capacity))
}

func UpdateSeeding(tempSeeding int) {
	seeding.Store(int64(tempSeeding))
}

func UpdateSwarms(tempSwarms int) {
	swarms.Store(int64(tempSwarms))
}

func UpdatePeers(tempPeers, tempAddresses int) {
	peers.Store(int64(tempPeers))
	peerAddresses.Store(int64(tempAddresses))
}

func UpdateRequests(tempRequests uint64) {
	requests.Store(tempRequests)
}

func UpdatePoolPending(pending int) {
	poolPending.Store(int64(pending))
}
