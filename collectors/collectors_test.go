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
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

func gatherText(t *testing.T, c prometheus.Collector) string {
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)

	mfs, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	var sb strings.Builder

	for _, mf := range mfs {
		if _, err = expfmt.MetricFamilyToText(&sb, mf); err != nil {
			t.Fatalf("Failed to render metric family: %v", err)
		}
	}

	return sb.String()
}

func TestNormalCollector(t *testing.T) {
	UpdateUptime(12.5)
	UpdateRegistry(3, 10)
	UpdateSeeding(2)
	UpdateSwarms(4)
	UpdatePeers(7, 5)
	UpdateRequests(99)
	UpdatePoolPending(1)

	out := gatherText(t, NewNormalCollector())

	for _, expected := range []string{
		"artiswarm_uptime 12.5",
		"artiswarm_registry_entries 3",
		"artiswarm_registry_capacity 10",
		"artiswarm_seeding 2",
		"artiswarm_swarms 4",
		"artiswarm_peers 7",
		"artiswarm_peer_addresses 5",
		"artiswarm_requests 99",
		"artiswarm_pool_pending 1",
	} {
		if !strings.Contains(out, expected) {
			t.Fatalf("Expected %q in collector output:\n%s", expected, out)
		}
	}
}

func TestAdminCollector(t *testing.T) {
	UpdateFlushTime(10 * time.Millisecond)
	UpdateSweepTime("registry", time.Millisecond)
	UpdateVerifyTime(time.Second)
	IncrementRemoved("capacity", 2)
	IncrementDownloads("succeeded")
	IncrementErroredRequests()

	out := gatherText(t, NewAdminCollector())

	for _, expected := range []string{
		"artiswarm_registry_flush_seconds_count",
		`artiswarm_sweep_seconds_count{type="registry"}`,
		`artiswarm_registry_removed_total{reason="capacity"} 2`,
		`artiswarm_downloads_total{outcome="succeeded"} 1`,
		"artiswarm_errored_requests_total 1",
	} {
		if !strings.Contains(out, expected) {
			t.Fatalf("Expected %q in collector output:\n%s", expected, out)
		}
	}
}
