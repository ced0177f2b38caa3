// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the process-wide Prometheus collectors shared by
// the controller and the policy service. Every public function is a no-op
// until Enable is called, so call sites do not need to guard hot paths.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	congestionAlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qosctl_congestion_alerts_total",
		Help: "Total number of port samples observed above the congestion threshold.",
	}, []string{"dpid"})

	portLoadBPS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qosctl_port_load_bps",
		Help: "Most recently polled load, in bits per second, for a switch port.",
	}, []string{"dpid", "port"})

	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qosctl_policy_decisions_total",
		Help: "Total number of act() decisions made by the policy service, by resulting state.",
	}, []string{"state"})

	rewardsObserved = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qosctl_policy_reward",
		Help:    "Distribution of rewards computed for delayed learning events.",
		Buckets: []float64{-50, -10, -5, 0, 5, 10, 20, 25},
	})

	epsilonGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qosctl_policy_epsilon",
		Help: "Current epsilon-greedy exploration rate.",
	})

	metersAnnouncedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qosctl_meters_announced_total",
		Help: "Total number of MeterMod ADD messages sent, by dpid.",
	}, []string{"dpid"})
)

func init() {
	prometheus.MustRegister(congestionAlertsTotal, portLoadBPS, decisionsTotal, rewardsObserved, epsilonGauge, metersAnnouncedTotal)
}

// Enable turns metric recording on. Collectors are always registered; this
// only gates whether the Observe* helpers below do any work, mirroring the
// teacher's churn module's enable switch.
func Enable() { enabled.Store(true) }

// Enabled reports whether metric recording is active.
func Enabled() bool { return enabled.Load() }

// ObserveCongestionAlert records that dpid's polled load exceeded the
// configured congestion threshold this cycle.
func ObserveCongestionAlert(dpid string) {
	if !enabled.Load() {
		return
	}
	congestionAlertsTotal.WithLabelValues(dpid).Inc()
}

// SetPortLoad records the latest polled load for a (dpid, port) pair.
func SetPortLoad(dpid, port string, loadBPS float64) {
	if !enabled.Load() {
		return
	}
	portLoadBPS.WithLabelValues(dpid, port).Set(loadBPS)
}

// ObserveDecision records one act() outcome by its resulting congestion
// state (0, 1, or 2).
func ObserveDecision(state int) {
	if !enabled.Load() {
		return
	}
	decisionsTotal.WithLabelValues(stateLabel(state)).Inc()
}

// ObserveReward records a delayed reward computed during a learning event.
func ObserveReward(r float64) {
	if !enabled.Load() {
		return
	}
	rewardsObserved.Observe(r)
}

// SetEpsilon records the engine's current exploration rate.
func SetEpsilon(epsilon float64) {
	if !enabled.Load() {
		return
	}
	epsilonGauge.Set(epsilon)
}

// ObserveMeterAnnounced records that a MeterMod ADD was actually sent for
// dpid (not merely looked up from the registry).
func ObserveMeterAnnounced(dpid string) {
	if !enabled.Load() {
		return
	}
	metersAnnouncedTotal.WithLabelValues(dpid).Inc()
}

func stateLabel(state int) string {
	switch state {
	case 0:
		return "low"
	case 1:
		return "medium"
	case 2:
		return "high"
	default:
		return "unknown"
	}
}
