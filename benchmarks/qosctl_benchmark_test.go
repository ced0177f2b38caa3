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

// Package benchmarks contains the performance tests for the control plane.
package benchmarks

import (
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"qosctl/internal/qtable"
	"qosctl/internal/telemetry"
)

var globalIdx atomic.Uint64

// BenchmarkTelemetryStore_Update_SingleKey measures the cost of repeatedly
// updating one port's sample from a single goroutine, establishing a
// baseline before the sharded/concurrent cases below.
func BenchmarkTelemetryStore_Update_SingleKey(b *testing.B) {
	store := telemetry.New(16, 30*time.Second)
	key := telemetry.PortKey(256, 1)
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Update(key, telemetry.Sample{LoadBPS: float64(i), Drops: uint64(i % 3)}, now)
	}
}

// BenchmarkTelemetryStore_Update_Concurrent measures throughput when many
// goroutines update different ports concurrently, the shape the poller loop
// produces once a topology has more than a handful of switches: this is the
// rendezvous-sharded striping's reason for existing, the same way the
// teacher's Store.GetOrCreate benchmark stresses its per-key lock.
func BenchmarkTelemetryStore_Update_Concurrent(b *testing.B) {
	store := telemetry.New(16, 30*time.Second)
	const numPorts = 1000
	keys := make([]telemetry.Key, numPorts)
	for i := range keys {
		keys[i] = telemetry.PortKey(uint64(256+256*(i%3)), uint32(i%48)+1)
	}
	now := time.Now()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := globalIdx.Add(1)
			k := keys[idx%uint64(numPorts)]
			store.Update(k, telemetry.Sample{LoadBPS: float64(idx), Drops: 0}, now)
		}
	})
}

// BenchmarkTelemetryStore_ForEach measures the cost of a full snapshot scan
// (the Admin API's /snapshot handler) against a store holding a realistic
// number of port and queue samples.
func BenchmarkTelemetryStore_ForEach(b *testing.B) {
	store := telemetry.New(16, 30*time.Second)
	now := time.Now()
	for dpid := uint64(256); dpid <= 768; dpid += 256 {
		for port := uint32(1); port <= 48; port++ {
			store.Update(telemetry.PortKey(dpid, port), telemetry.Sample{LoadBPS: 1000}, now)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := 0
		store.ForEach(now, func(telemetry.Key, telemetry.Sample) { n++ })
	}
}

// BenchmarkEngine_Act_SingleFlowKey measures the cost of the full
// choose/learn/record sequence on one flow-key from a single goroutine.
func BenchmarkEngine_Act_SingleFlowKey(b *testing.B) {
	engine := qtable.New(qtable.Config{LR: 0.1, Gamma: 0.9, Epsilon: 0.1, EpsilonMin: 0.01, EpsilonDecay: 0.999}, nil)
	candidates := []qtable.ActionDescriptor{
		{ActionIdx: 0, OutPort: 1}, {ActionIdx: 1, OutPort: 2}, {ActionIdx: 2, OutPort: 3},
	}
	reward := func(prev qtable.ActionDescriptor, stable bool) float64 { return 1.0 }
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Act("256:10.0.1", candidates, i%3, reward)
	}
}

// BenchmarkEngine_Act_ManyFlowKeys measures Act's throughput when many
// goroutines each drive a distinct flow-key concurrently, the shape the
// policy service sees under a real topology with many (dpid, dst_prefix)
// pairs active at once. All flow-keys share one Engine lock by design (the
// whole ensure/choose/learn sequence must run atomically per spec), so this
// benchmark is a direct measurement of that lock's contention cost.
func BenchmarkEngine_Act_ManyFlowKeys(b *testing.B) {
	engine := qtable.New(qtable.Config{LR: 0.1, Gamma: 0.9, Epsilon: 0.1, EpsilonMin: 0.01, EpsilonDecay: 0.999}, nil)
	candidates := []qtable.ActionDescriptor{
		{ActionIdx: 0, OutPort: 1}, {ActionIdx: 1, OutPort: 2},
	}
	reward := func(prev qtable.ActionDescriptor, stable bool) float64 { return 1.0 }
	const numFlows = 200
	keys := make([]string, numFlows)
	for i := range keys {
		keys[i] = "256:10.0." + strconv.Itoa(i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := globalIdx.Add(1)
			key := keys[idx%uint64(numFlows)]
			engine.Act(key, candidates, int(idx%3), reward)
		}
	})
}
