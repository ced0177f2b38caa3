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

// Package telemetry holds the latest port/queue counter sample reported by
// each switch. Every Update overwrites the previous sample for its key; the
// store never averages or windows. Reads older than a configured TTL are
// treated as stale and excluded from aggregate queries.
package telemetry

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgryski/go-rendezvous"
)

// noQueue marks a Key that refers to a port counter rather than a queue
// counter (spec's stats carry an optional queue id).
const noQueue = -1

// Key identifies a single counter stream: a port counter when QID is -1, a
// queue counter on that port otherwise.
type Key struct {
	DPID uint64
	Port uint32
	QID  int32
}

// PortKey builds a Key for a port-level counter (no queue id).
func PortKey(dpid uint64, port uint32) Key { return Key{DPID: dpid, Port: port, QID: noQueue} }

// QueueKey builds a Key for a queue-level counter.
func QueueKey(dpid uint64, port uint32, qid uint32) Key {
	return Key{DPID: dpid, Port: port, QID: int32(qid)}
}

// HasQueue reports whether the key names a queue rather than a bare port.
func (k Key) HasQueue() bool { return k.QID != noQueue }

// Sample is the latest observed counter state for a Key.
type Sample struct {
	LoadBPS   float64
	TxBytes   uint64
	RxBytes   uint64
	Drops     uint64
	Timestamp time.Time
}

func (s Sample) stale(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(s.Timestamp) > ttl
}

// stripe is one lock-protected shard of the store, grounded on the
// sync.Map-per-key approach but using a plain mutex since a stripe only
// holds a small fraction of the total key space.
type stripe struct {
	mu   sync.RWMutex
	data map[Key]Sample
}

// Store shards its samples across a fixed pool of stripes, selected by
// rendezvous-hashing the dpid, so that hot switches don't serialize their
// reads and writes on one global lock.
type Store struct {
	ttl     time.Duration
	stripes []*stripe
	hrw     *rendezvous.Rendezvous
	names   []string
}

// New constructs a Store with the given number of lock stripes and the
// staleness TTL applied by aggregate queries. stripes <= 0 defaults to 16.
func New(stripes int, ttl time.Duration) *Store {
	if stripes <= 0 {
		stripes = 16
	}
	s := &Store{
		ttl:     ttl,
		stripes: make([]*stripe, stripes),
		names:   make([]string, stripes),
	}
	for i := range s.stripes {
		s.stripes[i] = &stripe{data: make(map[Key]Sample)}
		s.names[i] = strconv.Itoa(i)
	}
	s.hrw = rendezvous.New(s.names, hashString)
	return s
}

func hashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func (s *Store) stripeFor(dpid uint64) *stripe {
	name := s.hrw.Lookup(strconv.FormatUint(dpid, 10))
	idx, err := strconv.Atoi(name)
	if err != nil {
		idx = int(dpid % uint64(len(s.stripes)))
	}
	return s.stripes[idx]
}

// Update overwrites the sample stored for key with sample, stamping it with
// now if sample.Timestamp is the zero value.
func (s *Store) Update(key Key, sample Sample, now time.Time) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}
	st := s.stripeFor(key.DPID)
	st.mu.Lock()
	st.data[key] = sample
	st.mu.Unlock()
}

// Get returns the latest sample for key and whether it is present and not
// stale as of now.
func (s *Store) Get(key Key, now time.Time) (Sample, bool) {
	st := s.stripeFor(key.DPID)
	st.mu.RLock()
	sample, ok := st.data[key]
	st.mu.RUnlock()
	if !ok || sample.stale(s.ttl, now) {
		return Sample{}, false
	}
	return sample, true
}

// ForEach visits every non-stale sample in the store. f must not call back
// into the Store.
func (s *Store) ForEach(now time.Time, f func(Key, Sample)) {
	for _, st := range s.stripes {
		st.mu.RLock()
		for k, v := range st.data {
			if !v.stale(s.ttl, now) {
				f(k, v)
			}
		}
		st.mu.RUnlock()
	}
}

// MaxLoadBPS returns the highest LoadBPS across every non-stale port sample
// recorded for dpid (queue samples are excluded; load is a port-level
// metric).
func (s *Store) MaxLoadBPS(dpid uint64, now time.Time) float64 {
	st := s.stripeFor(dpid)
	st.mu.RLock()
	defer st.mu.RUnlock()
	var max float64
	for k, v := range st.data {
		if k.DPID != dpid || k.HasQueue() || v.stale(s.ttl, now) {
			continue
		}
		if v.LoadBPS > max {
			max = v.LoadBPS
		}
	}
	return max
}

// SumDrops returns the total Drops across every non-stale sample (port and
// queue) recorded for dpid.
func (s *Store) SumDrops(dpid uint64, now time.Time) uint64 {
	st := s.stripeFor(dpid)
	st.mu.RLock()
	defer st.mu.RUnlock()
	var total uint64
	for k, v := range st.data {
		if k.DPID != dpid || v.stale(s.ttl, now) {
			continue
		}
		total += v.Drops
	}
	return total
}

// QueryPort aggregates the max load and total drops across every
// non-stale sample (port-level and any queue-level) matching (dpid, port).
func (s *Store) QueryPort(dpid uint64, port uint32, now time.Time) (maxLoadBPS float64, totalDrops uint64) {
	st := s.stripeFor(dpid)
	st.mu.RLock()
	defer st.mu.RUnlock()
	for k, v := range st.data {
		if k.DPID != dpid || k.Port != port || v.stale(s.ttl, now) {
			continue
		}
		if v.LoadBPS > maxLoadBPS {
			maxLoadBPS = v.LoadBPS
		}
		totalDrops += v.Drops
	}
	return maxLoadBPS, totalDrops
}

// QueryPorts aggregates QueryPort's result across a set of ports, matching
// the "union of candidate out_ports" query used to compute state for act().
func (s *Store) QueryPorts(dpid uint64, ports []uint32, now time.Time) (maxLoadBPS float64, totalDrops uint64) {
	for _, p := range ports {
		m, d := s.QueryPort(dpid, p, now)
		if m > maxLoadBPS {
			maxLoadBPS = m
		}
		totalDrops += d
	}
	return maxLoadBPS, totalDrops
}

// QueryQueue returns the load and drops for the exact (dpid, port, qid)
// triple, or zero values if no non-stale sample exists for it.
func (s *Store) QueryQueue(dpid uint64, port uint32, qid uint32, now time.Time) (loadBPS float64, drops uint64) {
	sample, ok := s.Get(QueueKey(dpid, port, qid), now)
	if !ok {
		return 0, 0
	}
	return sample.LoadBPS, sample.Drops
}

// String renders a Key for logging.
func (k Key) String() string {
	if k.HasQueue() {
		return fmt.Sprintf("dpid=%d port=%d qid=%d", k.DPID, k.Port, k.QID)
	}
	return fmt.Sprintf("dpid=%d port=%d", k.DPID, k.Port)
}
