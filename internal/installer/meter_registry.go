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

// Package installer composes and sends the FlowMod, MeterMod and GroupMod
// messages a switch needs, deduplicating meters by (dpid, rate) the way an
// idempotent commit deduplicates by commit id.
package installer

import (
	"fmt"
	"sync"

	"qosctl/internal/ofp"
)

// firstMeterID is the first id this registry allocates; OpenFlow reserves
// low meter ids for implementation use, so allocation starts at 10.
const firstMeterID = 10

type meterKey struct {
	dpid uint64
	rate uint32
}

// MeterRegistry maps (dpid, rate_kbps) to a meter id, allocating ids once per
// controller lifetime and behaving like a SETNX marker: a second
// ensure_meter call for a key already marked returns the existing id and
// announces nothing.
type MeterRegistry struct {
	mu      sync.Mutex
	byKey   map[meterKey]uint32
	nextID  uint32
	groups  map[uint64]map[uint32]bool // dpid -> set of group ids already announced
}

// NewMeterRegistry returns an empty registry whose allocator starts at 10.
func NewMeterRegistry() *MeterRegistry {
	return &MeterRegistry{
		byKey:  make(map[meterKey]uint32),
		nextID: firstMeterID,
		groups: make(map[uint64]map[uint32]bool),
	}
}

// EnsureMeter returns the id to install for (dpid, rateKbps). firstTime is
// true the first time a given key is seen, and false on every subsequent
// call — callers use that to decide whether a MeterMod must be sent.
func (r *MeterRegistry) EnsureMeter(dpid uint64, rateKbps uint32) (id uint32, firstTime bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := meterKey{dpid: dpid, rate: rateKbps}
	if id, ok := r.byKey[key]; ok {
		return id, false
	}
	id = r.nextID
	r.nextID++
	r.byKey[key] = id
	return id, true
}

// GroupCommand reports which FlowMod-style command to use for (dpid,
// groupID): the first call for a given pair returns GroupModAdd and marks it
// announced; every subsequent call for the same pair returns GroupModModify.
func (r *MeterRegistry) GroupCommand(dpid uint64, groupID uint32) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen, ok := r.groups[dpid]
	if !ok {
		seen = make(map[uint32]bool)
		r.groups[dpid] = seen
	}
	if seen[groupID] {
		return ofp.GroupModModify
	}
	seen[groupID] = true
	return ofp.GroupModAdd
}

// String describes a meter key as "dpid=<dpid> rate=<rate>" for logging.
func (k meterKey) String() string {
	return fmt.Sprintf("dpid=%d rate=%d", k.dpid, k.rate)
}
