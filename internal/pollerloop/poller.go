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

// Package pollerloop runs the controller's single periodic polling task: on
// every tick it asks each connected switch for port and queue counters,
// diffs the reply against the previous snapshot to get a rate, and forwards
// the result to the Telemetry Store and the policy service.
package pollerloop

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"qosctl/internal/metrics"
	"qosctl/internal/ofp"
	"qosctl/internal/policyclient"
	"qosctl/internal/telemetry"
)

// SwitchSet is the subset of *ofp.Server a Poller needs: the dpid list and a
// way to reach each session to send the stats requests.
type SwitchSet interface {
	DPIDs() []uint64
	Session(dpid uint64) *ofp.Session
}

type portSnapshot struct {
	rxBytes, txBytes     uint64
	rxDropped, txDropped uint64
	at                   time.Time
}

type queueSnapshot struct {
	txBytes  uint64
	txErrors uint64
	at       time.Time
}

// Poller owns the per-switch delta state needed to turn raw counters into
// rates. The controller routes stats replies to HandlePortStatsReply and
// HandleQueueStatsReply; the Poller drives the request side from a ticker.
type Poller struct {
	switches     SwitchSet
	store        *telemetry.Store
	policy       *policyclient.Client
	thresholdBPS float64
	interval     time.Duration

	mu        sync.Mutex
	portPrev  map[telemetry.Key]portSnapshot
	queuePrev map[telemetry.Key]queueSnapshot

	stopCh  chan struct{}
	stopped uint32
	wg      sync.WaitGroup
}

// New builds a Poller. policy may be nil to disable forwarding observations
// to the policy service (e.g. in tests that only exercise delta math).
func New(switches SwitchSet, store *telemetry.Store, policy *policyclient.Client, thresholdBPS float64, interval time.Duration) *Poller {
	return &Poller{
		switches:     switches,
		store:        store,
		policy:       policy,
		thresholdBPS: thresholdBPS,
		interval:     interval,
		portPrev:     make(map[telemetry.Key]portSnapshot),
		queuePrev:    make(map[telemetry.Key]queueSnapshot),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the ticker-driven request loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
}

// Stop halts the request loop. Safe to call more than once.
func (p *Poller) Stop() {
	if !atomic.CompareAndSwapUint32(&p.stopped, 0, 1) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.pollOnce()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Poller) pollOnce() {
	for _, dpid := range p.switches.DPIDs() {
		sess := p.switches.Session(dpid)
		if sess == nil {
			continue
		}
		sess.Send(ofp.PortStatsRequest{XID: sess.NextXID(), PortNo: ofp.PortAll}.Marshal())
		sess.Send(ofp.QueueStatsRequest{XID: sess.NextXID(), PortNo: ofp.PortAll, QueueID: ofp.QueueAll}.Marshal())
	}
}

// HandlePortStatsReply computes the delta against the previous snapshot for
// each entry and, when one exists, updates the Telemetry Store and forwards
// an observe() call to the policy service.
func (p *Poller) HandlePortStatsReply(dpid uint64, reply ofp.PortStatsReply) {
	now := time.Now()
	for _, e := range reply.Entries {
		key := telemetry.PortKey(dpid, e.PortNo)

		p.mu.Lock()
		prev, ok := p.portPrev[key]
		p.portPrev[key] = portSnapshot{rxBytes: e.RxBytes, txBytes: e.TxBytes, rxDropped: e.RxDropped, txDropped: e.TxDropped, at: now}
		p.mu.Unlock()

		if !ok {
			continue
		}
		elapsed := now.Sub(prev.at).Seconds()
		if elapsed <= 0 {
			continue
		}

		loadBPS := maxF(bps(e.TxBytes, prev.txBytes, elapsed), bps(e.RxBytes, prev.rxBytes, elapsed))
		drops := nonNegDelta(e.RxDropped+e.TxDropped, prev.rxDropped+prev.txDropped)

		p.store.Update(key, telemetry.Sample{LoadBPS: loadBPS, TxBytes: e.TxBytes, RxBytes: e.RxBytes, Drops: drops}, now)
		metrics.SetPortLoad(fmt.Sprintf("%d", dpid), fmt.Sprintf("%d", e.PortNo), loadBPS)

		if p.thresholdBPS > 0 && loadBPS > p.thresholdBPS {
			log.Printf("pollerloop: CONGESTION ALERT dpid=%d port=%d load=%.0fbps limit=%.0fbps", dpid, e.PortNo, loadBPS, p.thresholdBPS)
			metrics.ObserveCongestionAlert(fmt.Sprintf("%d", dpid))
		}

		p.forwardObserve(dpid, e.PortNo, nil, loadBPS, drops)
	}
}

// HandleQueueStatsReply mirrors HandlePortStatsReply for per-queue counters.
func (p *Poller) HandleQueueStatsReply(dpid uint64, reply ofp.QueueStatsReply) {
	now := time.Now()
	for _, e := range reply.Entries {
		key := telemetry.QueueKey(dpid, e.PortNo, e.QueueID)

		p.mu.Lock()
		prev, ok := p.queuePrev[key]
		p.queuePrev[key] = queueSnapshot{txBytes: e.TxBytes, txErrors: e.TxErrors, at: now}
		p.mu.Unlock()

		if !ok {
			continue
		}
		elapsed := now.Sub(prev.at).Seconds()
		if elapsed <= 0 {
			continue
		}

		loadBPS := bps(e.TxBytes, prev.txBytes, elapsed)
		drops := nonNegDelta(e.TxErrors, prev.txErrors)

		p.store.Update(key, telemetry.Sample{LoadBPS: loadBPS, TxBytes: e.TxBytes, Drops: drops}, now)

		qid := e.QueueID
		p.forwardObserve(dpid, e.PortNo, &qid, loadBPS, drops)
	}
}

func (p *Poller) forwardObserve(dpid uint64, port uint32, qid *uint32, loadBPS float64, drops uint64) {
	if p.policy == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.interval)
		defer cancel()
		if _, err := p.policy.Observe(ctx, policyclient.ObserveRequest{
			DPID: dpid, Port: port, QID: qid, LoadBPS: loadBPS, Drops: drops,
		}); err != nil {
			log.Printf("pollerloop: observe forward failed dpid=%d port=%d: %v", dpid, port, err)
		}
	}()
}

func bps(cur, prev uint64, elapsedSeconds float64) float64 {
	delta := nonNegDelta(cur, prev)
	return (float64(delta) * 8) / elapsedSeconds
}

func nonNegDelta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
