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

package policyapi

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// decisionLogHeader is written once, the first time the file is created.
var decisionLogHeader = []string{
	"ts", "step", "dpid", "dst_prefix", "state", "action", "out_port",
	"epsilon", "max_load_bps", "total_drops", "reward", "q_values",
}

// DecisionRow is one logged act() outcome.
type DecisionRow struct {
	TS          float64
	Step        uint64
	DPID        uint64
	DstPrefix   string
	State       int
	Action      int64
	OutPort     uint32
	Epsilon     float64
	MaxLoadBPS  float64
	TotalDrops  uint64
	Reward      *float64
	QValues     []float64
}

// DecisionLog is a buffered, mutex-guarded append-only CSV writer. Rows are
// batched the way the rate limiter's file sink batches its writes: a row
// count threshold flushes promptly under load, and a background ticker
// flushes on a time cadence so a quiet topology's last few rows don't sit
// unflushed indefinitely. It is safe for concurrent use; callers should call
// Close on shutdown to stop the ticker and flush the final buffered rows.
type DecisionLog struct {
	mu          sync.Mutex
	f           *os.File
	w           *csv.Writer
	wroteHeader bool
	flushEvery  int
	unflushed   int

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewDecisionLog opens (or creates) the file at path in append mode. If the
// file is empty, the header row is written immediately. flushEvery is the
// row-count threshold that forces a flush; flushInterval is the backstop
// cadence for a background flush goroutine (0 disables it, relying solely on
// the row-count threshold and the final flush on Close).
func NewDecisionLog(path string, flushEvery int, flushInterval time.Duration) (*DecisionLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	d := &DecisionLog{
		f: f, w: csv.NewWriter(f), wroteHeader: info.Size() > 0,
		flushEvery: flushEvery, stopChan: make(chan struct{}),
	}
	if !d.wroteHeader {
		if err := d.w.Write(decisionLogHeader); err != nil {
			f.Close()
			return nil, err
		}
		d.w.Flush()
		d.wroteHeader = true
	}
	if flushInterval > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.flushLoop(flushInterval)
		}()
	}
	return d, nil
}

func (d *DecisionLog) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.flushNow()
		case <-d.stopChan:
			return
		}
	}
}

func (d *DecisionLog) flushNow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unflushed == 0 {
		return
	}
	d.w.Flush()
	d.unflushed = 0
	if err := d.w.Error(); err != nil {
		fmt.Printf("ERROR: decision log flush failed: %v\n", err)
	}
}

// Append buffers one row, flushing immediately only once flushEvery rows
// have accumulated since the last flush; the remainder is picked up by the
// background ticker or by Close.
func (d *DecisionLog) Append(row DecisionRow) error {
	d.mu.Lock()

	reward := ""
	if row.Reward != nil {
		reward = strconv.FormatFloat(*row.Reward, 'f', -1, 64)
	}
	qv := ""
	if len(row.QValues) > 0 {
		b, err := json.Marshal(row.QValues)
		if err == nil {
			qv = string(b)
		}
	}

	record := []string{
		strconv.FormatFloat(row.TS, 'f', -1, 64),
		strconv.FormatUint(row.Step, 10),
		strconv.FormatUint(row.DPID, 10),
		row.DstPrefix,
		strconv.Itoa(row.State),
		strconv.FormatInt(row.Action, 10),
		strconv.FormatUint(uint64(row.OutPort), 10),
		strconv.FormatFloat(row.Epsilon, 'f', -1, 64),
		strconv.FormatFloat(row.MaxLoadBPS, 'f', -1, 64),
		strconv.FormatUint(row.TotalDrops, 10),
		reward,
		qv,
	}
	if err := d.w.Write(record); err != nil {
		d.mu.Unlock()
		return err
	}
	d.unflushed++
	shouldFlush := d.flushEvery > 0 && d.unflushed >= d.flushEvery
	d.mu.Unlock()

	if shouldFlush {
		d.flushNow()
	}
	return nil
}

// Close stops the background flush goroutine (if any), flushes any
// remaining buffered rows, and closes the underlying file.
func (d *DecisionLog) Close() error {
	if atomic.CompareAndSwapUint32(&d.stopped, 0, 1) {
		close(d.stopChan)
		d.wg.Wait()
	}
	d.flushNow()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
