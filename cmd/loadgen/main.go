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

// loadgen is a dependency-free synthetic traffic generator for the policy
// service. It drives /observe and /act directly over HTTP, so the
// Q-learning loop can be exercised through many steps without a live
// OpenFlow controller or Mininet topology on the other end.
//
// Each simulated flow is a (dpid, dst_prefix) pair with a fixed candidate
// set of output ports/queues. A worker repeatedly posts synthetic port
// telemetry to /observe and then asks /act for a decision, looping for
// -steps iterations per flow. Workers reuse HTTP connections and run
// concurrently across the flow set.
//
// Usage:
//
//	loadgen -base=http://127.0.0.1:5000 -switches=3 -flows=4 -steps=500 -c=8
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	var (
		base        = flag.String("base", "http://127.0.0.1:5000", "Policy service base URL including scheme and host")
		switches    = flag.Int("switches", 3, "Number of simulated switches (dpids), numbered 256, 512, 768, ...")
		flows       = flag.Int("flows", 4, "Number of distinct dst_prefix flows per switch")
		candidates  = flag.Int("candidates", 3, "Number of candidate output ports per flow")
		steps       = flag.Int("steps", 200, "observe+act iterations per flow")
		conc        = flag.Int("c", 8, "Number of concurrent worker goroutines (flows are distributed across them)")
		loadMinKbps = flag.Float64("load_min_kbps", 50, "Minimum synthetic per-candidate load, in kbps")
		loadMaxKbps = flag.Float64("load_max_kbps", 400, "Maximum synthetic per-candidate load, in kbps")
		dropRate    = flag.Float64("drop_rate", 0.05, "Probability a step reports a nonzero drop count on the busiest candidate")
		meterKbps   = flag.Uint64("meter_kbps", 0, "Meter rate advertised with every candidate; 0 means no meter")
		stepDelay   = flag.Duration("step_delay", 0, "Delay between an observe+act pair and the next one, per flow")
		timeout     = flag.Duration("timeout", 2*time.Minute, "Overall timeout for the loadgen run")
	)
	flag.Parse()

	if *switches <= 0 || *flows <= 0 || *candidates <= 0 || *steps <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-switches, -flows, -candidates, -steps, and -c must all be > 0")
		os.Exit(2)
	}

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 256,
			IdleConnTimeout:     30 * time.Second,
		},
		Timeout: 5 * time.Second,
	}

	type flowSpec struct {
		dpid       uint64
		dstPrefix  string
		ports      []uint32
	}
	var flowList []flowSpec
	for s := 0; s < *switches; s++ {
		dpid := uint64((s + 1) * 256)
		for f := 0; f < *flows; f++ {
			ports := make([]uint32, *candidates)
			for i := range ports {
				ports[i] = uint32(i + 1)
			}
			flowList = append(flowList, flowSpec{
				dpid:      dpid,
				dstPrefix: fmt.Sprintf("10.0.%d", f+1),
				ports:     ports,
			})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var observeCount, actCount, errCount int64
	start := time.Now()

	runFlow := func(workerID int, fs flowSpec) {
		rng := rand.New(rand.NewSource(int64(workerID)*7919 + int64(fs.dpid)))
		for step := 0; step < *steps; step++ {
			select {
			case <-ctx.Done():
				return
			default:
			}

			busy := rng.Intn(len(fs.ports))
			for i, port := range fs.ports {
				load := *loadMinKbps + rng.Float64()*(*loadMaxKbps-*loadMinKbps)
				var drops uint64
				if i == busy {
					load *= 2
					if rng.Float64() < *dropRate {
						drops = uint64(rng.Intn(10) + 1)
					}
				}
				if err := postJSON(ctx, client, *base+"/observe", map[string]interface{}{
					"dpid":     fs.dpid,
					"port":     port,
					"load_bps": load * 1000,
					"drops":    drops,
				}, nil); err != nil {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&observeCount, 1)
			}

			actCandidates := make([]map[string]interface{}, len(fs.ports))
			for i, port := range fs.ports {
				actCandidates[i] = map[string]interface{}{
					"action_idx":      int64(i),
					"out_port":        port,
					"queue_id":        0,
					"meter_rate_kbps": *meterKbps,
				}
			}
			if err := postJSON(ctx, client, *base+"/act", map[string]interface{}{
				"dpid":       fs.dpid,
				"dst_prefix": fs.dstPrefix,
				"candidates": actCandidates,
			}, nil); err != nil {
				atomic.AddInt64(&errCount, 1)
				continue
			}
			atomic.AddInt64(&actCount, 1)

			if *stepDelay > 0 {
				time.Sleep(*stepDelay)
			}
		}
	}

	// Distribute flows round-robin across conc workers; each worker drives
	// its assigned flows sequentially, one observe+act pair at a time, so a
	// single flow's steps are never reordered relative to each other.
	buckets := make([][]flowSpec, *conc)
	for i, fs := range flowList {
		b := i % *conc
		buckets[b] = append(buckets[b], fs)
	}

	var wg sync.WaitGroup
	for w, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		wg.Add(1)
		go func(id int, fs []flowSpec) {
			defer wg.Done()
			for _, f := range fs {
				runFlow(id, f)
			}
		}(w, bucket)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	total := atomic.LoadInt64(&observeCount) + atomic.LoadInt64(&actCount)
	fmt.Printf("LoadGen: flows=%d observe=%d act=%d errors=%d Duration=%s Throughput=%.0f req/s\n",
		len(flowList), observeCount, actCount, errCount, elapsed.Truncate(time.Millisecond), float64(total)/elapsed.Seconds())
}

// postJSON sends body as a JSON POST to url and, if out is non-nil, decodes
// the response body into it. The response body is always drained and
// closed so the underlying connection is returned to the idle pool.
func postJSON(ctx context.Context, client *http.Client, url string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}
