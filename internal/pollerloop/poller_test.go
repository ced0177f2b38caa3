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

package pollerloop

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qosctl/internal/ofp"
	"qosctl/internal/policyclient"
	"qosctl/internal/telemetry"
)

type noSwitches struct{}

func (noSwitches) DPIDs() []uint64          { return nil }
func (noSwitches) Session(uint64) *ofp.Session { return nil }

func TestHandlePortStatsReplySkipsFirstSampleButUpdatesOnSecond(t *testing.T) {
	store := telemetry.New(4, time.Minute)
	p := New(noSwitches{}, store, nil, 0, time.Second)

	p.HandlePortStatsReply(256, ofp.PortStatsReply{Entries: []ofp.PortStatsEntry{
		{PortNo: 1, RxBytes: 1000, TxBytes: 2000},
	}})

	now := time.Now()
	if _, ok := store.Get(telemetry.PortKey(256, 1), now); ok {
		t.Fatal("expected no sample to be recorded before a second reply establishes a delta")
	}

	time.Sleep(10 * time.Millisecond)
	p.HandlePortStatsReply(256, ofp.PortStatsReply{Entries: []ofp.PortStatsEntry{
		{PortNo: 1, RxBytes: 1000, TxBytes: 3000},
	}})

	sample, ok := store.Get(telemetry.PortKey(256, 1), time.Now())
	if !ok {
		t.Fatal("expected a sample after the second reply")
	}
	if sample.LoadBPS <= 0 {
		t.Fatalf("expected positive load from the tx byte delta, got %f", sample.LoadBPS)
	}
}

func TestHandlePortStatsReplyTreatsCounterResetAsZeroDelta(t *testing.T) {
	store := telemetry.New(4, time.Minute)
	p := New(noSwitches{}, store, nil, 0, time.Second)

	p.HandlePortStatsReply(256, ofp.PortStatsReply{Entries: []ofp.PortStatsEntry{
		{PortNo: 1, TxBytes: 5000},
	}})
	time.Sleep(10 * time.Millisecond)
	p.HandlePortStatsReply(256, ofp.PortStatsReply{Entries: []ofp.PortStatsEntry{
		{PortNo: 1, TxBytes: 100},
	}})

	sample, ok := store.Get(telemetry.PortKey(256, 1), time.Now())
	if !ok {
		t.Fatal("expected a sample after the second reply")
	}
	if sample.LoadBPS != 0 {
		t.Fatalf("expected a counter reset to produce zero load, got %f", sample.LoadBPS)
	}
}

func TestHandleQueueStatsReplyForwardsObserveWithQID(t *testing.T) {
	got := make(chan policyclient.ObserveRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req policyclient.ObserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			select {
			case got <- req:
			default:
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := telemetry.New(4, time.Minute)
	client := policyclient.New(srv.URL, 200*time.Millisecond)
	p := New(noSwitches{}, store, client, 0, time.Second)

	p.HandleQueueStatsReply(256, ofp.QueueStatsReply{Entries: []ofp.QueueStatsEntry{
		{PortNo: 1, QueueID: 1, TxBytes: 1000},
	}})
	time.Sleep(10 * time.Millisecond)
	p.HandleQueueStatsReply(256, ofp.QueueStatsReply{Entries: []ofp.QueueStatsEntry{
		{PortNo: 1, QueueID: 1, TxBytes: 2000},
	}})

	sample, ok := store.Get(telemetry.QueueKey(256, 1, 1), time.Now())
	if !ok {
		t.Fatal("expected a queue sample after the second reply")
	}
	if sample.LoadBPS <= 0 {
		t.Fatalf("expected positive queue load, got %f", sample.LoadBPS)
	}

	select {
	case req := <-got:
		if req.QID == nil || *req.QID != 1 {
			t.Fatalf("expected forwarded observe with qid 1, got %v", req.QID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an observe call forwarded to the policy service")
	}
}

func TestStopIsIdempotentAndHaltsTheTicker(t *testing.T) {
	store := telemetry.New(4, time.Minute)
	p := New(noSwitches{}, store, nil, 0, 5*time.Millisecond)
	p.Start()
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	p.Stop()
}
