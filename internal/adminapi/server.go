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

// Package adminapi is the read-only operator-visibility surface: the latest
// telemetry snapshot, the most recent policy decision per flow-key, and the
// static routing table, plus a Prometheus exposition endpoint. It mutates
// nothing; every handler is a GET over state owned elsewhere.
package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qosctl/internal/policyapi"
	"qosctl/internal/telemetry"
)

// Server exposes /snapshot, /agent, /routing, and /metrics.
type Server struct {
	store   *telemetry.Store
	policy  *policyapi.Server
	routing map[uint64]map[string]uint32

	now func() time.Time
}

// New wires a Server over the shared telemetry store and policy service,
// plus the static routing table it should report at /routing.
func New(store *telemetry.Store, policy *policyapi.Server, routing map[uint64]map[string]uint32) *Server {
	return &Server{store: store, policy: policy, routing: routing, now: time.Now}
}

// RegisterRoutes installs the Admin API's handlers on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/agent", s.handleAgent)
	mux.HandleFunc("/routing", s.handleRouting)
	mux.Handle("/metrics", promhttp.Handler())
}

// ListenAndServe starts the Admin API on addr. In cmd/policyd this mux is
// merged with the Policy Service's own routes so both sets of endpoints
// share one HTTP server pool, per the concurrency model's server layout.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	fmt.Printf("Admin API listening on %s\n", addr)
	return httpServer.ListenAndServe()
}

type snapshotResponse struct {
	TS         float64            `json:"ts"`
	PortLoad   map[string]float64 `json:"port_load"`
	QueueLoad  map[string]float64 `json:"queue_load"`
	QueueDrops map[string]uint64  `json:"queue_drops"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	resp := snapshotResponse{
		TS:         float64(now.UnixNano()) / 1e9,
		PortLoad:   make(map[string]float64),
		QueueLoad:  make(map[string]float64),
		QueueDrops: make(map[string]uint64),
	}
	s.store.ForEach(now, func(k telemetry.Key, sample telemetry.Sample) {
		if k.HasQueue() {
			qk := fmt.Sprintf("%d:%d:%d", k.DPID, k.Port, k.QID)
			resp.QueueLoad[qk] = sample.LoadBPS
			resp.QueueDrops[qk] = sample.Drops
			return
		}
		resp.PortLoad[fmt.Sprintf("%d:%d", k.DPID, k.Port)] = sample.LoadBPS
	})
	writeJSON(w, http.StatusOK, resp)
}

type agentDecision struct {
	DPID       uint64    `json:"dpid"`
	DstPrefix  string    `json:"dst_prefix"`
	State      int       `json:"state"`
	Action     int64     `json:"action"`
	OutPort    uint32    `json:"out_port"`
	Epsilon    float64   `json:"epsilon"`
	Step       uint64    `json:"step"`
	Reward     *float64  `json:"reward,omitempty"`
	QValues    []float64 `json:"q_values,omitempty"`
	TS         float64   `json:"ts"`
}

func (s *Server) handleAgent(w http.ResponseWriter, _ *http.Request) {
	decisions := s.policy.LastDecisions()
	out := make(map[string]agentDecision, len(decisions))
	for flowKey, row := range decisions {
		out[flowKey] = agentDecision{
			DPID:      row.DPID,
			DstPrefix: row.DstPrefix,
			State:     row.State,
			Action:    row.Action,
			OutPort:   row.OutPort,
			Epsilon:   row.Epsilon,
			Step:      row.Step,
			Reward:    row.Reward,
			QValues:   row.QValues,
			TS:        row.TS,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRouting(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]map[string]uint32, len(s.routing))
	for dpid, table := range s.routing {
		out[fmt.Sprintf("%d", dpid)] = table
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
