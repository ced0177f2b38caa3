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

// Package policyapi implements the policy service's HTTP surface:
// observe(dpid,port,qid?,load_bps,drops) and act(dpid,dst_prefix,candidates),
// wired over the telemetry store, the Q-table engine, and the reward/state
// model.
package policyapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"qosctl/internal/metrics"
	"qosctl/internal/qtable"
	"qosctl/internal/reward"
	"qosctl/internal/telemetry"
)

// Server is the policy service's HTTP handler set. It holds no per-request
// state beyond the last-decision cache read by the Admin API; every field
// is shared and safe for concurrent access.
type Server struct {
	store  *telemetry.Store
	engine *qtable.Engine
	model  reward.Model
	log    *DecisionLog

	lastMu   sync.RWMutex
	lastByFlowKey map[string]DecisionRow

	now func() time.Time
}

// NewServer wires a Server over an already-constructed store, engine, and
// reward model. log may be nil to disable decision logging (tests).
func NewServer(store *telemetry.Store, engine *qtable.Engine, model reward.Model, log *DecisionLog) *Server {
	return &Server{
		store:         store,
		engine:        engine,
		model:         model,
		log:           log,
		lastByFlowKey: make(map[string]DecisionRow),
		now:           time.Now,
	}
}

// LastDecisions returns a snapshot of the most recently computed act()
// outcome for every flow-key seen so far, keyed the same way the engine
// keys its Q-table ("dpid:dst_prefix"). Read by the Admin API's /agent
// endpoint.
func (s *Server) LastDecisions() map[string]DecisionRow {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	out := make(map[string]DecisionRow, len(s.lastByFlowKey))
	for k, v := range s.lastByFlowKey {
		out[k] = v
	}
	return out
}

// RegisterRoutes installs the three HTTP endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/observe", s.handleObserve)
	mux.HandleFunc("/act", s.handleAct)
}

// ListenAndServe starts the HTTP server on addr.
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
	fmt.Printf("Policy service listening on %s\n", addr)
	return httpServer.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type observeRequest struct {
	DPID    uint64   `json:"dpid"`
	Port    uint32   `json:"port"`
	QID     *uint32  `json:"qid"`
	LoadBPS float64  `json:"load_bps"`
	Drops   uint64   `json:"drops"`
}

type observeResponse struct {
	State      int     `json:"state"`
	MaxLoadBPS float64 `json:"max_load_bps"`
	TotalDrops uint64  `json:"total_drops"`
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	now := s.now()
	var key telemetry.Key
	if req.QID != nil {
		key = telemetry.QueueKey(req.DPID, req.Port, *req.QID)
	} else {
		key = telemetry.PortKey(req.DPID, req.Port)
	}
	s.store.Update(key, telemetry.Sample{LoadBPS: req.LoadBPS, Drops: req.Drops}, now)

	maxLoad := s.store.MaxLoadBPS(req.DPID, now)
	totalDrops := s.store.SumDrops(req.DPID, now)
	state := int(s.model.State(maxLoad, totalDrops))

	metrics.SetPortLoad(fmt.Sprintf("%d", req.DPID), fmt.Sprintf("%d", req.Port), req.LoadBPS)

	writeJSON(w, http.StatusOK, observeResponse{State: state, MaxLoadBPS: maxLoad, TotalDrops: totalDrops})
}

type actCandidate struct {
	ActionIdx     int64  `json:"action_idx"`
	OutPort       uint32 `json:"out_port"`
	QueueID       uint32 `json:"queue_id"`
	MeterRateKbps uint64 `json:"meter_rate_kbps"`
}

type actRequest struct {
	DPID       uint64         `json:"dpid"`
	DstPrefix  string         `json:"dst_prefix"`
	Candidates []actCandidate `json:"candidates"`
}

type actResponse struct {
	Action        int64    `json:"action"`
	OutPort       uint32   `json:"out_port"`
	QueueID       uint32   `json:"queue_id"`
	MeterRateKbps uint64   `json:"meter_rate_kbps"`
	State         int      `json:"state"`
	Epsilon       float64  `json:"epsilon"`
	Step          uint64   `json:"step"`
	Reward        *float64 `json:"reward,omitempty"`
	QValues       []float64 `json:"q_values,omitempty"`
}

func flowKey(dpid uint64, dstPrefix string) string {
	return fmt.Sprintf("%d:%s", dpid, dstPrefix)
}

func (s *Server) handleAct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req actRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Candidates) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "candidates required"})
		return
	}

	now := s.now()
	ports := make([]uint32, len(req.Candidates))
	candidates := make([]qtable.ActionDescriptor, len(req.Candidates))
	for i, c := range req.Candidates {
		ports[i] = c.OutPort
		candidates[i] = qtable.ActionDescriptor{
			ActionIdx:     c.ActionIdx,
			OutPort:       c.OutPort,
			QueueID:       c.QueueID,
			MeterRateKbps: c.MeterRateKbps,
		}
	}
	maxLoad, totalDrops := s.store.QueryPorts(req.DPID, ports, now)
	state := int(s.model.State(maxLoad, totalDrops))

	key := flowKey(req.DPID, req.DstPrefix)

	result := s.engine.Act(key, candidates, state, func(prev qtable.ActionDescriptor, stable bool) float64 {
		load, drops := s.store.QueryQueue(req.DPID, prev.OutPort, prev.QueueID, now)
		backup := s.model.IsBackupPort(prev.OutPort)
		return s.model.Reward(load, drops, stable, backup)
	})

	metrics.ObserveDecision(state)
	metrics.SetEpsilon(result.Epsilon)
	if result.Reward != nil {
		metrics.ObserveReward(*result.Reward)
	}

	row := DecisionRow{
		TS:         float64(now.UnixNano()) / 1e9,
		Step:       result.Step,
		DPID:       req.DPID,
		DstPrefix:  req.DstPrefix,
		State:      state,
		Action:     result.Chosen.ActionIdx,
		OutPort:    result.Chosen.OutPort,
		Epsilon:    result.Epsilon,
		MaxLoadBPS: maxLoad,
		TotalDrops: totalDrops,
		Reward:     result.Reward,
		QValues:    result.QValues,
	}

	s.lastMu.Lock()
	s.lastByFlowKey[key] = row
	s.lastMu.Unlock()

	if s.log != nil {
		s.log.Append(row)
	}

	writeJSON(w, http.StatusOK, actResponse{
		Action:        result.Chosen.ActionIdx,
		OutPort:       result.Chosen.OutPort,
		QueueID:       result.Chosen.QueueID,
		MeterRateKbps: result.Chosen.MeterRateKbps,
		State:         state,
		Epsilon:       result.Epsilon,
		Step:          result.Step,
		Reward:        result.Reward,
		QValues:       result.QValues,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
