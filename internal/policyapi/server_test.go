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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qosctl/internal/qtable"
	"qosctl/internal/reward"
	"qosctl/internal/telemetry"
)

func newTestServer() *Server {
	store := telemetry.New(4, 30*time.Second)
	engine := qtable.New(qtable.Config{LR: 0.1, Gamma: 0.9, Epsilon: 0.5, EpsilonMin: 0.05, EpsilonDecay: 0.99}, nil)
	model := reward.New(200000, nil)
	return NewServer(store, engine, model, nil)
}

func doJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleObserveSuccess(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.handleObserve, `{"dpid":256,"port":1,"load_bps":900000,"drops":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp observeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State == 0 {
		t.Fatalf("expected a congested state for a drop-bearing sample, got %d", resp.State)
	}
	if resp.MaxLoadBPS != 900000 {
		t.Fatalf("expected max_load_bps=900000, got %v", resp.MaxLoadBPS)
	}
}

func TestHandleObserveMalformedBodyReturns400(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.handleObserve, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("expected a non-empty error message, got %v", body)
	}
}

func TestHandleObserveWrongMethodReturns405(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/observe", nil)
	rec := httptest.NewRecorder()
	s.handleObserve(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestHandleActSuccessRecordsDecision(t *testing.T) {
	s := newTestServer()
	body := `{"dpid":256,"dst_prefix":"10.0.1","candidates":[
		{"action_idx":0,"out_port":1,"queue_id":0,"meter_rate_kbps":0},
		{"action_idx":1,"out_port":2,"queue_id":0,"meter_rate_kbps":0}
	]}`
	rec := doJSON(t, s.handleAct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp actResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Step != 1 {
		t.Fatalf("expected step 1 on the first decision, got %d", resp.Step)
	}

	decisions := s.LastDecisions()
	row, ok := decisions[flowKey(256, "10.0.1")]
	if !ok {
		t.Fatalf("expected a recorded decision for flow key %s, got %v", flowKey(256, "10.0.1"), decisions)
	}
	if row.Action != resp.Action {
		t.Fatalf("recorded decision action %d does not match response action %d", row.Action, resp.Action)
	}
}

func TestHandleActEmptyCandidatesReturns400(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.handleAct, `{"dpid":256,"dst_prefix":"10.0.1","candidates":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestHandleActMalformedBodyReturns400(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.handleAct, `{"dpid": "not-a-number"`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestHandleActWrongMethodReturns405(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/act", nil)
	rec := httptest.NewRecorder()
	s.handleAct(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

// TestServerEndToEndOverHTTPServer exercises the handlers wired together
// through RegisterRoutes and a real listening httptest.Server, rather than
// calling the handler funcs directly, so the mux routing itself is covered
// too.
func TestServerEndToEndOverHTTPServer(t *testing.T) {
	s := newTestServer()
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/observe", "application/json",
		bytes.NewReader([]byte(`{"dpid":256,"port":1,"load_bps":100,"drops":0}`)))
	if err != nil {
		t.Fatalf("post /observe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}

	healthResp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get /health: %v", err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 from /health, got %d", healthResp.StatusCode)
	}
}
