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

// Package policyclient is the controller's HTTP client for the policy
// service's /observe and /act endpoints. Calls carry a hard timeout; the
// caller is expected to fall back to static routing on error, since this
// client never retries.
package policyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnexpectedStatus is returned when the policy service responds with a
// status this client does not treat as success.
var ErrUnexpectedStatus = errors.New("policyclient: unexpected status")

// Client calls a Policy Service instance over HTTP/1.1 with JSON bodies.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// New returns a Client bound to baseURL (e.g. "http://127.0.0.1:5000")
// with a hard per-call timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// ObserveRequest mirrors the policy service's /observe body.
type ObserveRequest struct {
	DPID    uint64  `json:"dpid"`
	Port    uint32  `json:"port"`
	QID     *uint32 `json:"qid"`
	LoadBPS float64 `json:"load_bps"`
	Drops   uint64  `json:"drops"`
}

// ObserveResponse mirrors the policy service's /observe response.
type ObserveResponse struct {
	State      int     `json:"state"`
	MaxLoadBPS float64 `json:"max_load_bps"`
	TotalDrops uint64  `json:"total_drops"`
}

// ActCandidate mirrors one entry of the policy service's /act candidates list.
type ActCandidate struct {
	ActionIdx     int64  `json:"action_idx"`
	OutPort       uint32 `json:"out_port"`
	QueueID       uint32 `json:"queue_id"`
	MeterRateKbps uint64 `json:"meter_rate_kbps"`
}

// ActRequest mirrors the policy service's /act body.
type ActRequest struct {
	DPID       uint64         `json:"dpid"`
	DstPrefix  string         `json:"dst_prefix"`
	Candidates []ActCandidate `json:"candidates"`
}

// ActResponse mirrors the policy service's /act response.
type ActResponse struct {
	Action        int64     `json:"action"`
	OutPort       uint32    `json:"out_port"`
	QueueID       uint32    `json:"queue_id"`
	MeterRateKbps uint64    `json:"meter_rate_kbps"`
	State         int       `json:"state"`
	Epsilon       float64   `json:"epsilon"`
	Step          uint64    `json:"step"`
	Reward        *float64  `json:"reward,omitempty"`
	QValues       []float64 `json:"q_values,omitempty"`
}

// Observe calls POST /observe. The caller should treat any error (including
// a deadline exceeded from the client's own timeout) as "telemetry not
// forwarded this cycle" and continue; observe failures never block packet
// forwarding.
func (c *Client) Observe(ctx context.Context, req ObserveRequest) (ObserveResponse, error) {
	var resp ObserveResponse
	err := c.post(ctx, "/observe", req, &resp)
	return resp, err
}

// Act calls POST /act. On any error — timeout, transport failure, or a
// non-2xx status — the caller must fall back to the static routing
// decision; Act never retries.
func (c *Client) Act(ctx context.Context, req ActRequest) (ActResponse, error) {
	var resp ActResponse
	err := c.post(ctx, "/act", req, &resp)
	return resp, err
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("policyclient: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("policyclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("policyclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("policyclient: decode %s response: %w", path, err)
	}
	return nil
}
