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

// Package config loads the environment-variable configuration surface
// described by the system's external interfaces: rate/threshold knobs for
// the Policy Service, and transport/classification knobs for the
// controller. Every value has a documented default; only the listen
// addresses and the controller's policy-service URL must be non-empty.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PolicyConfig configures the Policy Service (cmd/policyd).
type PolicyConfig struct {
	CongestionThresholdBPS float64
	LR                     float64
	Gamma                  float64
	Epsilon                float64
	EpsilonMin             float64
	EpsilonDecay           float64
	MetricsTTLSeconds      float64
	BackupPorts            map[uint32]bool
	PersistPath            string
	PersistEverySteps      uint64
	PersistIntervalSeconds float64
	LogPath                string
	LogFlushEvery          int
	LogFlushInterval       float64
	HTTPAddr               string
	AdminAddr              string
}

// ControllerConfig configures the OpenFlow controller (cmd/controller).
type ControllerConfig struct {
	ListenAddr             string
	AgentURL               string
	AgentTimeout           float64 // seconds
	FlowIdleTimeout        uint16
	FlowHardTimeout        uint16
	CritUDPPort            uint16
	TelUDPPort             uint16
	BulkTCPPort            uint16
	MonitorInterval        float64 // seconds
	CongestionThresholdBPS float64
}

// LoadPolicyConfig reads QL_* and CONGESTION_THRESHOLD_BPS from the
// environment, applying spec-documented defaults for anything unset.
func LoadPolicyConfig() (PolicyConfig, error) {
	cfg := PolicyConfig{
		CongestionThresholdBPS: getFloat("CONGESTION_THRESHOLD_BPS", 200000),
		LR:                     getFloat("QL_LR", 0.1),
		Gamma:                  getFloat("QL_GAMMA", 0.9),
		Epsilon:                getFloat("QL_EPSILON", 1.0),
		EpsilonMin:             getFloat("QL_EPSILON_MIN", 0.05),
		EpsilonDecay:           getFloat("QL_EPSILON_DECAY", 0.995),
		MetricsTTLSeconds:      getFloat("QL_METRICS_TTL_S", 30),
		BackupPorts:            parsePortSet(os.Getenv("QL_BACKUP_PORTS")),
		PersistPath:            getString("QL_PERSIST_PATH", "./qtable_snapshot.json"),
		PersistEverySteps:      getUint64("QL_PERSIST_EVERY_STEPS", 10),
		PersistIntervalSeconds: getFloat("QL_PERSIST_INTERVAL_S", 30),
		LogPath:                getString("QL_LOG_PATH", "./qlearning_decisions.csv"),
		LogFlushEvery:          int(getUint64("QL_LOG_FLUSH_EVERY", 20)),
		LogFlushInterval:       getFloat("QL_LOG_FLUSH_INTERVAL_S", 5),
		HTTPAddr:               getString("QL_HTTP_ADDR", ":5000"),
		AdminAddr:              getString("QL_ADMIN_ADDR", ":5001"),
	}
	if cfg.HTTPAddr == "" {
		return cfg, fmt.Errorf("config: QL_HTTP_ADDR must not be empty")
	}
	return cfg, nil
}

// LoadControllerConfig reads the controller's transport and classification
// knobs from the environment.
func LoadControllerConfig() (ControllerConfig, error) {
	cfg := ControllerConfig{
		ListenAddr:      getString("OFP_LISTEN_ADDR", ":6653"),
		AgentURL:        getString("QLEARNING_AGENT_URL", "http://127.0.0.1:5000"),
		AgentTimeout:    getFloat("QLEARNING_AGENT_TIMEOUT_S", 0.3),
		FlowIdleTimeout: uint16(getUint64("FLOW_IDLE_TIMEOUT", 60)),
		FlowHardTimeout: uint16(getUint64("FLOW_HARD_TIMEOUT", 0)),
		CritUDPPort:     uint16(getUint64("CRIT_UDP", 5001)),
		TelUDPPort:      uint16(getUint64("TEL_UDP", 5002)),
		BulkTCPPort:     uint16(getUint64("BULK_TCP", 5003)),
		MonitorInterval: getFloat("MONITOR_INTERVAL", 2.0),
		CongestionThresholdBPS: getFloat("CONGESTION_THRESHOLD_BPS", 200000),
	}
	if cfg.ListenAddr == "" {
		return cfg, fmt.Errorf("config: OFP_LISTEN_ADDR must not be empty")
	}
	if cfg.AgentURL == "" {
		return cfg, fmt.Errorf("config: QLEARNING_AGENT_URL must not be empty")
	}
	return cfg, nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getUint64(key string, def uint64) uint64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// parsePortSet parses a CSV of port numbers, e.g. "5,6,7", into a set.
// Malformed entries are skipped rather than failing startup, since the
// backup-port set only affects a reward shaping penalty.
func parsePortSet(csv string) map[uint32]bool {
	out := make(map[uint32]bool)
	if csv == "" {
		return out
	}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			continue
		}
		out[uint32(n)] = true
	}
	return out
}
