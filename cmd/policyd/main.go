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

// Package main is the Policy Service binary: the Telemetry Store, the
// Q-table Engine, the Reward/State Model, and the observe()/act() HTTP
// surface, plus the read-only Admin API. See cmd/controller for the
// companion OpenFlow controller process.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"qosctl/internal/adminapi"
	"qosctl/internal/config"
	"qosctl/internal/metrics"
	"qosctl/internal/policyapi"
	"qosctl/internal/qtable"
	"qosctl/internal/reward"
	"qosctl/internal/telemetry"
)

func main() {
	cfg, err := config.LoadPolicyConfig()
	if err != nil {
		log.Fatalf("policyd: %v", err)
	}

	metrics.Enable()

	ttl := time.Duration(cfg.MetricsTTLSeconds * float64(time.Second))
	store := telemetry.New(16, ttl)

	model := reward.New(cfg.CongestionThresholdBPS, cfg.BackupPorts)

	// engine is declared before the persister because the Redis persister's
	// idempotency marker is keyed by the engine's own step counter; the
	// step closure below is only invoked at Save time, by when engine has
	// already been assigned.
	var engine *qtable.Engine
	persister, err := newPersister(cfg, func() uint64 { return engine.Step() })
	if err != nil {
		log.Fatalf("policyd: %v", err)
	}

	engine = qtable.New(qtable.Config{
		LR:           cfg.LR,
		Gamma:        cfg.Gamma,
		Epsilon:      cfg.Epsilon,
		EpsilonMin:   cfg.EpsilonMin,
		EpsilonDecay: cfg.EpsilonDecay,
		PersistEvery: cfg.PersistEverySteps,
	}, persister)
	if err := engine.Restore(); err != nil {
		log.Printf("policyd: snapshot restore: %v", err)
	}

	persistWorker := qtable.NewPersistWorker(engine, time.Duration(cfg.PersistIntervalSeconds*float64(time.Second)))
	persistWorker.Start()
	defer persistWorker.Stop()

	decisionLog, err := policyapi.NewDecisionLog(cfg.LogPath, cfg.LogFlushEvery, time.Duration(cfg.LogFlushInterval*float64(time.Second)))
	if err != nil {
		log.Fatalf("policyd: opening decision log %s: %v", cfg.LogPath, err)
	}
	defer decisionLog.Close()

	policySrv := policyapi.NewServer(store, engine, model, decisionLog)
	adminSrv := adminapi.New(store, policySrv, classifyRoutingTable())

	mux := http.NewServeMux()
	policySrv.RegisterRoutes(mux)
	adminSrv.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Policy service listening on %s\n", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("policyd: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("policyd: shutting down")
	// persistWorker's deferred Stop() performs the final snapshot once this
	// function returns, after the HTTP server has stopped accepting new
	// /act calls.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("policyd: shutdown: %v", err)
	}
}

// newPersister builds the Q-table snapshot persister named by
// cfg.PersistPath: a "redis://" URL selects the Redis-backed persister
// (idempotent-marker writes, for operators centralizing state across
// multiple policyd instances in a test topology); anything else is a
// local file path.
func newPersister(cfg config.PolicyConfig, step func() uint64) (qtable.Persister, error) {
	if cfg.PersistPath == "" {
		return nil, nil
	}
	if !strings.HasPrefix(cfg.PersistPath, "redis://") {
		return qtable.NewFilePersister(cfg.PersistPath), nil
	}
	opt, err := redis.ParseURL(cfg.PersistPath)
	if err != nil {
		return nil, fmt.Errorf("policyd: parse QL_PERSIST_PATH as redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	return qtable.NewRedisPersister(client, "qosctl:qtable:snapshot", 24*time.Hour, step), nil
}

// classifyRoutingTable mirrors the controller's default routing table for
// the Admin API's /routing endpoint. The two binaries are deployed
// together against the same topology; a future iteration could share this
// config file instead of duplicating it in both processes.
func classifyRoutingTable() map[uint64]map[string]uint32 {
	return map[uint64]map[string]uint32{
		256: {
			"10.0.100": 1,
			"10.0.200": 1,
			"10.0.1":   2,
			"10.0.2":   3,
			"10.0.3":   4,
			"10.0.4":   5,
		},
		512: {"10.0.3": 2, "default": 1},
		768: {
			"10.0.4":   2,
			"10.0.100": 3,
			"10.0.200": 3,
			"default":  1,
		},
	}
}
