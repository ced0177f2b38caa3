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

// Package qtable implements the tabular Q-learning engine: one 3×N
// state-action matrix per flow-key, an epsilon-greedy policy, and a Bellman
// update that decays a single global epsilon. The whole ensure/choose/learn
// sequence for one flow-key runs under one lock so no other Act call can
// interleave within it.
package qtable

import (
	"math/rand"
	"sync"
	"time"
)

// numStates is the fixed row count of every Q-matrix: one row per
// congestion state (low, medium, high).
const numStates = 3

// ActionDescriptor is one candidate the policy may choose among. ActionIdx
// is the stable identity used to preserve learned Q-values across reshapes;
// the remaining fields describe what installing this action means on the
// data plane.
type ActionDescriptor struct {
	ActionIdx     int64
	OutPort       uint32
	QueueID       uint32
	MeterRateKbps uint64
}

type entry struct {
	actionIDs []int64
	q         [numStates][]float64
	hasLast   bool
	lastState int
	lastDesc  ActionDescriptor
}

func newEntry(actionIDs []int64) *entry {
	e := &entry{actionIDs: append([]int64(nil), actionIDs...)}
	for s := 0; s < numStates; s++ {
		e.q[s] = make([]float64, len(actionIDs))
	}
	return e
}

// reshape rebuilds the matrix for a new candidate ordering, copying over
// the column of every action identity that survives and zero-initializing
// the rest. The stored last decision is cleared, per spec: a reshape means
// the previous decision's action may no longer exist in the new set.
func (e *entry) reshape(actionIDs []int64) {
	oldIdx := make(map[int64]int, len(e.actionIDs))
	for i, id := range e.actionIDs {
		oldIdx[id] = i
	}
	var nq [numStates][]float64
	for s := 0; s < numStates; s++ {
		nq[s] = make([]float64, len(actionIDs))
		for newI, id := range actionIDs {
			if oldI, ok := oldIdx[id]; ok {
				nq[s][newI] = e.q[s][oldI]
			}
		}
	}
	e.actionIDs = append([]int64(nil), actionIDs...)
	e.q = nq
	e.hasLast = false
}

func sameActionSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Engine owns every flow-key's Q-matrix plus the single global (epsilon,
// step) pair, matching the source's agent-global state.
type Engine struct {
	mu sync.Mutex

	lr           float64
	gamma        float64
	epsilon      float64
	epsilonMin   float64
	epsilonDecay float64
	persistEvery uint64
	step         uint64

	tables map[string]*entry

	persister Persister
	rng       *rand.Rand

	// persistSignal wakes the background PersistWorker when a step crosses
	// the persistEvery boundary. It is buffered by one and written to with a
	// non-blocking send: Act must never wait on the persister being ready to
	// receive, only hand off the notification.
	persistSignal chan struct{}
}

// Config carries the tunable hyperparameters, defaulting to the values
// documented for the learning agent.
type Config struct {
	LR           float64
	Gamma        float64
	Epsilon      float64
	EpsilonMin   float64
	EpsilonDecay float64
	PersistEvery uint64
}

// New constructs an Engine. persister may be nil, in which case Snapshot is
// a no-op and Restore always reports "nothing to restore".
func New(cfg Config, persister Persister) *Engine {
	return &Engine{
		lr:           cfg.LR,
		gamma:        cfg.Gamma,
		epsilon:      cfg.Epsilon,
		epsilonMin:   cfg.EpsilonMin,
		epsilonDecay: cfg.EpsilonDecay,
		persistEvery: cfg.PersistEvery,
		tables:       make(map[string]*entry),
		persister:    persister,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		persistSignal: make(chan struct{}, 1),
	}
}

// Epsilon returns the current exploration rate.
func (e *Engine) Epsilon() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epsilon
}

// Step returns the number of Act calls made so far, including those that
// had no previous decision to learn from.
func (e *Engine) Step() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// RewardFunc computes the delayed reward for the previous decision on a
// flow-key. stable reports whether the column chosen by the current Act
// call matches prev's column (the glossary's "stable action"). It is
// invoked at most once per Act call, while the engine's lock is held, so
// implementations must not call back into the Engine.
type RewardFunc func(prev ActionDescriptor, stable bool) float64

// ActResult is what an Act call returns to the policy surface.
type ActResult struct {
	Chosen     ActionDescriptor
	State      int
	Epsilon    float64
	Step       uint64
	Reward     *float64
	QValues    []float64
	Reshaped   bool
}

// Act runs the full ensure_key -> choose -> learn(previous) -> record(last)
// -> step++ sequence for one flow-key atomically. candidates must be
// non-empty; callers are responsible for rejecting empty candidate lists
// before calling Act.
func (e *Engine) Act(key string, candidates []ActionDescriptor, state int, reward RewardFunc) ActResult {
	ids := make([]int64, len(candidates))
	byID := make(map[int64]ActionDescriptor, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ActionIdx
		byID[c.ActionIdx] = c
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.tables[key]
	reshaped := false
	if !ok {
		ent = newEntry(ids)
		e.tables[key] = ent
	} else if !sameActionSet(ent.actionIDs, ids) {
		ent.reshape(ids)
		reshaped = true
	}

	col := e.chooseLocked(ent, state)
	chosen := byID[ent.actionIDs[col]]

	// stable records whether this newly-chosen column matches the column of
	// the decision it is replacing; the previous decision's delayed reward
	// is scored with it below.
	stable := false
	if ent.hasLast {
		for i, id := range ent.actionIDs {
			if id == ent.lastDesc.ActionIdx {
				stable = i == col
				break
			}
		}
	}

	var rewardOut *float64
	if ent.hasLast && reward != nil {
		r := reward(ent.lastDesc, stable)
		e.learnLocked(ent, ent.lastState, ent.lastDesc.ActionIdx, r, state)
		rewardOut = &r
	}

	ent.hasLast = true
	ent.lastState = state
	ent.lastDesc = chosen

	e.step++
	step := e.step
	if e.persister != nil && e.persistEvery > 0 && step%e.persistEvery == 0 {
		// Never persist inline: that would hold e.mu for the duration of a
		// disk write or Redis round trip and stall every other flow-key's
		// Act call. Wake the background PersistWorker instead; if it is
		// already behind (channel full), this step's boundary is folded
		// into the one already pending.
		select {
		case e.persistSignal <- struct{}{}:
		default:
		}
	}

	qv := append([]float64(nil), ent.q[state]...)

	return ActResult{
		Chosen:   chosen,
		State:    state,
		Epsilon:  e.epsilon,
		Step:     step,
		Reward:   rewardOut,
		QValues:  qv,
		Reshaped: reshaped,
	}
}

// chooseLocked picks a column index via epsilon-greedy, argmax ties broken
// by lowest index. Caller must hold e.mu.
func (e *Engine) chooseLocked(ent *entry, state int) int {
	n := len(ent.actionIDs)
	if e.rng.Float64() < e.epsilon {
		return e.rng.Intn(n)
	}
	row := ent.q[state]
	best := 0
	for i := 1; i < n; i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// learnLocked applies the Bellman update and decays epsilon. Caller must
// hold e.mu.
func (e *Engine) learnLocked(ent *entry, s int, actionID int64, r float64, sNext int) {
	col := -1
	for i, id := range ent.actionIDs {
		if id == actionID {
			col = i
			break
		}
	}
	if col == -1 {
		// The previous action's identity no longer exists in this key's
		// action set (a reshape dropped it); nothing to update.
		return
	}
	predict := ent.q[s][col]
	var maxNext float64
	row := ent.q[sNext]
	if len(row) > 0 {
		maxNext = row[0]
		for _, v := range row[1:] {
			if v > maxNext {
				maxNext = v
			}
		}
	}
	target := r + e.gamma*maxNext
	ent.q[s][col] = predict + e.lr*(target-predict)

	if e.epsilon > e.epsilonMin {
		e.epsilon *= e.epsilonDecay
		if e.epsilon < e.epsilonMin {
			e.epsilon = e.epsilonMin
		}
	}
}
