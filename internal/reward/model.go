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

// Package reward maps a switch's aggregate load/drop observation onto a
// discrete state and a scalar reward, against a single congestion
// threshold.
package reward

// State is one of three discrete congestion buckets a switch can be in.
type State int

const (
	// Low means load is comfortably under the threshold and nothing is
	// dropping.
	Low State = 0
	// Medium means load is approaching the threshold but nothing is
	// dropping yet.
	Medium State = 1
	// High means either drops were observed or load has reached the
	// threshold.
	High State = 2
)

// Model turns (load, drops) observations into states and rewards relative
// to a fixed congestion threshold.
type Model struct {
	ThresholdBPS float64
	// BackupPorts, when set, names egress ports that carry a fixed reward
	// penalty whenever chosen, regardless of the resulting state.
	BackupPorts map[uint32]bool
}

// New constructs a Model for the given congestion threshold and optional
// backup-port penalty set.
func New(thresholdBPS float64, backupPorts map[uint32]bool) Model {
	return Model{ThresholdBPS: thresholdBPS, BackupPorts: backupPorts}
}

// State classifies an observation: any drops force High; otherwise load is
// compared against half and all of the threshold.
func (m Model) State(loadBPS float64, drops uint64) State {
	if drops > 0 {
		return High
	}
	if loadBPS < 0.5*m.ThresholdBPS {
		return Low
	}
	if loadBPS < m.ThresholdBPS {
		return Medium
	}
	return High
}

// Reward scores an observation against the base curve (drops penalized
// heavily, comfortable load rewarded, near-threshold load rewarded less,
// at-or-above-threshold load lightly penalized), then applies two shaping
// terms: +5 when stable is true (the chosen action column matches the
// last one used for this flow-key) and −3 when backup is true (the chosen
// egress is in the configured backup-port set). The ordering of the base
// curve — drops dominate, low-load beats med-load beats high-load — is
// part of the contract and must not be altered by the shaping terms.
func (m Model) Reward(loadBPS float64, drops uint64, stable, backup bool) float64 {
	var r float64
	switch {
	case drops > 0:
		r = -50.0
	case loadBPS < 0.5*m.ThresholdBPS:
		r = 20.0
	case loadBPS < m.ThresholdBPS:
		r = 10.0
	default:
		r = -5.0
	}
	if stable {
		r += 5.0
	}
	if backup {
		r -= 3.0
	}
	return r
}

// IsBackupPort reports whether port is configured as a backup egress. The
// penalty is unconditional: it applies whenever a backup port was the
// chosen egress, independent of whether any non-backup candidate was
// available (see Open Question decisions).
func (m Model) IsBackupPort(port uint32) bool {
	return m.BackupPorts[port]
}
