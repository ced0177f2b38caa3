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

package qtable

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// redisSnapshotScript writes the document body only if the step marker has
// not been seen before, so a repeated snapshot write for the same step is
// skipped. Writes for different steps are not ordered against each other.
const redisSnapshotScript = `
local bodyKey = KEYS[1]
local markerKey = KEYS[2]
local body = ARGV[1]
local markerTTL = tonumber(ARGV[2])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('SET', bodyKey, body)
  if markerTTL and markerTTL > 0 then
    redis.call('EXPIRE', markerKey, markerTTL)
  end
  return 1
else
  return 0
end
`

// RedisPersister stores the Q-table snapshot document as a single Redis
// string, guarding each write with a SETNX marker keyed by step so that
// repeated snapshot attempts for the same step are idempotent, mirroring
// the teacher's commit-marker pattern.
type RedisPersister struct {
	client    *redis.Client
	bodyKey   string
	markerTTL time.Duration
	step      func() uint64
}

// NewRedisPersister builds a Persister backed by a Redis string at bodyKey.
// step is called once per Save to derive the idempotency marker; callers
// typically pass the Engine's own Step method.
func NewRedisPersister(client *redis.Client, bodyKey string, markerTTL time.Duration, step func() uint64) *RedisPersister {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisPersister{client: client, bodyKey: bodyKey, markerTTL: markerTTL, step: step}
}

func (r *RedisPersister) markerKey() string {
	return fmt.Sprintf("%s:marker:%d", r.bodyKey, r.step())
}

// Save writes doc under bodyKey, guarded by the per-step marker.
func (r *RedisPersister) Save(doc []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	keys := []string{r.bodyKey, r.markerKey()}
	args := []interface{}{string(doc), int(r.markerTTL.Seconds())}
	_, err := r.client.Eval(ctx, redisSnapshotScript, keys, args...).Result()
	if err != nil {
		return fmt.Errorf("qtable: redis snapshot: %w", err)
	}
	return nil
}

// Load reads the document at bodyKey. A missing key is reported as "not
// found", not an error.
func (r *RedisPersister) Load() ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := r.client.Get(ctx, r.bodyKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("qtable: redis load: %w", err)
	}
	return b, true, nil
}
