//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// TestE2E_RedisPersisterSnapshot drives policyd with QL_PERSIST_PATH set to
// a redis:// URL and verifies a snapshot document lands in Redis under the
// engine's fixed key. Requires a Redis instance at 127.0.0.1:6379; skipped
// otherwise, the same way the teacher's Redis-backed idempotent-commit test
// skips when no broker is reachable.
func TestE2E_RedisPersisterSnapshot(t *testing.T) {
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: redis not reachable on 127.0.0.1:6379: %v", err)
	}
	const snapshotKey = "qosctl:qtable:snapshot"
	_ = rc.Del(context.Background(), snapshotKey).Err()

	tmpDir := t.TempDir()
	rp := buildAndStartPolicydWithPaths(t, "redis://127.0.0.1:6379/0", filepath.Join(tmpDir, "decisions.csv"))

	client := &http.Client{Timeout: 2 * time.Second}
	candidates := []map[string]interface{}{
		{"action_idx": 0, "out_port": 1, "queue_id": 0, "meter_rate_kbps": 0},
		{"action_idx": 1, "out_port": 2, "queue_id": 0, "meter_rate_kbps": 0},
	}
	// QL_PERSIST_EVERY_STEPS=5 in the harness's env; five Act calls on one
	// flow-key crosses that boundary and forces a snapshot write.
	for i := 0; i < 5; i++ {
		postJSONE2E(t, client, rp.baseURL+"/act", map[string]interface{}{
			"dpid": 256, "dst_prefix": "10.0.9", "candidates": candidates,
		}, nil)
	}

	deadline := time.Now().Add(2 * time.Second)
	var exists int64
	for time.Now().Before(deadline) {
		n, err := rc.Exists(context.Background(), snapshotKey).Result()
		if err == nil && n == 1 {
			exists = n
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if exists != 1 {
		t.Fatalf("expected snapshot key %q to exist in redis after crossing the persist boundary", snapshotKey)
	}
}
