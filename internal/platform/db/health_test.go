package db

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPoolStats_JSONTags(t *testing.T) {
	stats := PoolStats{
		TotalConns:      4,
		IdleConns:       3,
		AcquiredConns:   1,
		MaxConns:        20,
		AcquireCount:    50,
		AcquireDuration: "250ms",
		Healthy:         true,
	}
	b, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"total_conns":4`, `"idle_conns":3`, `"acquired_conns":1`, `"max_conns":20`, `"acquire_duration":"250ms"`, `"healthy":true`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("expected %s in %s", key, b)
		}
	}
}
