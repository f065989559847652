package session

import (
	"strings"
	"testing"
	"time"
)

func TestNewRequestIDFormat(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1712000000000)

	id, err := newRequestID(now)
	if err != nil {
		t.Fatalf("newRequestID() error = %v", err)
	}
	if !strings.HasPrefix(id, "req-1712000000000-") {
		t.Fatalf("id = %q, want req-<millis>- prefix", id)
	}
	if suffix := strings.TrimPrefix(id, "req-1712000000000-"); len(suffix) != 8 {
		t.Fatalf("suffix = %q, want 8 hex characters", suffix)
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1712000000000)

	seen := make(map[string]bool)
	for i := 0; i < 128; i++ {
		id, err := newRequestID(now)
		if err != nil {
			t.Fatalf("newRequestID() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
