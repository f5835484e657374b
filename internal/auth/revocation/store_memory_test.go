package revocation

import (
	"context"
	"testing"
	"time"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("revoked until ttl", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		m := NewMemory()
		m.now = func() time.Time { return now }

		if err := m.Revoke(ctx, "jti-1", time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		revoked, _ := m.IsRevoked(ctx, "jti-1")
		if !revoked {
			t.Fatal("expected token to be revoked")
		}

		now = now.Add(time.Minute)
		revoked, _ = m.IsRevoked(ctx, "jti-1")
		if revoked {
			t.Error("expected revocation to expire")
		}
	})

	t.Run("unknown jti", func(t *testing.T) {
		m := NewMemory()
		revoked, err := m.IsRevoked(ctx, "missing")
		if err != nil || revoked {
			t.Errorf("expected not revoked, got %v, %v", revoked, err)
		}
	})

	t.Run("empty jti ignored", func(t *testing.T) {
		m := NewMemory()
		_ = m.Revoke(ctx, "", time.Minute)
		if len(m.revoked) != 0 {
			t.Error("expected empty jti to be ignored")
		}
	})
}

func TestNew_WithoutRedisURL(t *testing.T) {
	list, err := New(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := list.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", list)
	}
}
