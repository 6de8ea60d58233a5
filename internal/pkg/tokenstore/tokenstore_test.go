package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})
	return New(rdb)
}

func TestStore_SaveAndExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, 1, "jti-a", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	ok, err := store.Exists(ctx, 1, "jti-a")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatalf("expected token to exist")
	}

	ok, err = store.Exists(ctx, 1, "jti-unknown")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("expected unknown jti to be invalid")
	}

	ok, err = store.Exists(ctx, 2, "jti-a")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("expected jti to be scoped per user")
	}
}

func TestStore_RevokeAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, 7, "jti-1", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, 7, "jti-2", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, 8, "jti-other", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.RevokeAll(ctx, 7); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	for _, jti := range []string{"jti-1", "jti-2"} {
		ok, err := store.Exists(ctx, 7, jti)
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if ok {
			t.Fatalf("expected %s to be revoked", jti)
		}
	}

	ok, err := store.Exists(ctx, 8, "jti-other")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatalf("expected other user's token to survive")
	}
}

func TestStore_RevokeAllIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// 没有任何令牌时注销也不是错误
	if err := store.RevokeAll(ctx, 42); err != nil {
		t.Fatalf("revoke with no tokens: %v", err)
	}
	if err := store.RevokeAll(ctx, 42); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
}
