package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/ovenfresh/storefront-cart/pkg/config"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "cart:active", "[]"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "cart:active")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "[]" {
		t.Fatalf("expected empty array marker, got %q", got)
	}

	if err := store.Del(ctx, "cart:active"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := store.Get(ctx, "cart:active"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisOptionsFromConfigRequiresTarget(t *testing.T) {
	t.Parallel()

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error for empty redis config")
	}

	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2, PoolSize: 5})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 5 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestNamespacedKeys(t *testing.T) {
	t.Parallel()

	if got := namespaced("cart:active"); got != "cartengine:cart:active" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := namespaced("  "); got != "cartengine" {
		t.Fatalf("blank key should collapse to namespace, got %q", got)
	}
}
