package profile

import (
	"context"
	"errors"
	"testing"
)

func TestHashKey_Deterministic(t *testing.T) {
	a := HashKey("sk_live_abc")
	b := HashKey("sk_live_abc")
	if a != b {
		t.Error("same key must hash identically")
	}
	if a == HashKey("sk_live_xyz") {
		t.Error("different keys must not collide")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestMemoryStore_FindVerifiedBuyer(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.FindVerifiedBuyer(ctx, "acct-1"); !errors.Is(err, ErrNoProfile) {
		t.Errorf("absent subject: err = %v, want ErrNoProfile", err)
	}

	if err := store.Create(ctx, &Profile{Subject: "acct-1", PlatformID: "net", DomainID: "METER-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.FindVerifiedBuyer(ctx, "acct-1"); !errors.Is(err, ErrNoProfile) {
		t.Errorf("unverified profile: err = %v, want ErrNoProfile", err)
	}

	if err := store.Create(ctx, &Profile{Subject: "acct-2", PlatformID: "net", DomainID: "METER-2", Verified: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	p, err := store.FindVerifiedBuyer(ctx, "acct-2")
	if err != nil {
		t.Fatalf("verified profile: %v", err)
	}
	if p.DomainID != "METER-2" {
		t.Errorf("domain id = %q, want METER-2", p.DomainID)
	}
}

func TestMemoryStore_FindByAPIKeyHash(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	hash := HashKey("sk_test_1")
	if err := store.Create(ctx, &Profile{Subject: "acct-1", APIKeyHash: hash, Verified: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	p, err := store.FindByAPIKeyHash(ctx, hash)
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if p.Subject != "acct-1" {
		t.Errorf("subject = %q, want acct-1", p.Subject)
	}

	if _, err := store.FindByAPIKeyHash(ctx, HashKey("sk_other")); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown hash: err = %v, want ErrNotFound", err)
	}
}
