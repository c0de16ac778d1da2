package kvcache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	if err := m.Put(ctx, "code:user@example.com", "123456", time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	val, ok, err := m.Get(ctx, "code:user@example.com")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if val != "123456" {
		t.Errorf("Get = %q, expected %q", val, "123456")
	}
}

func TestMemoryMissingKey(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()

	_, ok, err := m.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Error("expected missing key to report ok=false")
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	if err := m.Put(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	// Expired entries are invisible even before the sweeper runs.
	_, ok, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Error("expected expired entry to be gone")
	}
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	if err := m.Put(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	time.Sleep(15 * time.Millisecond)

	_, ok, _ := m.Get(ctx, "k")
	if !ok {
		t.Error("zero-ttl entry should not expire")
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	m.Put(ctx, "k", "v", time.Minute)
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expected deleted entry to be gone")
	}
	// deleting again is fine
	if err := m.Delete(ctx, "k"); err != nil {
		t.Errorf("second Delete returned error: %v", err)
	}
}
