package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
)

func setupTestRedis(t *testing.T) (*redisx.Adapter, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	a, err := redisx.New(redisx.Options{URL: "redis://" + mr.Addr(), Prefix: "rq"})
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, a.Raw(), mr
}

func TestAcquireLock_Success(t *testing.T) {
	a, _, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	ttl := 10 * time.Second

	lock, err := AcquireLock(ctx, a, key, ttl)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if lock == nil {
		t.Fatal("Expected non-nil lock, got nil")
	}
	if lock.Key() != a.Key(key) {
		t.Errorf("Lock key mismatch: got %s, want %s", lock.Key(), a.Key(key))
	}
	if lock.Token() == "" {
		t.Error("Expected non-empty lock token")
	}
	if lock.TTL() != ttl {
		t.Errorf("Lock TTL mismatch: got %v, want %v", lock.TTL(), ttl)
	}
}

func TestAcquireLock_AlreadyLocked(t *testing.T) {
	a, _, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	ttl := 10 * time.Second

	lock1, err := AcquireLock(ctx, a, key, ttl)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	if lock1 == nil {
		t.Fatal("Expected non-nil first lock")
	}

	lock2, err := AcquireLock(ctx, a, key, ttl)
	if err != nil {
		t.Fatalf("Unexpected error on second acquire: %v", err)
	}
	if lock2 != nil {
		t.Error("Expected nil for already-locked key, got lock")
	}
}

func TestReleaseLock_Success(t *testing.T) {
	a, _, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	ttl := 10 * time.Second

	lock, err := AcquireLock(ctx, a, key, ttl)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}

	lock2, err := AcquireLock(ctx, a, key, ttl)
	if err != nil {
		t.Fatalf("Failed to re-acquire lock: %v", err)
	}
	if lock2 == nil {
		t.Error("Expected to acquire lock after release, got nil")
	}
}

func TestReleaseLock_NotOwned(t *testing.T) {
	a, client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	ttl := 10 * time.Second
	fullKey := a.Key(key)

	client.Set(ctx, fullKey, "different-token", ttl)

	lock := &DistributedLock{redis: a, key: fullKey, token: "my-token", ttl: ttl}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	exists, err := client.Exists(ctx, fullKey).Result()
	if err != nil {
		t.Fatalf("Failed to check key existence: %v", err)
	}
	if exists != 1 {
		t.Error("Expected key to still exist after failed release")
	}
}

func TestExtendLock_Success(t *testing.T) {
	a, client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	initialTTL := 5 * time.Second
	extendedTTL := 10 * time.Second

	lock, err := AcquireLock(ctx, a, key, initialTTL)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	if err := lock.Extend(ctx, extendedTTL); err != nil {
		t.Fatalf("Failed to extend lock: %v", err)
	}
	if lock.TTL() != extendedTTL {
		t.Errorf("Lock TTL not updated: got %v, want %v", lock.TTL(), extendedTTL)
	}

	ttl, err := client.TTL(ctx, a.Key(key)).Result()
	if err != nil {
		t.Fatalf("Failed to get TTL: %v", err)
	}
	if ttl < 9*time.Second || ttl > 10*time.Second {
		t.Errorf("Redis TTL not extended correctly: got %v, want ~%v", ttl, extendedTTL)
	}
}

func TestExtendLock_NotOwned(t *testing.T) {
	a, client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	ttl := 10 * time.Second
	fullKey := a.Key(key)

	client.Set(ctx, fullKey, "different-token", ttl)

	lock := &DistributedLock{redis: a, key: fullKey, token: "my-token", ttl: ttl}

	if err := lock.Extend(ctx, 20*time.Second); err == nil {
		t.Error("Expected error when extending lock not owned, got nil")
	}
}

func TestAcquireLock_TTLExpiration(t *testing.T) {
	a, _, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	ttl := 1 * time.Second

	lock, err := AcquireLock(ctx, a, key, ttl)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if lock == nil {
		t.Fatal("Expected non-nil lock")
	}

	mr.FastForward(2 * time.Second)

	lock2, err := AcquireLock(ctx, a, key, ttl)
	if err != nil {
		t.Fatalf("Failed to re-acquire lock after expiry: %v", err)
	}
	if lock2 == nil {
		t.Error("Expected to acquire lock after TTL expiry, got nil")
	}
}

func TestAcquireLock_ConcurrentAttempts(t *testing.T) {
	a, _, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	ttl := 10 * time.Second

	results := make(chan *DistributedLock, 10)
	errors := make(chan error, 10)

	for i := 0; i < 10; i++ {
		go func() {
			lock, err := AcquireLock(ctx, a, key, ttl)
			if err != nil {
				errors <- err
				return
			}
			results <- lock
		}()
	}

	var locks []*DistributedLock
	var errs []error

	timeout := time.After(2 * time.Second)
	for i := 0; i < 10; i++ {
		select {
		case lock := <-results:
			locks = append(locks, lock)
		case err := <-errors:
			errs = append(errs, err)
		case <-timeout:
			t.Fatal("Timeout waiting for lock attempts")
		}
	}

	if len(errs) > 0 {
		t.Errorf("Unexpected errors: %v", errs)
	}

	nonNilCount := 0
	for _, lock := range locks {
		if lock != nil {
			nonNilCount++
		}
	}
	if nonNilCount != 1 {
		t.Errorf("Expected exactly 1 successful lock, got %d", nonNilCount)
	}

	nilCount := len(locks) - nonNilCount
	if nilCount != 9 {
		t.Errorf("Expected 9 failed lock attempts, got %d", nilCount)
	}
}

func TestLock_MultipleRelease(t *testing.T) {
	a, _, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	key := "test:lock"
	ttl := 10 * time.Second

	lock, err := AcquireLock(ctx, a, key, ttl)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Error("Second release should not error")
	}
}
