package verification

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTestClient connects to a local Redis instance, skipping the test
// when none is available.
func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func TestRedisCache_PutGet(t *testing.T) {
	client := redisTestClient(t)
	cache := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	barcode := "test-barcode-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	defer client.Del(ctx, cacheKey(barcode))

	if _, err := cache.Get(ctx, barcode); err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss for unknown barcode, got %v", err)
	}

	stored := Result{
		Verified:  true,
		Source:    SourceLive,
		CheckedAt: time.Now().UTC().Truncate(time.Second),
		Certifications: []Certification{
			{ID: "cert-1", Name: "Certified for Sport", Issuer: "NSF International", Type: TypeNSF},
		},
	}
	if err := cache.Put(ctx, barcode, stored); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := cache.Get(ctx, barcode)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Verified || got.Source != SourceLive {
		t.Errorf("got %+v, want verified live result", got)
	}
	if len(got.Certifications) != 1 || got.Certifications[0].Type != TypeNSF {
		t.Errorf("certifications did not round-trip: %+v", got.Certifications)
	}
}

func TestRedisCache_CorruptPayloadBehavesAsMiss(t *testing.T) {
	client := redisTestClient(t)
	cache := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	barcode := "test-corrupt-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	key := cacheKey(barcode)
	defer client.Del(ctx, key)

	if err := client.Set(ctx, key, "{not json", time.Minute).Err(); err != nil {
		t.Fatalf("failed to seed corrupt payload: %v", err)
	}

	if _, err := cache.Get(ctx, barcode); err != ErrCacheMiss {
		t.Errorf("expected ErrCacheMiss for corrupt payload, got %v", err)
	}
}

func TestRedisCache_Clear(t *testing.T) {
	client := redisTestClient(t)
	cache := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	barcode := "test-clear-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := cache.Put(ctx, barcode, Result{Verified: true, Source: SourceLive}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if _, err := cache.Get(ctx, barcode); err != ErrCacheMiss {
		t.Errorf("expected ErrCacheMiss after Clear, got %v", err)
	}
}
