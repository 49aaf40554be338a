package auth

import (
	"sync"
	"testing"
	"time"
)

func TestKeyCache_FreshHit(t *testing.T) {
	cache := NewKeyCache(time.Minute)
	cache.Set("digest")
	if !cache.Get("digest") {
		t.Fatal("expected cache hit")
	}
}

func TestKeyCache_Miss(t *testing.T) {
	cache := NewKeyCache(time.Minute)
	if cache.Get("nonexistent") {
		t.Error("expected cache miss")
	}
}

func TestKeyCache_Expired(t *testing.T) {
	cache := NewKeyCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }
	cache.Set("digest")

	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	if cache.Get("digest") {
		t.Fatal("expired entry should miss")
	}
	if _, ok := cache.store.Load("digest"); ok {
		t.Error("expired entry should be dropped")
	}
}

func TestKeyCache_Delete(t *testing.T) {
	cache := NewKeyCache(time.Minute)
	cache.Set("digest")
	cache.Delete("digest")
	if cache.Get("digest") {
		t.Error("expected miss after delete")
	}
}

func TestKeyCache_ConcurrentAccess(t *testing.T) {
	cache := NewKeyCache(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cache.Set("digest")
		}()
		go func() {
			defer wg.Done()
			cache.Get("digest")
		}()
	}
	wg.Wait()
}
