package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestAllow_LimitPerWindow(t *testing.T) {
	l := NewLimiter(10, time.Minute)
	defer l.Close()

	for i := 0; i < 10; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d must be allowed", i+1)
		}
	}

	if l.Allow("1.2.3.4") {
		t.Fatalf("request 11 must be rejected")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	defer l.Close()

	if !l.Allow("a") {
		t.Fatalf("first request for key a must be allowed")
	}
	if l.Allow("a") {
		t.Fatalf("second request for key a must be rejected")
	}
	if !l.Allow("b") {
		t.Fatalf("key b must have its own window")
	}
}

func TestAllow_WindowReset(t *testing.T) {
	l := NewLimiter(2, 50*time.Millisecond)
	defer l.Close()

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("first two requests must be allowed")
	}
	if l.Allow("a") {
		t.Fatalf("third request within window must be rejected")
	}

	time.Sleep(60 * time.Millisecond)

	if !l.Allow("a") {
		t.Fatalf("request after window reset must be allowed")
	}
}

func TestAllow_ConcurrentIncrements(t *testing.T) {
	l := NewLimiter(50, time.Minute)
	defer l.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("allowed = %d, want exactly 50", allowed)
	}
}
