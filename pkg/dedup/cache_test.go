package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache() (*Cache, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	return New(WithClock(clk.Now)), clk
}

func TestIsDuplicate(t *testing.T) {
	c, clk := newTestCache()
	const w = 3 * time.Second

	if c.IsDuplicate("a", w) {
		t.Fatal("first call reported duplicate")
	}
	clk.Advance(w - time.Millisecond)
	if !c.IsDuplicate("a", w) {
		t.Fatal("second call within window not reported duplicate")
	}
	if c.IsDuplicate("b", w) {
		t.Fatal("different fingerprint reported duplicate")
	}
}

func TestIsDuplicateWindowBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"immediately", 0, true},
		{"just_inside", DefaultWindow - time.Nanosecond, true},
		{"exactly_window", DefaultWindow, false},
		{"after_window", DefaultWindow + time.Second, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, clk := newTestCache()
			c.IsDuplicate("fp", DefaultWindow)
			clk.Advance(tc.elapsed)
			if got := c.IsDuplicate("fp", DefaultWindow); got != tc.want {
				t.Errorf("IsDuplicate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsDuplicateRefreshesOnExpiry(t *testing.T) {
	c, clk := newTestCache()
	c.IsDuplicate("fp", DefaultWindow)
	clk.Advance(DefaultWindow)
	if c.IsDuplicate("fp", DefaultWindow) {
		t.Fatal("expired entry suppressed")
	}
	// The expired call re-recorded the fingerprint.
	clk.Advance(time.Second)
	if !c.IsDuplicate("fp", DefaultWindow) {
		t.Fatal("re-recorded entry not suppressed")
	}
}

func TestHighWaterEviction(t *testing.T) {
	c, clk := newTestCache()
	for i := 0; i < HighWater; i++ {
		c.IsDuplicate(fmt.Sprintf("old-%d", i), DefaultWindow)
	}
	if c.Len() != HighWater {
		t.Fatalf("Len() = %d, want %d", c.Len(), HighWater)
	}

	clk.Advance(DefaultWindow + time.Second)
	c.IsDuplicate("fresh", DefaultWindow)

	if c.Len() != 1 {
		t.Errorf("Len() after sweep = %d, want 1", c.Len())
	}
	if !c.IsDuplicate("fresh", DefaultWindow) {
		t.Error("fresh entry evicted")
	}
}

func TestHighWaterKeepsLiveEntries(t *testing.T) {
	c, _ := newTestCache()
	for i := 0; i <= HighWater; i++ {
		c.IsDuplicate(fmt.Sprintf("k-%d", i), DefaultWindow)
	}
	if c.Len() != HighWater+1 {
		t.Errorf("Len() = %d, want %d (nothing expired yet)", c.Len(), HighWater+1)
	}
}

func TestConcurrentUse(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.IsDuplicate("shared", time.Minute) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firsts != 1 {
		t.Errorf("%d goroutines saw a first occurrence, want 1", firsts)
	}
}

func TestFingerprint(t *testing.T) {
	tests := []struct {
		parts []any
		want  string
	}{
		{[]any{"danmaku", int64(1700000000123), int64(42), "hi"}, "danmaku_1700000000123_42_hi"},
		{[]any{"single"}, "single"},
		{nil, ""},
	}
	for _, tc := range tests {
		if got := Fingerprint(tc.parts...); got != tc.want {
			t.Errorf("Fingerprint(%v) = %q, want %q", tc.parts, got, tc.want)
		}
	}
}
