package cache

import (
	"sync"
	"testing"
)

func TestMemory_Basic(t *testing.T) {
	c := NewMemory[Key, int](3)

	a := Key{ResourceType: "ValueSet", URL: "http://example.org/vs/a", Version: "1.0.0"}
	b := Key{ResourceType: "ValueSet", URL: "http://example.org/vs/b", Version: "1.0.0"}
	c.Set(a, 1)
	c.Set(b, 2)

	if v, ok := c.Get(a); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if v, ok := c.Get(b); !ok || v != 2 {
		t.Errorf("Get(b) = %d, %v; want 2, true", v, ok)
	}
	if _, ok := c.Get(Key{ResourceType: "ValueSet", URL: "http://example.org/vs/a", Version: "2.0.0"}); ok {
		t.Error("Get with another version should miss")
	}
}

func TestMemory_Eviction(t *testing.T) {
	c := NewMemory[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)

	// Access 'a' to make it recently used
	c.Get("a")

	// Add 'c', should evict 'b' (least recently used)
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("'b' should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) = %d, %v; want 3, true", v, ok)
	}
}

func TestMemory_UpdateAndDelete(t *testing.T) {
	c := NewMemory[string, int](2)

	c.Set("a", 1)
	c.Set("a", 10)
	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Errorf("Get(a) = %d, %v; want 10, true", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d; want 1", c.Len())
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) should return false after delete")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d; want 0", c.Len())
	}
}

func TestMemory_Stats(t *testing.T) {
	c := NewMemory[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts a

	c.Get("b") // hit
	c.Get("c") // hit
	c.Get("a") // miss

	stats := c.Stats()
	if stats.Size != 2 {
		t.Errorf("Stats.Size = %d; want 2", stats.Size)
	}
	if stats.Hits != 2 {
		t.Errorf("Stats.Hits = %d; want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Stats.Misses = %d; want 1", stats.Misses)
	}
	if stats.Evicts != 1 {
		t.Errorf("Stats.Evicts = %d; want 1", stats.Evicts)
	}
	if stats.Sets != 3 {
		t.Errorf("Stats.Sets = %d; want 3", stats.Sets)
	}

	expectedHitRate := 2.0 / 3.0
	if stats.HitRate < expectedHitRate-0.01 || stats.HitRate > expectedHitRate+0.01 {
		t.Errorf("Stats.HitRate = %f; want ~%f", stats.HitRate, expectedHitRate)
	}
}

func TestMemory_ZeroCapacity(t *testing.T) {
	c := NewMemory[int, int](0)

	for i := 0; i < 50; i++ {
		c.Set(i, i)
	}
	if c.Len() != 50 {
		t.Errorf("Len() = %d; want 50", c.Len())
	}
}

func TestMemory_Concurrent(t *testing.T) {
	c := NewMemory[int, int](100)

	var wg sync.WaitGroup
	n := 100

	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Set(i, i*10)
		}(i)
		go func(i int) {
			defer wg.Done()
			c.Get(i)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if v, ok := c.Get(i); ok && v != i*10 {
			t.Errorf("Get(%d) = %d; want %d", i, v, i*10)
		}
	}
}

func BenchmarkMemory_Get(b *testing.B) {
	c := NewMemory[int, int](1000)
	for i := 0; i < 1000; i++ {
		c.Set(i, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(i % 1000)
	}
}
