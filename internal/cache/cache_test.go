package cache

import (
	"slices"
	"sync"
	"testing"
)

func TestLRUGetSet(t *testing.T) {
	c := New[string, int](0)
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get on empty cache succeeded")
	}
	c.Set("a", 1)
	c.Set("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v; want 2, true", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := New(2, WithEvictCallback(func(k string, _ int) { evicted = append(evicted, k) }))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // b is now oldest
	if n := c.Set("c", 3); n != 1 {
		t.Fatalf("Set evicted %d entries, want 1", n)
	}
	if _, ok := c.Peek("b"); ok {
		t.Error("b survived eviction")
	}
	if !slices.Equal(evicted, []string{"b"}) {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
	if got := c.Keys(); !slices.Equal(got, []string{"c", "a"}) {
		t.Errorf("Keys = %v, want [c a]", got)
	}
}

func TestLRUPeekKeepsOrder(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Peek("a")
	c.Set("c", 3)
	if _, ok := c.Peek("a"); ok {
		t.Error("Peek refreshed recency")
	}
}

func TestLRUDeleteAndClear(t *testing.T) {
	c := New[int, int](4)
	for i := range 3 {
		c.Set(i, i)
	}
	if !c.Delete(1) {
		t.Error("Delete(1) = false")
	}
	if c.Delete(1) {
		t.Error("second Delete(1) = true")
	}
	if got := c.Keys(); !slices.Equal(got, []int{2, 0}) {
		t.Errorf("Keys = %v, want [2 0]", got)
	}
	c.Clear()
	if c.Len() != 0 || len(c.Keys()) != 0 {
		t.Errorf("after Clear Len = %d", c.Len())
	}
	c.Set(9, 9)
	if v, ok := c.Get(9); !ok || v != 9 {
		t.Error("cache unusable after Clear")
	}
}

func TestLRUStats(t *testing.T) {
	c := New[int, int](1)
	c.Set(1, 1)
	c.Get(1)
	c.Get(2)
	c.Set(2, 2)
	s := c.Stats()
	want := Stats{Len: 1, Capacity: 1, Hits: 1, Misses: 1, Evictions: 1}
	if s != want {
		t.Errorf("Stats = %+v, want %+v", s, want)
	}
	if r := s.HitRate(); r != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", r)
	}
	if r := (Stats{}).HitRate(); r != 0 {
		t.Errorf("empty HitRate = %v, want 0", r)
	}
}

func TestLRUNegativeCapacity(t *testing.T) {
	c := New[int, int](-5)
	for i := range 100 {
		c.Set(i, i)
	}
	if c.Len() != 100 || c.Capacity() != 0 {
		t.Errorf("Len = %d, Capacity = %d; want 100, 0", c.Len(), c.Capacity())
	}
}

func TestLRUConcurrent(t *testing.T) {
	c := New[int, int](32)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 500 {
				c.Set(g*1000+i, i)
				c.Get(g*1000 + i/2)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() != 32 {
		t.Errorf("Len = %d, want 32", c.Len())
	}
	if got := len(c.Keys()); got != 32 {
		t.Errorf("len(Keys) = %d, want 32", got)
	}
}
