package respcache

import (
	"fmt"
	"testing"
	"time"
)

func TestSetThenGet(t *testing.T) {
	c := New(0, 0)
	c.Set("GET /api/projects", []byte(`["a"]`))

	value, ok := c.Get("GET /api/projects")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(value) != `["a"]` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := New(0, 0)
	if _, ok := c.Get("GET /api/projects"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestSetOverwrites(t *testing.T) {
	c := New(0, 0)
	c.Set("k", []byte("one"))
	c.Set("k", []byte("two"))

	value, ok := c.Get("k")
	if !ok || string(value) != "two" {
		t.Fatalf("expected overwritten value, got %q ok=%v", value, ok)
	}
}

func TestExpiredEntryIsAbsentAndEvicted(t *testing.T) {
	c := New(5*time.Minute, 0)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", []byte("v"))

	now = now.Add(5*time.Minute - time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to read as absent")
	}
	if c.Len() != 0 {
		t.Fatalf("expected lazy eviction on read, %d entries remain", c.Len())
	}
}

func TestClear(t *testing.T) {
	c := New(0, 0)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	c.Clear()

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss after clear")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected miss after clear")
	}
}

func TestEntryCountIsBounded(t *testing.T) {
	c := New(0, 10)
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("key-%d", i), []byte("v"))
	}
	if c.Len() > 10 {
		t.Fatalf("expected at most 10 entries, got %d", c.Len())
	}
	// The most recent key survives.
	if _, ok := c.Get("key-99"); !ok {
		t.Fatal("expected most recent entry to survive the bound")
	}
}

func TestKey(t *testing.T) {
	key := Key("GET", "https://api.helpmarq.app/api/projects?status=open")
	if key != "GET https://api.helpmarq.app/api/projects?status=open" {
		t.Fatalf("unexpected key: %s", key)
	}
}
