package cache

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestGetPutExpiry(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := NewMemory[string]().WithClock(c.now)

	m.Put("a", "1", 30*time.Second)
	if v, ok := m.Get("a"); !ok || v != "1" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}

	c.t = c.t.Add(30 * time.Second)
	if _, ok := m.Get("a"); ok {
		t.Fatal("entry should have expired")
	}
	if m.Len() != 1 {
		t.Fatal("expired entry stays until swept")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	m := NewMemory[int]()
	m.Put("messages|dm:a:b|1|50", 1, time.Minute)
	m.Put("messages|dm:a:b|2|50", 2, time.Minute)
	m.Put("messages|dm:a:bc|1|50", 3, time.Minute)
	m.Put("messages|general|1|50", 4, time.Minute)

	if n := m.Invalidate("messages|dm:a:b|"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok := m.Get("messages|dm:a:bc|1|50"); !ok {
		t.Fatal("sibling room must survive")
	}
	if _, ok := m.Get("messages|general|1|50"); !ok {
		t.Fatal("other room must survive")
	}

	m.Invalidate("messages|general|1|50")
	if _, ok := m.Get("messages|general|1|50"); ok {
		t.Fatal("exact key should be removed")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := NewMemory[string]().WithClock(c.now)

	m.Put("short", "x", time.Second)
	m.Put("long", "y", time.Hour)
	c.t = c.t.Add(2 * time.Second)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", m.Len())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m := NewMemory[string]()
	m.Put("gone", "x", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for m.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("background sweep never removed the entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s := Local(NewMemory[int]())

	s.Put(ctx, "k1", 7, time.Minute)
	if v, ok := s.Get(ctx, "k1"); !ok || v != 7 {
		t.Fatalf("expected 7, got %d %v", v, ok)
	}
	s.Delete(ctx, "k1")
	if _, ok := s.Get(ctx, "k1"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("messages|g:1:c:2|[x]*"); got != `messages|g:1:c:2|\[x\]\*` {
		t.Fatalf("unexpected escape %q", got)
	}
}
