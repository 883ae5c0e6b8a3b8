package eventlog

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendOrder(t *testing.T) {
	l := New()

	for i := 0; i < 10; i++ {
		l.Append(CategorySystem, fmt.Sprintf("event %d", i))
	}

	entries := l.Snapshot()
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}
	for i, e := range entries {
		want := fmt.Sprintf("event %d", i)
		if e.Message != want {
			t.Errorf("entry %d: got %q, want %q", i, e.Message, want)
		}
	}
}

func TestEntryFields(t *testing.T) {
	l := New()
	e := l.Append(CategoryUser, "hello")

	if e.ID == "" {
		t.Error("entry should get a unique ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("entry should be timestamped")
	}
	if e.Category != CategoryUser {
		t.Errorf("category = %q, want %q", e.Category, CategoryUser)
	}
	if e.Message != "hello" {
		t.Errorf("message = %q, want %q", e.Message, "hello")
	}

	other := l.Append(CategoryUser, "hello")
	if other.ID == e.ID {
		t.Error("entries should have distinct IDs")
	}
}

func TestClear(t *testing.T) {
	l := New()
	l.Append(CategorySystem, "before")
	l.Clear()

	if l.Len() != 0 {
		t.Fatalf("expected empty log after clear, got %d entries", l.Len())
	}

	l.Append(CategorySystem, "after")
	entries := l.Snapshot()
	if len(entries) != 1 || entries[0].Message != "after" {
		t.Error("appends after clear should start a fresh sequence")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	l := New()
	l.Append(CategorySystem, "one")

	snap := l.Snapshot()
	snap[0].Message = "mutated"

	if l.Snapshot()[0].Message != "one" {
		t.Error("mutating a snapshot must not affect the log")
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(CategorySystem, "concurrent")
		}()
	}
	wg.Wait()

	if l.Len() != 50 {
		t.Errorf("expected 50 entries, got %d", l.Len())
	}
}
