// Package eventlog keeps an append-only, ordered record of session
// lifecycle and conversation events for external rendering.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Category classifies a log entry for display.
type Category string

const (
	CategorySystem    Category = "system"
	CategoryUser      Category = "user"
	CategoryAssistant Category = "assistant"
	CategoryError     Category = "error"
)

// Entry is one immutable log record. Ordering is creation order.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Category  Category  `json:"category"`
}

// Log is an append-only event record. Entries are never mutated or
// removed except by Clear. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Append records a new entry and returns it. Entries appended from
// concurrently arriving events keep their arrival order.
func (l *Log) Append(category Category, message string) Entry {
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Message:   message,
		Category:  category,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	return entry
}

// Snapshot returns a copy of all entries in append order.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear removes all entries. Subsequent appends start a fresh ordered
// sequence.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
