package activity

import (
	"context"
	"sort"
	"sync"
)

// MemoryLog keeps the newest entries in process. Used when no database is
// configured and in tests.
type MemoryLog struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryLog{capacity: capacity}
}

func (m *MemoryLog) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntry(entry); err != nil {
		return err
	}
	entry.Context = copyContext(entry.Context)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if over := len(m.entries) - m.capacity; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
	return nil
}

// Recent returns entries newest first.
func (m *MemoryLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	m.mu.RLock()
	out := append([]Entry(nil), m.entries...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyContext(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
