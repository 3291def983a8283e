package credstore

import (
	"context"
	"sync"
	"time"
)

// MemorySlot keeps the value in process memory.
type MemorySlot struct {
	mu   sync.Mutex
	data []byte
}

// Compile-time check to ensure MemorySlot implements Slot
var _ Slot = (*MemorySlot)(nil)

// NewMemorySlot creates an empty MemorySlot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) Get(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemorySlot) Set(ctx context.Context, data []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = append([]byte{}, data...)
	return nil
}

func (m *MemorySlot) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	return nil
}
