package portstest

import (
	"context"
	"sync"

	"timersync/internal/ports"
)

var _ ports.KV = (*MemoryKV)(nil)

// MemoryKV is a map-backed KV store.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string

	// SetErr, when set, fails every write.
	SetErr error

	// Gate, when set, blocks GetMany until a value is received or the gate is closed.
	Gate chan struct{}
	// Entered receives a value each time GetMany is entered, if set.
	Entered chan struct{}
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryKV) SetMany(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	for k, v := range values {
		m.data[k] = v
	}
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Raw sets a value without encoding, for corrupt-data tests.
func (m *MemoryKV) Raw(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}
