package store

import "sync"

// Memory is an in-process Store, used by tests and ephemeral runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Set(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
