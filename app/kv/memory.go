package kv

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store, safe for concurrent use
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory makes an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// List returns entries with keys matching pattern, sorted by key
func (m *Memory) List(ctx context.Context, pattern string, withValues bool) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := []Item{}
	for k, v := range m.data {
		if !Match(pattern, k) {
			continue
		}
		item := Item{Key: k}
		if withValues {
			item.Value = v
		}
		res = append(res, item)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res, nil
}

// Get returns value for key or ErrNotFound
func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key, replacing any previous value
func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

// Delete removes key, missing key is not an error
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Close is a no-op for memory store
func (m *Memory) Close() error { return nil }
