package kv

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Store used by tests in place of a real shared KV
// deployment, per the test-tooling section of the specification this proxy
// implements (a synthetic in-memory KV transport, no container runtime).
type Memory struct {
	mu     sync.Mutex
	values map[string]memEntry
	hashes map[string]map[string][]byte
	lists  map[string][][]byte
	sets   map[string]map[string]struct{}
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// NewMemory creates an empty in-memory KV store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]memEntry),
		hashes: make(map[string]map[string][]byte),
		lists:  make(map[string][][]byte),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) SetEX(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.values[key] = memEntry{value: append([]byte(nil), value...), expires: expires}
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		delete(m.hashes, k)
		delete(m.lists, k)
		delete(m.sets, k)
	}
	return nil
}

func (m *Memory) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, err := m.Get(ctx, k)
		if err == nil {
			out[i] = v
		}
	}
	return out, nil
}

func (m *Memory) HSet(_ context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		m.hashes[key] = h
	}
	h[field] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte)
	for k, v := range m.hashes[key] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) LPush(_ context.Context, key string, values ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		m.lists[key] = append([][]byte{append([]byte(nil), v...)}, m.lists[key]...)
	}
	return nil
}

func (m *Memory) RPopLPush(_ context.Context, src, dst string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[src]
	if len(l) == 0 {
		return nil, ErrNotFound
	}
	v := l[len(l)-1]
	m.lists[src] = l[:len(l)-1]
	m.lists[dst] = append([][]byte{v}, m.lists[dst]...)
	return append([]byte(nil), v...), nil
}

func (m *Memory) LRem(_ context.Context, key string, count int, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	out := make([][]byte, 0, len(l))
	removed := 0
	for _, v := range l {
		if (count <= 0 || removed < count) && bytesEqual(v, value) {
			removed++
			continue
		}
		out = append(out, v)
	}
	m.lists[key] = out
	return nil
}

func (m *Memory) LLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, mem := range members {
		s[string(mem)] = struct{}{}
	}
	return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
