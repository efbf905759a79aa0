// Package sessiontest provides an in-memory session.Backend for tests.
package sessiontest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"gamelend/session"
)

type entry struct {
	value   []byte
	set     map[string]struct{}
	expires time.Time
}

// Memory mimics the Redis commands the session layer uses, including TTLs
// against a replaceable clock.
type Memory struct {
	mu   sync.Mutex
	data map[string]*entry
	Now  func() time.Time
	// FailWith, when set, is returned by every command.
	FailWith error
}

func New() *Memory {
	return &Memory{data: map[string]*entry{}, Now: time.Now}
}

// Keys lists live keys, sorted.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		if m.live(k) != nil {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Memory) live(k string) *entry {
	e, ok := m.data[k]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !m.Now().Before(e.expires) {
		delete(m.data, k)
		return nil
	}
	return e
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.Now().Add(ttl)
}

func (m *Memory) Get(_ context.Context, k string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	e := m.live(k)
	if e == nil || e.set != nil {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Set(_ context.Context, k string, v []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.data[k] = &entry{value: append([]byte(nil), v...), expires: m.deadline(ttl)}
	return nil
}

func (m *Memory) SetNX(_ context.Context, k string, v []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return false, m.FailWith
	}
	if m.live(k) != nil {
		return false, nil
	}
	m.data[k] = &entry{value: append([]byte(nil), v...), expires: m.deadline(ttl)}
	return true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Expire sets a TTL on a live key, like EXPIRE. Tests use it to simulate keys
// whose TTL was lost.
func (m *Memory) Expire(k string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.live(k); e != nil {
		e.expires = m.deadline(ttl)
	}
}

func (m *Memory) Incr(_ context.Context, k string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	e := m.live(k)
	if e == nil {
		e = &entry{}
		m.data[k] = e
	}
	n, _ := strconv.ParseInt(string(e.value), 10, 64)
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	if ttl > 0 && e.expires.IsZero() {
		e.expires = m.deadline(ttl)
	}
	return n, nil
}

func (m *Memory) SAdd(_ context.Context, k, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	e := m.live(k)
	if e == nil {
		e = &entry{set: map[string]struct{}{}}
		m.data[k] = e
	}
	e.set[member] = struct{}{}
	if ttl > 0 {
		e.expires = m.deadline(ttl)
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, k, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if e := m.live(k); e != nil && e.set != nil {
		delete(e.set, member)
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, k string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	e := m.live(k)
	if e == nil {
		return nil, nil
	}
	out := make([]string, 0, len(e.set))
	for s := range e.set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailWith
}

var _ session.Backend = (*Memory)(nil)
