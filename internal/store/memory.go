/*
Package store abstracts the shared broker every fleet member synchronizes
through.

This file contains the in-process implementation used by unit tests and by
single-node development runs. It mirrors the broker's observable semantics:
negative list indices count from the end, Keys matches glob patterns, and a
published message reaches every matching pattern subscriber, including one
registered by the publishing component.
*/
package store

import (
	"context"
	"fmt"
	"path"
	"sync"
)

// Memory implements Store and Bus entirely in process memory.
// It is safe for concurrent use. Pub/sub dispatch is synchronous: Publish
// returns after every matching handler has run.
type Memory struct {
	mu      sync.RWMutex
	scalars map[string]string
	lists   map[string][]string
	sets    map[string]map[string]struct{}

	subMu sync.RWMutex
	subs  map[*memorySub]struct{}
}

// NewMemory constructs an empty in-process store/bus.
func NewMemory() *Memory {
	return &Memory{
		scalars: make(map[string]string),
		lists:   make(map[string][]string),
		sets:    make(map[string]map[string]struct{}),
		subs:    make(map[*memorySub]struct{}),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.scalars[key]
	return val, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scalars[key] = value
	return nil
}

func (m *Memory) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.scalars, key)
		delete(m.lists, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) ListAppend(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[key] = append(m.lists[key], value)
	return nil
}

// normalizeRange converts possibly-negative start/stop indices into concrete
// bounds over a list of the given length, mirroring broker LRANGE/LTRIM
// semantics. The second return is false when the range selects nothing.
func normalizeRange(length int64, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start = length + start
	}
	if stop < 0 {
		stop = length + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if length == 0 || start > stop || start >= length || stop < 0 {
		return 0, 0, false
	}
	return start, stop, true
}

func (m *Memory) ListTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	from, to, ok := normalizeRange(int64(len(list)), start, stop)
	if !ok {
		delete(m.lists, key)
		return nil
	}

	m.lists[key] = append([]string(nil), list[from:to+1]...)
	return nil
}

func (m *Memory) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.lists[key]
	from, to, ok := normalizeRange(int64(len(list)), start, stop)
	if !ok {
		return nil, nil
	}

	return append([]string(nil), list[from:to+1]...), nil
}

func (m *Memory) ListSet(ctx context.Context, key string, index int64, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.lists[key]
	if !ok {
		return fmt.Errorf("memory lset %q: no such key", key)
	}

	if index < 0 {
		index = int64(len(list)) + index
	}
	if index < 0 || index >= int64(len(list)) {
		return fmt.Errorf("memory lset %q[%d]: index out of range", key, index)
	}

	list[index] = value
	return nil
}

func (m *Memory) SetAdd(ctx context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sets[key] == nil {
		m.sets[key] = make(map[string]struct{})
	}
	m.sets[key][member] = struct{}{}
	return nil
}

func (m *Memory) SetMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *Memory) SetRemove(ctx context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.sets[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(m.sets, key)
		}
	}
	return nil
}

// Keys returns every key of any kind matching the glob pattern.
// Keys here never contain path separators, so path.Match globbing lines up
// with the broker's pattern syntax for the patterns this system uses.
func (m *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []string
	appendMatches := func(name string) {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			matched = append(matched, name)
		}
	}

	for key := range m.scalars {
		appendMatches(key)
	}
	for key := range m.lists {
		appendMatches(key)
	}
	for key := range m.sets {
		appendMatches(key)
	}
	return matched, nil
}

// memorySub is a registered pattern handler.
type memorySub struct {
	owner   *Memory
	pattern string
	fn      Handler
}

// Close deregisters the subscription.
func (s *memorySub) Close() error {
	s.owner.subMu.Lock()
	defer s.owner.subMu.Unlock()

	delete(s.owner.subs, s)
	return nil
}

// Publish delivers payload to every subscription whose pattern matches
// channel. Handlers run on the caller's goroutine, outside the registry
// lock, so a handler may itself publish.
func (m *Memory) Publish(ctx context.Context, channel, payload string) error {
	m.subMu.RLock()
	var handlers []Handler
	for sub := range m.subs {
		if ok, err := path.Match(sub.pattern, channel); err == nil && ok {
			handlers = append(handlers, sub.fn)
		}
	}
	m.subMu.RUnlock()

	for _, fn := range handlers {
		fn(channel, payload)
	}
	return nil
}

// PSubscribe registers fn for every channel matching pattern.
func (m *Memory) PSubscribe(ctx context.Context, pattern string, fn Handler) (Subscription, error) {
	sub := &memorySub{owner: m, pattern: pattern, fn: fn}

	m.subMu.Lock()
	m.subs[sub] = struct{}{}
	m.subMu.Unlock()

	return sub, nil
}
