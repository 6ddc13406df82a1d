package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

type memoryEntry struct {
	seq    uint64
	fields map[string]any
}

// Memory is an in-process DocumentStore. It is the default backend for local
// runs and the fake used across tests.
type Memory struct {
	mu          sync.RWMutex
	seq         uint64
	collections map[string]map[string]*memoryEntry

	// Hook, when set, runs before every operation; a non-nil return fails it.
	// Tests use it to inject store faults.
	Hook func(op, collection, id string) error
}

var _ DocumentStore = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*memoryEntry)}
}

func (m *Memory) hook(op, collection, id string) error {
	if m.Hook == nil {
		return nil
	}
	return m.Hook(op, collection, id)
}

// Get implements DocumentStore.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := m.hook("get", collection, id); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.collections[collection][id]
	if !ok {
		return Document{}, notFound(collection, id)
	}
	fields, err := normalize(entry.fields)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Fields: fields}, nil
}

// Set implements DocumentStore.
func (m *Memory) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := m.hook("set", collection, id); err != nil {
		return err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	if docs == nil {
		docs = make(map[string]*memoryEntry)
		m.collections[collection] = docs
	}
	if existing, ok := docs[id]; ok {
		existing.fields = normalized
		return nil
	}
	m.seq++
	docs[id] = &memoryEntry{seq: m.seq, fields: normalized}
	return nil
}

// Update implements DocumentStore.
func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := m.hook("update", collection, id); err != nil {
		return err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.collections[collection][id]
	if !ok {
		return notFound(collection, id)
	}
	for k, v := range normalized {
		entry.fields[k] = v
	}
	return nil
}

// Query implements DocumentStore.
func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := m.hook("query", collection, ""); err != nil {
		return nil, err
	}
	for _, f := range q.Filters {
		if err := validateFilter(f); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memoryEntry
	ids := map[*memoryEntry]string{}
	for id, entry := range m.collections[collection] {
		ok, err := matches(entry.fields, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, entry)
			ids[entry] = id
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	result := make([]Document, 0, len(matched))
	for _, entry := range matched {
		fields, err := normalize(entry.fields)
		if err != nil {
			return nil, err
		}
		result = append(result, Document{ID: ids[entry], Fields: fields})
	}
	return result, nil
}

// Ping implements DocumentStore.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close implements DocumentStore.
func (m *Memory) Close() error { return nil }

func matches(fields map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		switch f.Op {
		case OpEqual:
			want, err := normalize(map[string]any{"v": f.Value})
			if err != nil {
				return false, fmt.Errorf("filter %s: %w", f.Field, err)
			}
			if !reflect.DeepEqual(fields[f.Field], want["v"]) {
				return false, nil
			}
		case OpArrayContainsAny:
			if !containsAny(fields[f.Field], f.Value.([]string)) {
				return false, nil
			}
		}
	}
	return true, nil
}

func containsAny(field any, candidates []string) bool {
	values, ok := field.([]any)
	if !ok {
		return false
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, c := range candidates {
			if s == c {
				return true
			}
		}
	}
	return false
}
