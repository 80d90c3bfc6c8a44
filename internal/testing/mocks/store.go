package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

type memObject struct {
	attrs types.DestinationObject
	body  []byte
}

// MemoryStore is a blobstore.Store kept in a map. Objects get their
// LastModified from the store clock.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	calls   map[string]int
	now     func() time.Time
}

var _ blobstore.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store using the wall clock
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memObject),
		calls:   make(map[string]int),
		now:     time.Now,
	}
}

// SetClock replaces the clock used to stamp written objects
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetObject stores an object as is, bypassing the clock
func (m *MemoryStore) SetObject(obj types.DestinationObject, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj.Size == 0 {
		obj.Size = int64(len(body))
	}
	m.objects[obj.Key] = memObject{attrs: obj, body: body}
}

// Object returns an object and its body without counting a call
func (m *MemoryStore) Object(key string) (types.DestinationObject, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o.attrs, o.body, ok
}

// Keys returns every key, sorted
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CallCount returns how many times method was called
func (m *MemoryStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// ResetCalls zeroes the call counters
func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]types.DestinationObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["List"]++

	var out []types.DestinationObject
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o.attrs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) ListPrefixes(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListPrefixes"]++

	seen := make(map[string]bool)
	var names []string
	for k := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !strings.Contains(strings.TrimPrefix(k, prefix), "/") {
			continue
		}
		name := blobstore.ChildName(prefix, k)
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Head(_ context.Context, key string) (types.DestinationObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Head"]++
	o, ok := m.objects[key]
	if !ok {
		return types.DestinationObject{}, fmt.Errorf("object %s: %w", key, utils.ErrNotFound)
	}
	return o.attrs, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (types.DestinationObject, io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Get"]++
	o, ok := m.objects[key]
	if !ok {
		return types.DestinationObject{}, nil, fmt.Errorf("object %s: %w", key, utils.ErrNotFound)
	}
	return o.attrs, io.NopCloser(bytes.NewReader(o.body)), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Put"]++

	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	m.objects[key] = memObject{
		attrs: types.DestinationObject{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: m.now().UTC(),
			ContentType:  contentType,
			Metadata:     md,
		},
		body: data,
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Delete"]++
	delete(m.objects, key)
	return nil
}
