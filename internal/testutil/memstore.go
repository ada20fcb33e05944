package testutil

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/familiar-chat/mediagate/internal/objectstore"
)

// StoredObject is what MemoryStore keeps per path.
type StoredObject struct {
	Data        []byte
	ContentType string
	Public      bool
}

// MemoryStore is an objectstore.Store backed by a map.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]StoredObject

	FailPuts    bool
	FailDeletes bool
}

var _ objectstore.Store = (*MemoryStore)(nil)

var errInjected = errors.New("injected store failure")

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string]StoredObject),
	}
}

func (m *MemoryStore) Put(ctx context.Context, path string, body io.Reader, opts objectstore.PutOptions) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts {
		return "", errInjected
	}
	m.objects[path] = StoredObject{Data: data, ContentType: opts.ContentType, Public: opts.Public}
	return strings.TrimRight(m.baseURL, "/") + "/" + path, nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeletes {
		return errInjected
	}
	if _, ok := m.objects[path]; !ok {
		return objectstore.ErrNotFound
	}
	delete(m.objects, path)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

// Get returns the stored object at path.
func (m *MemoryStore) Get(path string) (StoredObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	return obj, ok
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
