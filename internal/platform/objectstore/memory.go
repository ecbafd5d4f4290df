package objectstore

import (
	"context"
	"strings"
	"sync"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
)

// Memory keeps objects in process for tests and --memory runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
	baseURL string
}

func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "memory://media"
	}
	return &Memory{objects: map[string][]byte{}, types: map[string]string{}, baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *Memory) Put(_ context.Context, path string, data []byte, contentType string) error {
	key := strings.TrimLeft(path, "/")
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.objects[key] = cp
	m.types[key] = contentType
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, path string) ([]byte, error) {
	key := strings.TrimLeft(path, "/")
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, adapters.Errorf("memory-store", adapters.NotFound, "object %s", key)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) URL(path string) string {
	return m.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Keys lists stored paths with the given prefix.
func (m *Memory) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

// ContentType returns the type recorded for path.
func (m *Memory) ContentType(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[strings.TrimLeft(path, "/")]
}
