package sources

import "sync"

// Manager holds the configured sources by name, preserving registration
// order so import cycles visit sources deterministically.
type Manager struct {
	mu      sync.RWMutex
	byName  map[string]Source
	ordered []string
}

func NewManager() *Manager {
	return &Manager{byName: make(map[string]Source)}
}

// Add registers a source. Re-adding a name replaces the previous client and
// keeps its position in the order.
func (m *Manager) Add(src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := src.Name()
	if _, ok := m.byName[name]; !ok {
		m.ordered = append(m.ordered, name)
	}
	m.byName[name] = src
}

func (m *Manager) Get(name string) (Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.byName[name]
	return src, ok
}

func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.ordered))
	copy(names, m.ordered)
	return names
}

func (m *Manager) Sources() []Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	srcs := make([]Source, 0, len(m.ordered))
	for _, name := range m.ordered {
		srcs = append(srcs, m.byName[name])
	}
	return srcs
}
