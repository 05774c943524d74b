package store

import "sync"

// Manager hands out one Store per signed-in user, created lazily on first
// use and torn down on sign-out.
type Manager struct {
	mu      sync.Mutex
	stores  map[string]*Store
	factory func(owner string) *Store
}

func NewManager(factory func(owner string) *Store) *Manager {
	return &Manager{
		stores:  map[string]*Store{},
		factory: factory,
	}
}

func (m *Manager) For(owner string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[owner]; ok {
		return s
	}
	s := m.factory(owner)
	m.stores[owner] = s
	return s
}

// Drop closes the owner's store, cancelling any pending-delete countdown.
// Wired to the session sign-out hook.
func (m *Manager) Drop(owner string) {
	m.mu.Lock()
	s, ok := m.stores[owner]
	delete(m.stores, owner)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	stores := make([]*Store, 0, len(m.stores))
	for _, s := range m.stores {
		stores = append(stores, s)
	}
	m.stores = map[string]*Store{}
	m.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}
