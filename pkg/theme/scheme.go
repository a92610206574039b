package theme

import "sync"

// ManualScheme is a SchemeSource driven by Set, for platforms that push
// scheme changes in from the outside and for tests.
type ManualScheme struct {
	mu     sync.Mutex
	cur    Effective
	subs   map[int]func(Effective)
	nextID int
}

func NewManualScheme(initial Effective) *ManualScheme {
	return &ManualScheme{cur: initial, subs: make(map[int]func(Effective))}
}

func (m *ManualScheme) Current() Effective {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Subscribe does not call fn for the current value.
func (m *ManualScheme) Subscribe(fn func(Effective)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Set changes the scheme and notifies subscribers outside the lock.
func (m *ManualScheme) Set(e Effective) {
	m.mu.Lock()
	if m.cur == e {
		m.mu.Unlock()
		return
	}
	m.cur = e
	subs := make([]func(Effective), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// Subscribers reports how many subscriptions are live.
func (m *ManualScheme) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
