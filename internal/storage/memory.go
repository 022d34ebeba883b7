package storage

import (
	"sync"

	"github.com/google/uuid"
)

// Origin is an in-process profile shared by several MemoryStorage instances.
type Origin struct {
	mu        sync.Mutex
	items     map[string]string
	instances map[string]*MemoryStorage
}

// NewOrigin creates an empty in-process profile.
func NewOrigin() *Origin {
	return &Origin{
		items:     make(map[string]string),
		instances: make(map[string]*MemoryStorage),
	}
}

// Open attaches a new instance to the origin.
func (o *Origin) Open() *MemoryStorage {
	s := &MemoryStorage{id: uuid.NewString(), origin: o}
	o.mu.Lock()
	o.instances[s.id] = s
	o.mu.Unlock()
	return s
}

// MemoryStorage is one instance attached to an Origin.
type MemoryStorage struct {
	id     string
	origin *Origin

	mu        sync.Mutex
	listeners listeners
	closed    bool
}

var _ Storage = (*MemoryStorage)(nil)

func (s *MemoryStorage) ID() string { return s.id }

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	s.origin.mu.Lock()
	defer s.origin.mu.Unlock()
	v, ok := s.origin.items[key]
	return v, ok, nil
}

func (s *MemoryStorage) GetMany(keys ...string) (map[string]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	s.origin.mu.Lock()
	defer s.origin.mu.Unlock()
	return pick(s.origin.items, keys), nil
}

// Apply writes b and then delivers the change to every other open instance.
// Delivery happens after the origin lock is released so listeners may read.
func (s *MemoryStorage) Apply(b Batch) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.origin.mu.Lock()
	before := copyItems(s.origin.items)
	applyTo(s.origin.items, b)
	changed := diffKeys(before, s.origin.items)
	var peers []*MemoryStorage
	for id, inst := range s.origin.instances {
		if id != s.id {
			peers = append(peers, inst)
		}
	}
	s.origin.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	change := Change{Keys: changed, Writer: s.id}
	for _, p := range peers {
		p.deliver(change)
	}
	return nil
}

func (s *MemoryStorage) deliver(c Change) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fns := s.listeners.snapshot()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *MemoryStorage) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.listeners.add(fn)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners.fns, id)
		s.mu.Unlock()
	}
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.origin.mu.Lock()
	delete(s.origin.instances, s.id)
	s.origin.mu.Unlock()
	return nil
}

func (s *MemoryStorage) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
