// Package broadcast notifies UI surfaces when the signed-in role changes,
// whether the change was made by this instance or by another instance sharing
// the profile.
package broadcast

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/ojt-portal/portal-session/internal/session"
	"github.com/ojt-portal/portal-session/internal/storage"
)

// RoleReader reads the current role from durable storage.
type RoleReader interface {
	Role() session.Role
}

// Broadcaster is an in-process pub/sub for role changes.
type Broadcaster struct {
	reader RoleReader

	// deliverMu orders fan-out. Subscribers must not call SessionChanged.
	deliverMu sync.Mutex

	mu   sync.Mutex
	role session.Role
	gen  uint64
	subs map[int]func(session.Role)
	next int
}

var _ session.Notifier = (*Broadcaster)(nil)

// New creates a Broadcaster that reads roles from store and registers itself
// for the store's same-instance writes.
func New(store *session.Store) *Broadcaster {
	b := NewWithReader(store)
	store.AddNotifier(b)
	return b
}

// NewWithReader creates a Broadcaster over any RoleReader. The caller is
// responsible for calling SessionChanged on writes.
func NewWithReader(reader RoleReader) *Broadcaster {
	return &Broadcaster{
		reader: reader,
		role:   reader.Role(),
		subs:   make(map[int]func(session.Role)),
	}
}

// Role returns the last role read from storage, RoleGuest when anonymous.
func (b *Broadcaster) Role() session.Role {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.role
}

// Subscribe registers fn to be called with the current role on every session
// change. The returned function removes the subscription.
func (b *Broadcaster) Subscribe(fn func(session.Role)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// SessionChanged re-reads the role and delivers it to every subscriber
// before returning. The cached role is updated first, so a subscriber that
// calls Role() sees the new value. Deliveries are serialized and always carry
// the cached role; a delivery overtaken by a newer change stops early and
// leaves the rest to the newer one.
func (b *Broadcaster) SessionChanged() {
	b.mu.Lock()
	prev := b.role
	role := b.reader.Role()
	b.role = role
	b.gen++
	gen := b.gen
	b.mu.Unlock()

	if prev != role {
		slog.Debug("role changed", "from", prev, "to", role)
	}

	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	role = b.role
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(session.Role), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		if b.superseded(gen) {
			return
		}
		fn(role)
	}
}

func (b *Broadcaster) superseded(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen != gen
}

// Watch forwards session changes made by other instances sharing st. The
// returned function stops watching.
func (b *Broadcaster) Watch(st storage.Storage) (stop func()) {
	return st.Subscribe(func(c storage.Change) {
		if !c.Touches(session.Keys...) {
			return
		}
		b.SessionChanged()
	})
}
