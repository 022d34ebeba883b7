// Package storage provides the durable key-value profile storage that backs
// the session store.
//
// A profile is shared by every client instance that opens it, the way browser
// local storage is shared by every tab of one origin. Mutations are applied as
// one atomic batch. Change events are delivered only to instances other than
// the writer; same-instance consumers are notified by the caller.
package storage

import (
	"errors"
	"fmt"
	"sort"
)

// ErrClosed is returned by operations on a closed storage.
var ErrClosed = errors.New("storage closed")

// Batch is an atomic set of writes and removals.
type Batch struct {
	Set    map[string]string
	Remove []string
}

// Keys returns the sorted keys touched by the batch.
func (b Batch) Keys() []string {
	keys := make([]string, 0, len(b.Set)+len(b.Remove))
	for k := range b.Set {
		keys = append(keys, k)
	}
	keys = append(keys, b.Remove...)
	sort.Strings(keys)
	return keys
}

// Change describes a batch applied by another instance.
type Change struct {
	// Keys that changed value, sorted.
	Keys []string
	// Writer is the instance ID of the writer, when the backend knows it.
	Writer string
}

// Touches reports whether the change affects any of keys.
func (c Change) Touches(keys ...string) bool {
	for _, k := range c.Keys {
		for _, want := range keys {
			if k == want {
				return true
			}
		}
	}
	return false
}

// Storage is a profile-scoped durable key-value store.
type Storage interface {
	// ID identifies this instance among the instances sharing the profile.
	ID() string
	// Get returns the value for key and whether it is present.
	Get(key string) (string, bool, error)
	// GetMany returns the present values among keys, read atomically.
	GetMany(keys ...string) (map[string]string, error)
	// Apply writes the batch atomically.
	Apply(b Batch) error
	// Subscribe registers fn for changes made by other instances and returns
	// a function that removes the subscription.
	Subscribe(fn func(Change)) (unsubscribe func())
	// Close releases resources. Subscribers receive no further changes.
	Close() error
}

// diffKeys returns the sorted keys whose value differs between a and b.
func diffKeys(a, b map[string]string) []string {
	var keys []string
	for k, av := range a {
		if bv, ok := b[k]; !ok || bv != av {
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// pick returns the entries of items whose key is in keys.
func pick(items map[string]string, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := items[k]; ok {
			out[k] = v
		}
	}
	return out
}

// applyTo applies b to items in place.
func applyTo(items map[string]string, b Batch) {
	for _, k := range b.Remove {
		delete(items, k)
	}
	for k, v := range b.Set {
		items[k] = v
	}
}

func copyItems(items map[string]string) map[string]string {
	out := make(map[string]string, len(items))
	for k, v := range items {
		out[k] = v
	}
	return out
}

// listeners is a small registry of change subscribers.
type listeners struct {
	next int
	fns  map[int]func(Change)
}

func (l *listeners) add(fn func(Change)) int {
	if l.fns == nil {
		l.fns = make(map[int]func(Change))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return id
}

func (l *listeners) snapshot() []func(Change) {
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		out = append(out, l.fns[id])
	}
	return out
}

// Options selects and configures a backend.
type Options struct {
	Backend string // "file", "memory" or "redis"
	Dir     string
	Redis   RedisOptions
	Origin  *Origin
}

// Open opens the backend described by opts.
func Open(opts Options) (Storage, error) {
	switch opts.Backend {
	case "", "file":
		return OpenFile(opts.Dir)
	case "memory":
		origin := opts.Origin
		if origin == nil {
			origin = NewOrigin()
		}
		return origin.Open(), nil
	case "redis":
		return OpenRedis(opts.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
