package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// FileName is the name of the profile document inside the profile directory.
const FileName = "storage.json"

// fileDocument is the on-disk profile format.
type fileDocument struct {
	Writer string            `json:"writer"`
	Seq    uint64            `json:"seq"`
	Items  map[string]string `json:"items"`
}

// FileStorage keeps a profile in a single JSON document that is replaced
// atomically on every write. Other processes opening the same directory see
// the changes through an fsnotify watch on the directory.
type FileStorage struct {
	id   string
	dir  string
	path string

	mu        sync.Mutex
	snapshot  map[string]string
	listeners listeners
	closed    bool

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

var _ Storage = (*FileStorage)(nil)

// OpenFile opens (creating if needed) the profile in dir and starts watching
// it for writes made by other instances.
func OpenFile(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("profile directory is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	s := &FileStorage{
		id:     uuid.NewString(),
		dir:    dir,
		path:   filepath.Join(dir, FileName),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}
	s.snapshot = doc.Items

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create profile watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch profile directory: %w", err)
	}
	s.watcher = watcher

	go s.watchLoop(watcher.Events, watcher.Errors)

	slog.Debug("file storage opened", "dir", dir, "instance", s.id)
	return s, nil
}

func (s *FileStorage) ID() string { return s.id }

// Get reads the document from disk so a value written by another process is
// visible even before its change event arrives.
func (s *FileStorage) Get(key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	doc, err := s.readDocument()
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Items[key]
	return v, ok, nil
}

func (s *FileStorage) GetMany(keys ...string) (map[string]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}
	return pick(doc.Items, keys), nil
}

// Apply merges b into the current document and replaces the file atomically.
// Concurrent writers from other processes are last-write-wins.
func (s *FileStorage) Apply(b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	applyTo(doc.Items, b)
	doc.Writer = s.id
	doc.Seq++

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		return err
	}

	s.snapshot = doc.Items
	return nil
}

func (s *FileStorage) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.listeners.add(fn)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners.fns, id)
		s.mu.Unlock()
	}
}

// Close stops the watcher. It is safe to call more than once.
func (s *FileStorage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	err := s.watcher.Close()
	<-s.doneCh
	return err
}

func (s *FileStorage) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// watchLoop handles fsnotify events. The channels are passed in so Close can
// tear down the watcher without racing on its fields.
func (s *FileStorage) watchLoop(events <-chan fsnotify.Event, errs <-chan error) {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != FileName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-errs:
			if !ok {
				return
			}
			slog.Warn("profile watcher error", "dir", s.dir, "error", err)
		}
	}
}

// reload re-reads the document and notifies listeners of keys that changed
// since the last snapshot. Reloading an unchanged document is a no-op, so
// repeated fsnotify events for one write produce a single change.
func (s *FileStorage) reload() {
	doc, err := s.readDocument()
	if err != nil {
		// A half-visible file cannot happen with rename, but a foreign
		// writer could leave garbage behind.
		slog.Warn("failed to reload profile", "path", s.path, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := diffKeys(s.snapshot, doc.Items)
	s.snapshot = doc.Items
	own := doc.Writer == s.id
	fns := s.listeners.snapshot()
	s.mu.Unlock()

	if own || len(changed) == 0 {
		return
	}

	change := Change{Keys: changed, Writer: doc.Writer}
	slog.Debug("profile changed by another instance", "writer", doc.Writer, "keys", changed)
	for _, fn := range fns {
		fn(change)
	}
}

func (s *FileStorage) readDocument() (*fileDocument, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileDocument{Items: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if doc.Items == nil {
		doc.Items = map[string]string{}
	}
	return &doc, nil
}

// writeFileAtomic writes data to a temp file in the same directory and renames
// it over path, so readers see either the old or the new document.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp profile: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp profile: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp profile: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to set profile permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace profile: %w", err)
	}
	return nil
}
