package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/ojt-portal/portal-session/internal/autherr"
	"github.com/ojt-portal/portal-session/internal/storage"
)

// Profile keys owned by the Store.
const (
	KeyToken = "token"
	KeyUser  = "authUser"
	KeyRole  = "userRole"
)

// Keys lists every profile key the Store owns.
var Keys = []string{KeyToken, KeyUser, KeyRole}

// Notifier is told, synchronously, about every Write and Clear made through
// the Store.
type Notifier interface {
	SessionChanged()
}

// Store is the single owner of the persisted session. Every mutation replaces
// the whole session in one storage batch.
type Store struct {
	storage storage.Storage

	mu        sync.Mutex
	notifiers []Notifier
}

var _ oauth2.TokenSource = (*Store)(nil)

// NewStore creates a Store on top of a profile storage.
func NewStore(st storage.Storage) *Store {
	return &Store{storage: st}
}

// AddNotifier registers n to be told about Write and Clear.
func (s *Store) AddNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Storage returns the profile storage the Store writes to.
func (s *Store) Storage() storage.Storage { return s.storage }

// Read returns the stored session. The boolean is false when nobody is
// signed in.
func (s *Store) Read() (Session, bool, error) {
	items, err := s.storage.GetMany(Keys...)
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to read session: %w", err)
	}

	raw, ok := items[KeyUser]
	if !ok {
		return Session{}, false, nil
	}

	var u storedUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return Session{}, false, fmt.Errorf("%w: malformed %s: %v", autherr.ErrInvalidSession, KeyUser, err)
	}
	role, ok := ParseRole(u.Role)
	if !ok {
		return Session{}, false, fmt.Errorf("%w: unknown role %q", autherr.ErrInvalidSession, u.Role)
	}

	sess := Session{
		UserID:   u.UserID,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     role,
		Token:    items[KeyToken],
	}
	if err := sess.Validate(); err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// Write replaces the stored session and notifies registered notifiers.
func (s *Store) Write(sess Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(storedUser{
		UserID:   sess.UserID,
		FullName: sess.FullName,
		Email:    sess.Email,
		Role:     string(sess.Role),
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	b := storage.Batch{Set: map[string]string{
		KeyUser: string(data),
		KeyRole: string(sess.Role),
	}}
	if sess.Token != "" {
		b.Set[KeyToken] = sess.Token
	} else {
		b.Remove = []string{KeyToken}
	}

	if err := s.apply(b); err != nil {
		return err
	}
	slog.Debug("session written", "role", sess.Role, "has_token", sess.Token != "")
	return nil
}

// Clear removes all session keys in one batch and notifies registered
// notifiers.
func (s *Store) Clear() error {
	if err := s.apply(storage.Batch{Remove: Keys}); err != nil {
		return err
	}
	slog.Debug("session cleared")
	return nil
}

// apply serializes mutations within this instance. Notifiers run after the
// lock is released so they may read the Store.
func (s *Store) apply(b storage.Batch) error {
	s.mu.Lock()
	err := s.storage.Apply(b)
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	for _, n := range notifiers {
		n.SessionChanged()
	}
	return nil
}

// Role reads only the denormalized role key. Anonymous and unreadable
// profiles report RoleGuest.
func (s *Store) Role() Role {
	v, ok, err := s.storage.Get(KeyRole)
	if err != nil {
		slog.Warn("failed to read role, reporting guest", "error", err)
		return RoleGuest
	}
	if !ok {
		return RoleGuest
	}
	role, ok := ParseRole(v)
	if !ok {
		return RoleGuest
	}
	return role
}

// Token returns the stored bearer token for outgoing API requests.
func (s *Store) Token() (*oauth2.Token, error) {
	v, ok, err := s.storage.Get(KeyToken)
	if err != nil {
		return nil, err
	}
	if !ok || v == "" {
		return nil, autherr.ErrNoToken
	}
	return &oauth2.Token{AccessToken: v, TokenType: "Bearer"}, nil
}
