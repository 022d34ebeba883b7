// Package navigation renders the portal header: the main links, a role badge
// and a login or logout action that follows the signed-in role.
package navigation

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ojt-portal/portal-session/internal/broadcast"
	"github.com/ojt-portal/portal-session/internal/i18n"
	"github.com/ojt-portal/portal-session/internal/session"
)

// Link is one header entry.
type Link struct {
	Path   string
	Label  string
	Active bool
}

// View is a rendered header.
type View struct {
	Home     Link
	Links    []Link
	Role     session.Role
	Badge    string
	SignedIn bool
	// Action is the login link for guests and the logout action otherwise.
	Action Link
	Lang   string
}

var mainLinks = []struct{ path, key string }{
	{"/knowledge", i18n.KeyNavKnowledge},
	{"/qa", i18n.KeyNavQA},
	{"/ragdocs", i18n.KeyNavRAGDocs},
	{"/ojt", i18n.KeyNavOJTDocs},
	{"/dashboard", i18n.KeyNavDashboard},
	{"/admin", i18n.KeyNavAdmin},
	{"/company", i18n.KeyNavCompany},
}

var badgeKeys = map[session.Role]string{
	session.RoleGuest:   i18n.KeyRoleGuest,
	session.RoleStudent: i18n.KeyRoleStudent,
	session.RoleCompany: i18n.KeyRoleCompany,
	session.RoleStaff:   i18n.KeyRoleStaff,
	session.RoleAdmin:   i18n.KeyRoleAdmin,
}

// Menu keeps a header in sync with the Role Broadcaster.
type Menu struct {
	store *session.Store
	msgs  *i18n.Catalog

	mu       sync.Mutex
	role     session.Role
	path     string
	onChange func(View)

	unsubscribe func()
}

// New creates a Menu subscribed to bc. store is used for logout.
func New(bc *broadcast.Broadcaster, store *session.Store, msgs *i18n.Catalog) *Menu {
	if msgs == nil {
		msgs = i18n.New()
	}
	m := &Menu{
		store: store,
		msgs:  msgs,
		role:  bc.Role(),
		path:  "/",
	}
	m.unsubscribe = bc.Subscribe(m.roleChanged)
	return m
}

// roleChanged takes the role delivered by the broadcaster rather than
// re-reading storage, so a re-render never shows the previous role.
func (m *Menu) roleChanged(role session.Role) {
	m.mu.Lock()
	m.role = role
	fn := m.onChange
	v := m.viewLocked()
	m.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

// OnChange registers fn to receive a fresh View after every role change.
func (m *Menu) OnChange(fn func(View)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// SetPath marks the current location for active-link highlighting.
func (m *Menu) SetPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
}

// View renders the header for the current role and path.
func (m *Menu) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Menu) viewLocked() View {
	badge, ok := badgeKeys[m.role]
	if !ok {
		badge = i18n.KeyRoleGuest
	}
	v := View{
		Home:     Link{Path: "/", Label: m.msgs.T(i18n.KeyNavHome), Active: m.path == "/"},
		Role:     m.role,
		Badge:    m.msgs.T(badge),
		SignedIn: m.role != session.RoleGuest,
		Lang:     m.msgs.Lang(),
	}
	for _, l := range mainLinks {
		v.Links = append(v.Links, Link{Path: l.path, Label: m.msgs.T(l.key), Active: m.path == l.path})
	}
	if v.SignedIn {
		v.Action = Link{Path: "/logout", Label: m.msgs.T(i18n.KeyLogout)}
	} else {
		v.Action = Link{Path: "/login", Label: m.msgs.T(i18n.KeyLogin), Active: m.path == "/login"}
	}
	return v
}

// Logout clears the whole session. Every subscriber, including this menu,
// sees RoleGuest before Logout returns.
func (m *Menu) Logout() error {
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Close stops following role changes.
func (m *Menu) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Render writes a one-line text rendering of v.
func Render(w io.Writer, v View) error {
	parts := make([]string, 0, len(v.Links)+1)
	parts = append(parts, mark(v.Home))
	for _, l := range v.Links {
		parts = append(parts, mark(l))
	}
	_, err := fmt.Fprintf(w, "%s  [%s] (%s)  %s\n",
		strings.Join(parts, " | "), v.Badge, strings.ToUpper(v.Lang), v.Action.Label)
	return err
}

func mark(l Link) string {
	if l.Active {
		return "*" + l.Label
	}
	return l.Label
}
