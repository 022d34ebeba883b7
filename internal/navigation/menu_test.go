package navigation

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojt-portal/portal-session/internal/broadcast"
	"github.com/ojt-portal/portal-session/internal/i18n"
	"github.com/ojt-portal/portal-session/internal/session"
	"github.com/ojt-portal/portal-session/internal/storage"
)

func TestMenu_GuestView(t *testing.T) {
	store := session.NewStore(storage.NewOrigin().Open())
	m := New(broadcast.New(store), store, i18n.New("en"))
	defer m.Close()

	v := m.View()
	assert.Equal(t, session.RoleGuest, v.Role)
	assert.False(t, v.SignedIn)
	assert.Equal(t, "Guest", v.Badge)
	assert.Equal(t, Link{Path: "/login", Label: "Login"}, v.Action)
	assert.True(t, v.Home.Active)
	require.Len(t, v.Links, 7)
	assert.Equal(t, "Knowledge", v.Links[0].Label)
}

func TestMenu_FollowsEveryRole(t *testing.T) {
	store := session.NewStore(storage.NewOrigin().Open())
	m := New(broadcast.New(store), store, i18n.New("en"))
	defer m.Close()

	var views []View
	m.OnChange(func(v View) { views = append(views, v) })

	// Every signed-in role counts, not only students.
	for _, role := range []session.Role{session.RoleStudent, session.RoleCompany, session.RoleStaff, session.RoleAdmin} {
		require.NoError(t, store.Write(session.Session{FullName: "User", Role: role}))
		last := views[len(views)-1]
		assert.Equal(t, role, last.Role)
		assert.True(t, last.SignedIn)
		assert.Equal(t, "Logout", last.Action.Label)
	}
	assert.Equal(t, "Admin", m.View().Badge)
}

func TestMenu_LogoutClearsSession(t *testing.T) {
	st := storage.NewOrigin().Open()
	store := session.NewStore(st)
	m := New(broadcast.New(store), store, nil)
	defer m.Close()

	require.NoError(t, store.Write(session.Session{FullName: "Jane", Role: session.RoleStaff, Token: "t"}))
	require.True(t, m.View().SignedIn)

	require.NoError(t, m.Logout())
	assert.False(t, m.View().SignedIn)

	items, err := st.GetMany(session.Keys...)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMenu_OtherInstanceLogout(t *testing.T) {
	origin := storage.NewOrigin()

	stA := origin.Open()
	storeA := session.NewStore(stA)
	mA := New(broadcast.New(storeA), storeA, nil)
	defer mA.Close()

	stB := origin.Open()
	storeB := session.NewStore(stB)
	bcB := broadcast.New(storeB)
	stop := bcB.Watch(stB)
	defer stop()
	mB := New(bcB, storeB, nil)
	defer mB.Close()

	require.NoError(t, storeA.Write(session.Session{FullName: "Jane", Role: session.RoleCompany}))
	assert.Equal(t, session.RoleCompany, mB.View().Role)

	require.NoError(t, mA.Logout())
	assert.Equal(t, session.RoleGuest, mB.View().Role)
	assert.Equal(t, session.RoleGuest, mA.View().Role)
}

func TestMenu_ActivePathAndLanguage(t *testing.T) {
	store := session.NewStore(storage.NewOrigin().Open())
	m := New(broadcast.New(store), store, i18n.New("vi"))
	defer m.Close()

	m.SetPath("/qa")
	v := m.View()
	assert.False(t, v.Home.Active)
	assert.Equal(t, "vi", v.Lang)
	for _, l := range v.Links {
		assert.Equal(t, l.Path == "/qa", l.Active, l.Path)
	}
}

func TestMenu_CloseStopsUpdates(t *testing.T) {
	store := session.NewStore(storage.NewOrigin().Open())
	m := New(broadcast.New(store), store, nil)

	calls := 0
	m.OnChange(func(View) { calls++ })
	m.Close()

	require.NoError(t, store.Write(session.Session{FullName: "Jane", Role: session.RoleStaff}))
	assert.Zero(t, calls)
	assert.Equal(t, session.RoleGuest, m.View().Role)
}

func TestRender(t *testing.T) {
	store := session.NewStore(storage.NewOrigin().Open())
	m := New(broadcast.New(store), store, i18n.New("en"))
	defer m.Close()
	require.NoError(t, store.Write(session.Session{FullName: "Jane", Role: session.RoleStaff}))

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, m.View()))
	out := buf.String()
	assert.Contains(t, out, "*Home | Knowledge")
	assert.Contains(t, out, "[Staff]")
	assert.Contains(t, out, "(EN)")
	assert.Contains(t, out, "Logout")
}
