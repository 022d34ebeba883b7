package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ojt-portal/portal-session/internal/session"
	"github.com/ojt-portal/portal-session/internal/storage"
)

func TestLogin_Success(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/user/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"userId":7,"fullname":"Ann Admin","email":"a@x.com","role":"admin","token":"srv-token"},"message":"ok"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api/"})
	resp, err := c.Login(context.Background(), "a@x.com", "good")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"email": "a@x.com", "password": "good"}, got)
	require.NotNil(t, resp.Data)
	require.NotNil(t, resp.Data.UserID)
	assert.Equal(t, 7, *resp.Data.UserID)
	assert.Equal(t, "admin", resp.Data.Role)
	assert.Equal(t, "srv-token", resp.Data.Token)
	assert.Equal(t, "ok", resp.Message)
}

func TestLogin_NoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"message":"hmm"}`))
	}))
	defer srv.Close()

	resp, err := New(Config{BaseURL: srv.URL}).Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)
	assert.Nil(t, resp.Data)
	assert.Equal(t, "hmm", resp.Message)
}

func TestLogin_ErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message", http.StatusUnauthorized, `{"message":"Wrong password"}`, "Wrong password"},
		{"no body", http.StatusInternalServerError, ``, ""},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}).Login(context.Background(), "a@x.com", "bad")
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestLogin_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{BaseURL: url}).Login(context.Background(), "a@x.com", "pw")
	require.Error(t, err)
	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr))
}

func TestBearerFromStore(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/user/7":
			_, _ = w.Write([]byte(`{"data":{"userId":7,"fullname":"Ann","role":"admin"}}`))
		case "/user/getAll":
			_, _ = w.Write([]byte(`{"data":[{"userId":1,"fullname":"A","role":"student"},{"userId":2,"fullname":"B","role":"company"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := session.NewStore(storage.NewOrigin().Open())
	c := New(Config{BaseURL: srv.URL, Tokens: store})

	// Anonymous: no header.
	_, err := c.ListUsers(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.Write(session.Session{FullName: "Ann", Role: session.RoleAdmin, Token: "abc"}))
	u, err := c.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.FullName)

	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "company", users[1].Role)

	assert.Equal(t, []string{"", "Bearer abc", "Bearer abc"}, auth)
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) { return nil, errors.New("storage closed") }

func TestBearerSourceError(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, Tokens: failingSource{}}).ListUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage closed")
	assert.False(t, called)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
