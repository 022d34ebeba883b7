package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, apiURL string) string {
	t.Helper()

	dir := t.TempDir()
	data := fmt.Sprintf(`portal:
  api_base_url: %q
  env_file: ""
  config_url: ""
profile:
  backend: file
  dir: %q
listen:
  http: "127.0.0.1:0"
ui:
  redirect_delay_ms: 0
log:
  level: "error"
  format: "text"
`, apiURL, filepath.Join(dir, "profile"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

// withGlobals points the CLI at cfgPath and restores every global flag after
// the test.
func withGlobals(t *testing.T, cfgPath string) {
	t.Helper()

	oldCfg, oldExit := configFile, overrideExitCode
	oldEmail, oldStdin, oldGoogle, oldURL, oldRemote := loginEmail, loginPasswordStdin, loginGoogle, loginURL, whoamiRemote
	t.Cleanup(func() {
		configFile, overrideExitCode = oldCfg, oldExit
		loginEmail, loginPasswordStdin, loginGoogle, loginURL, whoamiRemote = oldEmail, oldStdin, oldGoogle, oldURL, oldRemote
	})

	configFile = cfgPath
	overrideExitCode = -1
	loginEmail, loginPasswordStdin, loginGoogle, loginURL, whoamiRemote = "", false, false, "", false

	t.Setenv("PORTAL_GOOGLE_CLIENT_ID", "")
	t.Setenv("PORTAL_GOOGLE_REDIRECT_URI", "")
}

func newTestCmd(stdin string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetContext(context.Background())
	return cmd, &out, &errOut
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.Contains(readBody(r), `"password":"secret"`) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"userId":7,"fullname":"Ann Admin","email":"ann@x.com","role":"admin","token":"tok-7"},"message":"ok"}`))
	})
	mux.HandleFunc("GET /user/7", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-7" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"userId":7,"fullname":"Ann Admin","email":"ann@x.com","role":"admin"}}`))
	})
	mux.HandleFunc("GET /user/getAll", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"userId":1,"fullname":"Sam Student","email":"s@x.com","role":"students"},{"userId":7,"fullname":"Ann Admin","email":"ann@x.com","role":"admin"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func readBody(r *http.Request) string {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r.Body)
	return buf.String()
}

func TestRunCheckConfig_Valid(t *testing.T) {
	withGlobals(t, writeTestConfig(t, "http://localhost:5220/api"))

	cmd, out, _ := newTestCmd("")
	require.NoError(t, runCheckConfig(cmd, nil))
	assert.Equal(t, -1, overrideExitCode)
	assert.Contains(t, out.String(), "Configuration is valid")
	assert.Contains(t, out.String(), "Google sign-in unavailable")
}

func TestRunCheckConfig_BuildEnvClientID(t *testing.T) {
	withGlobals(t, writeTestConfig(t, "http://localhost:5220/api"))
	t.Setenv("PORTAL_GOOGLE_CLIENT_ID", "cid-from-env")

	cmd, out, _ := newTestCmd("")
	require.NoError(t, runCheckConfig(cmd, nil))
	assert.Contains(t, out.String(), "cid-from-env")
	assert.Contains(t, out.String(), "Google sign-in available")
}

func TestRunCheckConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("portal:\n  api_base_url: \"not-a-url\"\n"), 0o600))
	withGlobals(t, path)

	cmd, _, errOut := newTestCmd("")
	require.NoError(t, runCheckConfig(cmd, nil))
	assert.Equal(t, ExitConfig, overrideExitCode)
	assert.Contains(t, errOut.String(), "api_base_url")
}

func TestRunServe_ConfigLoadFailure(t *testing.T) {
	withGlobals(t, filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	cmd, _, _ := newTestCmd("")
	assert.Error(t, runServe(cmd, nil))
	assert.Equal(t, ExitConfig, overrideExitCode)
}

func TestRunVersion(t *testing.T) {
	oldVersion, oldCommit, oldBuildDate := version, commit, buildDate
	t.Cleanup(func() {
		version, commit, buildDate = oldVersion, oldCommit, oldBuildDate
	})
	version, commit, buildDate = "1.2.3", "deadbeef", "2026-02-17"

	cmd, out, _ := newTestCmd("")
	runVersion(cmd, nil)
	assert.Contains(t, out.String(), "portal-session version 1.2.3")
	assert.Contains(t, out.String(), "deadbeef")
}

func TestRunLogin_Password(t *testing.T) {
	backend := newBackend(t)
	withGlobals(t, writeTestConfig(t, backend.URL))
	loginEmail = "ann@x.com"
	loginPasswordStdin = true

	cmd, out, errOut := newTestCmd("secret\n")
	require.NoError(t, runLogin(cmd, nil))
	assert.Equal(t, -1, overrideExitCode, errOut.String())
	assert.Contains(t, out.String(), "Welcome, Ann Admin!")

	whoamiRemote = true
	cmd, out, _ = newTestCmd("")
	require.NoError(t, runWhoami(cmd, nil))
	assert.Contains(t, out.String(), "Role:  admin")
	assert.Contains(t, out.String(), "Token: true")
	assert.Contains(t, out.String(), "Backend: Ann Admin <ann@x.com> admin")
}

func TestRunLogin_Rejected(t *testing.T) {
	backend := newBackend(t)
	withGlobals(t, writeTestConfig(t, backend.URL))
	loginEmail = "ann@x.com"
	loginPasswordStdin = true

	cmd, _, errOut := newTestCmd("wrong\n")
	require.NoError(t, runLogin(cmd, nil))
	assert.Equal(t, ExitError, overrideExitCode)
	assert.Contains(t, errOut.String(), "Invalid credentials")

	cmd, out, _ := newTestCmd("")
	require.NoError(t, runWhoami(cmd, nil))
	assert.Contains(t, out.String(), "not signed in")
}

func TestRunLogin_RequiresMode(t *testing.T) {
	withGlobals(t, writeTestConfig(t, "http://localhost:5220/api"))

	cmd, _, _ := newTestCmd("")
	assert.Error(t, runLogin(cmd, nil))
}

func TestRunLogin_Google(t *testing.T) {
	withGlobals(t, writeTestConfig(t, "http://localhost:5220/api"))
	t.Setenv("PORTAL_GOOGLE_CLIENT_ID", "cid-123")
	loginGoogle = true

	cmd, out, _ := newTestCmd("")
	require.NoError(t, runLogin(cmd, nil))
	assert.Contains(t, out.String(), "https://accounts.google.com/o/oauth2/v2/auth?")
	assert.Contains(t, out.String(), "client_id=cid-123")
}

func TestRunLogin_GoogleMissingClientID(t *testing.T) {
	withGlobals(t, writeTestConfig(t, "http://localhost:5220/api"))
	loginGoogle = true

	cmd, _, errOut := newTestCmd("")
	assert.Error(t, runLogin(cmd, nil))
	assert.Contains(t, errOut.String(), "Google sign-in is currently unavailable.")
}

func TestRunCallback_ThenLogout(t *testing.T) {
	withGlobals(t, writeTestConfig(t, "http://localhost:5220/api"))

	cmd, out, _ := newTestCmd("")
	require.NoError(t, runCallback(cmd, []string{"http://127.0.0.1:5173/login?token=abc&role=staff&fullname=Jane%20Doe"}))
	assert.Contains(t, out.String(), "Signed in with Google.")
	assert.Contains(t, out.String(), "http://127.0.0.1:5173/login\n")

	cmd, out, _ = newTestCmd("")
	require.NoError(t, runWhoami(cmd, nil))
	assert.Contains(t, out.String(), "Name:  Jane Doe")
	assert.Contains(t, out.String(), "Role:  staff")

	cmd, out, _ = newTestCmd("")
	require.NoError(t, runLogout(cmd, nil))
	assert.Contains(t, out.String(), "signed out")

	cmd, out, _ = newTestCmd("")
	require.NoError(t, runWhoami(cmd, nil))
	assert.Contains(t, out.String(), "not signed in")
}

func TestRunCallback_Failure(t *testing.T) {
	withGlobals(t, writeTestConfig(t, "http://localhost:5220/api"))

	cmd, out, errOut := newTestCmd("")
	require.NoError(t, runCallback(cmd, []string{"http://127.0.0.1:5173/login#/login?oauth=google&status=failed&message=Access%20denied"}))
	assert.Equal(t, ExitError, overrideExitCode)
	assert.Contains(t, errOut.String(), "Access denied")
	assert.Contains(t, out.String(), "http://127.0.0.1:5173/login#/login\n")
}

func TestRunCallback_NotApplicable(t *testing.T) {
	withGlobals(t, writeTestConfig(t, "http://localhost:5220/api"))

	cmd, _, _ := newTestCmd("")
	assert.Error(t, runCallback(cmd, []string{"http://127.0.0.1:5173/login?next=/qa"}))
}

func TestRunUsers(t *testing.T) {
	backend := newBackend(t)
	withGlobals(t, writeTestConfig(t, backend.URL))

	cmd, out, _ := newTestCmd("")
	require.NoError(t, runUsers(cmd, nil))
	assert.Contains(t, out.String(), "1\tSam Student\ts@x.com\tstudent\n")
	assert.Contains(t, out.String(), "7\tAnn Admin\tann@x.com\tadmin\n")
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("p@ss word\r\nignored"))
	require.NoError(t, err)
	assert.Equal(t, "p@ss word", pw)

	pw, err = readPassword(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)
}
