package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/ojt-portal/portal-session/internal/navigation"
)

// pageData is shared by every template.
type pageData struct {
	Lang      string
	Header    navigation.View
	LoginPath string

	Page          PageState
	ProviderLogin bool

	FullName string
	Error    string
}

func (s *Server) newPageData(r *http.Request) pageData {
	d := pageData{
		Lang:          s.msgs.Lang(),
		LoginPath:     s.cfg.Portal.LoginPath,
		ProviderLogin: true,
	}
	if s.menu != nil {
		s.menu.SetPath(r.URL.Path)
		d.Header = s.menu.View()
	}
	return d
}

// renderLogin renders the login page with whatever the Bootstrapper last
// showed.
func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int) {
	data := s.newPageData(r)
	data.Page = s.surface.Snapshot()
	data.Page.State = s.login.State().String()
	if data.Page.ProviderLogin != nil {
		data.ProviderLogin = *data.Page.ProviderLogin
	}
	s.render(w, status, "login.html", data)
}

// renderHome renders the signed-in landing page.
func (s *Server) renderHome(w http.ResponseWriter, r *http.Request, fullName string) {
	data := s.newPageData(r)
	data.FullName = fullName
	s.render(w, http.StatusOK, "success.html", data)
}

// renderError renders the error page
func (s *Server) renderError(w http.ResponseWriter, status int, errMsg string) {
	data := pageData{Lang: s.msgs.Lang(), LoginPath: s.cfg.Portal.LoginPath, Error: errMsg}
	s.render(w, status, "error.html", data)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
	}
}
