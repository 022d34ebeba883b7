package httpserver

import (
	"sync"

	"github.com/ojt-portal/portal-session/internal/bootstrap"
)

// Navigation is a pending client-side navigation.
type Navigation struct {
	Path    string `json:"path"`
	Replace bool   `json:"replace"`
}

// PageState is what the login page shows. login.js polls it to follow
// navigations made after the page was served.
type PageState struct {
	Notice        string      `json:"notice,omitempty"`
	Error         string      `json:"error,omitempty"`
	ReplaceURL    string      `json:"replace_url,omitempty"`
	Navigate      *Navigation `json:"navigate,omitempty"`
	ProviderLogin *bool       `json:"provider_login,omitempty"`
	State         string      `json:"state"`
}

// PageSurface records what the Bootstrapper asks the page to show.
type PageSurface struct {
	mu    sync.Mutex
	state PageState
}

var _ bootstrap.Surface = (*PageSurface)(nil)

// NewPageSurface returns an empty surface.
func NewPageSurface() *PageSurface {
	return &PageSurface{}
}

func (p *PageSurface) Notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Notice = msg
	p.state.Error = ""
}

func (p *PageSurface) Error(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Error = msg
	p.state.Notice = ""
}

func (p *PageSurface) ReplaceURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ReplaceURL = url
}

func (p *PageSurface) Navigate(path string, replace bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Navigate = &Navigation{Path: path, Replace: replace}
}

func (p *PageSurface) ProviderLoginAvailable(available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ProviderLogin = &available
}

// Reset clears the page before a new mount.
func (p *PageSurface) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PageState{}
}

// Snapshot returns a copy of the current page state.
func (p *PageSurface) Snapshot() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	if s.Navigate != nil {
		nav := *s.Navigate
		s.Navigate = &nav
	}
	if s.ProviderLogin != nil {
		v := *s.ProviderLogin
		s.ProviderLogin = &v
	}
	return s
}
