package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Negotiation(t *testing.T) {
	tests := []struct {
		name  string
		prefs []string
		want  string
	}{
		{name: "no preference defaults to english", prefs: nil, want: "en"},
		{name: "vietnamese", prefs: []string{"vi"}, want: "vi"},
		{name: "japanese region", prefs: []string{"ja-JP"}, want: "ja"},
		{name: "accept-language header", prefs: []string{"fr-FR, vi;q=0.8"}, want: "vi"},
		{name: "unsupported falls back", prefs: []string{"de"}, want: "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.prefs...).Lang())
		})
	}
}

func TestCatalog_T(t *testing.T) {
	en := New("en")
	assert.Equal(t, "Login failed.", en.T(KeyLoginFailed))
	assert.Equal(t, "Welcome, Jane!", en.T(KeyWelcome, "Jane"))
	assert.Equal(t, "unknown_key", en.T("unknown_key"))

	vi := New("vi")
	assert.Equal(t, "Chào mừng, Jane!", vi.T(KeyWelcome, "Jane"))
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	for key := range catalogs[New("en").tag] {
		for tag, msgs := range catalogs {
			_, ok := msgs[key]
			assert.Truef(t, ok, "catalog %s missing key %q", tag, key)
		}
	}
}
