package origin

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kmlstore/pkg/apperr"
)

func newTestAuthorizer(t *testing.T) *Authorizer {
	t.Helper()
	authorizer, err := New([]string{
		`map\.geo\.example\.ch`,
		`https://map\.geo\.example\.ch`,
		`https://.*\.example\.ch`,
	})
	require.NoError(t, err)
	return authorizer
}

func TestAuthorizeDecisionOrder(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		allowed bool
	}{
		{"allowed origin", map[string]string{"Origin": "map.geo.example.ch"}, true},
		{"allowed origin with scheme", map[string]string{"Origin": "https://map.geo.example.ch"}, true},
		{"bad origin", map[string]string{"Origin": "big-bad-wolf.com"}, false},
		{"origin must match at start", map[string]string{"Origin": "evil.com/map.geo.example.ch"}, false},

		// A bad Origin rejects even when other headers would pass.
		{"bad origin wins over sec-fetch-site", map[string]string{
			"Origin":         "big-bad-wolf.com",
			"Sec-Fetch-Site": "same-origin",
		}, false},
		{"bad origin wins over referer", map[string]string{
			"Origin":  "big-bad-wolf.com",
			"Referer": "https://map.geo.example.ch/",
		}, false},

		{"same-origin fetch", map[string]string{"Sec-Fetch-Site": "same-origin"}, true},
		{"same-site fetch", map[string]string{"Sec-Fetch-Site": "same-site"}, true},
		{"cross-site fetch", map[string]string{"Sec-Fetch-Site": "cross-site"}, false},
		{"cross-site fetch with good referer", map[string]string{
			"Sec-Fetch-Site": "cross-site",
			"Referer":        "https://map.geo.example.ch/",
		}, false},

		{"allowed referer", map[string]string{"Referer": "https://map.geo.example.ch/page"}, true},
		{"allowed referer wildcard", map[string]string{"Referer": "https://api.example.ch/x"}, true},
		{"bad referer", map[string]string{"Referer": "https://big-bad-wolf.com/"}, false},

		{"no headers at all", map[string]string{}, false},
	}

	authorizer := newTestAuthorizer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			for key, value := range tt.headers {
				headers.Set(key, value)
			}

			err := authorizer.Authorize(headers)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
				assert.Equal(t, "Permission denied", apperr.MessageOf(err))
			}
		})
	}
}

func TestDomainAllowed(t *testing.T) {
	authorizer := newTestAuthorizer(t)

	assert.True(t, authorizer.DomainAllowed("map.geo.example.ch"))
	assert.True(t, authorizer.DomainAllowed("https://sub.example.ch"))
	assert.False(t, authorizer.DomainAllowed("example.com"))
	assert.False(t, authorizer.DomainAllowed("prefix-map.geo.example.ch"))
}

func TestNewInvalidPattern(t *testing.T) {
	_, err := New([]string{`[invalid`})
	assert.Error(t, err)
}

func TestWildcardDefault(t *testing.T) {
	// The default configuration allows everything.
	authorizer, err := New([]string{`.*`})
	require.NoError(t, err)
	assert.True(t, authorizer.DomainAllowed("anything-at-all"))
}
