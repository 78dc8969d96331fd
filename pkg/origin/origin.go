package origin

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/log"
)

// Authorizer decides from request headers alone whether the calling
// origin is permitted. The Origin header is set by the browser and cannot
// be changed by the page, but it is only present on cross-origin
// requests. Sec-Fetch-Site is the modern replacement, except Safari does
// not send it, hence the Referer fallback. A request carrying none of the
// three headers is rejected rather than allowed by default.
type Authorizer struct {
	pattern *regexp.Regexp
}

// New compiles the allow-list out of the configured domain patterns. Each
// entry is a regular expression matched against the start of the header
// value.
func New(allowedDomains []string) (*Authorizer, error) {
	pattern, err := regexp.Compile(fmt.Sprintf("^(%s)", strings.Join(allowedDomains, "|")))
	if err != nil {
		return nil, fmt.Errorf("compile allowed domains pattern: %w", err)
	}
	return &Authorizer{pattern: pattern}, nil
}

// DomainAllowed reports whether the given header value matches the
// allow-list pattern. The match is anchored at the start of the value.
func (a *Authorizer) DomainAllowed(domain string) bool {
	return a.pattern.MatchString(domain)
}

// Authorize applies the decision order: Origin first, then
// Sec-Fetch-Site, then Referer. The first header present decides; a
// non-matching value rejects immediately regardless of the others.
func (a *Authorizer) Authorize(headers http.Header) error {
	if origin := headers.Get("Origin"); origin != "" {
		if a.DomainAllowed(origin) {
			return nil
		}
		log.Error().Str("origin", origin).Msg("Origin is not allowed")
		return apperr.New(apperr.KindForbidden, "Permission denied")
	}

	if secFetchSite := headers.Get("Sec-Fetch-Site"); secFetchSite != "" {
		if secFetchSite == "same-origin" || secFetchSite == "same-site" {
			return nil
		}
		log.Error().Str("sec_fetch_site", secFetchSite).Msg("Sec-Fetch-Site is not allowed")
		return apperr.New(apperr.KindForbidden, "Permission denied")
	}

	if referrer := headers.Get("Referer"); referrer != "" {
		if a.DomainAllowed(referrer) {
			return nil
		}
		log.Error().Str("referer", referrer).Msg("Referer is not allowed")
		return apperr.New(apperr.KindForbidden, "Permission denied")
	}

	log.Error().Msg("Referer and/or Origin and/or Sec-Fetch-Site headers not set")
	return apperr.New(apperr.KindForbidden, "Permission denied")
}
