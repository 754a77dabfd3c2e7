// Package session persists the authenticated browsing state between
// runs so a scan does not have to log in every time.
package session

import (
	"net/http"
	"net/url"
	"time"

	"scholar-seeker-ai/lib/browser"
)

type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure"`
	HttpOnly bool      `json:"http_only"`
}

// Session is the serialized auth state of one login: the cookie blob
// plus when it was obtained. Whether it is still fresh is decided by a
// verification probe, not by age.
type Session struct {
	Cookies    []Cookie  `json:"cookies"`
	ObtainedAt time.Time `json:"obtained_at"`
}

func (s Session) IsZero() bool {
	return len(s.Cookies) == 0
}

// Capture reads the cookie state a browser holds for site into a
// persistable session.
func Capture(b browser.Browser, site *url.URL) Session {
	raw := b.Cookies(site)
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return Session{
		Cookies:    cookies,
		ObtainedAt: time.Now().UTC(),
	}
}

// Restore seeds a browser's cookie state for site from a previously
// captured session.
func (s Session) Restore(b browser.Browser, site *url.URL) {
	cookies := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	b.SetCookies(site, cookies)
}
