// Package browser abstracts the browsing engine that drives remote
// sites: navigate to a url, read the rendered page, post a form, and
// carry cookie state across requests. Scraping code is written against
// this interface so the engine behind it stays swappable and tests can
// inject canned pages.
package browser

import (
	"context"
	"net/http"
	"net/url"
)

// Page is the rendered result of a navigation. URL is the final
// location after redirects, which callers inspect to detect login
// bounces.
type Page struct {
	URL   string
	Title string
	Body  []byte
}

type Browser interface {
	// Navigate fetches url and returns the rendered page. The page is
	// returned even for non-2xx statuses, the remote service reports
	// most failures as styled error pages rather than bare statuses.
	Navigate(ctx context.Context, url string) (Page, error)

	// SubmitForm posts fields to action and returns the page the
	// submission lands on, following redirects.
	SubmitForm(ctx context.Context, action string, fields url.Values) (Page, error)

	// Cookies returns the cookie state held for u.
	Cookies(u *url.URL) []*http.Cookie

	// SetCookies seeds cookie state for u, used to restore a persisted
	// session into a fresh engine.
	SetCookies(u *url.URL, cookies []*http.Cookie)
}
