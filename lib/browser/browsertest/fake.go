// Package browsertest provides a canned-page browser.Browser for
// tests.
package browsertest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"scholar-seeker-ai/lib/browser"
)

type Fake struct {
	// Pages maps exact urls to the page a navigation returns.
	Pages map[string]browser.Page
	// NavigateErrs maps exact urls to a navigation failure.
	NavigateErrs map[string]error
	// FormHandler handles SubmitForm calls. When nil, submissions
	// fail.
	FormHandler func(action string, fields url.Values) (browser.Page, error)

	// call logs, inspected by tests
	Navigations []string
	Submissions []string

	cookies map[string][]*http.Cookie
}

var _ browser.Browser = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		Pages:        map[string]browser.Page{},
		NavigateErrs: map[string]error{},
	}
}

func (f *Fake) Navigate(ctx context.Context, link string) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return browser.Page{}, err
	}
	f.Navigations = append(f.Navigations, link)

	if err, ok := f.NavigateErrs[link]; ok {
		return browser.Page{}, err
	}
	page, ok := f.Pages[link]
	if !ok {
		return browser.Page{}, fmt.Errorf("browsertest: no canned page for %q", link)
	}
	if page.URL == "" {
		page.URL = link
	}
	return page, nil
}

func (f *Fake) SubmitForm(ctx context.Context, action string, fields url.Values) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return browser.Page{}, err
	}
	f.Submissions = append(f.Submissions, action)

	if f.FormHandler == nil {
		return browser.Page{}, fmt.Errorf("browsertest: no form handler for %q", action)
	}
	return f.FormHandler(action, fields)
}

func (f *Fake) Cookies(u *url.URL) []*http.Cookie {
	if f.cookies == nil {
		return nil
	}
	return f.cookies[u.Hostname()]
}

func (f *Fake) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if f.cookies == nil {
		f.cookies = map[string][]*http.Cookie{}
	}
	f.cookies[u.Hostname()] = append(f.cookies[u.Hostname()], cookies...)
}
