// Package auth obtains a valid authenticated session for the remote
// repository: reuse the persisted one when a verification probe says
// it is still good, otherwise run the interactive login flow once and
// persist the result.
package auth

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"scholar-seeker-ai/lib/browser"
	"scholar-seeker-ai/lib/scrapers/arxiv/session"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/arxiv/auth")

type Credentials struct {
	Username string
	Password string
}

// AuthenticationError means no valid session is obtainable: wrong
// credentials, an unexpected login page, or a timeout during the flow.
// It aborts a scan before any paper is touched.
type AuthenticationError struct {
	Cause string
	Err   error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %s", e.Cause, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Cause)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Config holds the structural anchors of the login surface. The markup
// is a third-party contract that drifts, so selectors and markers are
// configuration rather than hard-coded assumptions.
type Config struct {
	SiteUrl   string
	LoginPath string
	// an authenticated-only page used as the verification probe
	ProbePath string
	// substring of a url that means we were bounced to the login page
	LoginUrlMarker string
	// body markers that only render for a logged-in account
	LogoutMarkers []string
	// fallback chain of selectors for the credential fields
	UsernameSelectors []string
	PasswordSelectors []string
	// how long a verified session is trusted without re-probing
	ProbeLifetime time.Duration
}

func DefaultConfig() Config {
	return Config{
		SiteUrl:        "https://arxiv.org",
		LoginPath:      "/login",
		ProbePath:      "/user/",
		LoginUrlMarker: "/login",
		LogoutMarkers:  []string{"logout", "log out"},
		UsernameSelectors: []string{
			"input[name=username]",
			"input#username",
			"input[type=text]",
		},
		PasswordSelectors: []string{
			"input[name=password]",
			"input#password",
			"input[type=password]",
		},
		ProbeLifetime: time.Minute * 15,
	}
}

type Manager struct {
	browser browser.Browser
	store   session.Store
	cfg     Config
	site    *url.URL

	// memo of sessions that recently passed the probe, keyed by
	// username, so back-to-back acquires skip the remote round trip
	verified *expirable.LRU[string, session.Session]
}

func NewManager(b browser.Browser, store session.Store, cfg Config) (*Manager, error) {
	site, err := url.Parse(cfg.SiteUrl)
	if err != nil {
		return nil, err
	}
	return &Manager{
		browser:  b,
		store:    store,
		cfg:      cfg,
		site:     site,
		verified: expirable.NewLRU[string, session.Session](16, nil, cfg.ProbeLifetime),
	}, nil
}

// Acquire returns a valid session. Unless forceLogin is set it first
// tries the persisted session and keeps it when the verification probe
// passes. Otherwise it performs exactly one login attempt, retry
// policy belongs to the caller.
func (m *Manager) Acquire(ctx context.Context, creds Credentials, forceLogin bool) (session.Session, error) {
	ctx, span := tracer.Start(ctx, "manager:Acquire")
	defer span.End()

	if !forceLogin {
		if memo, ok := m.verified.Get(creds.Username); ok {
			span.SetStatus(codes.Ok, "recently verified session")
			return memo, nil
		}

		loaded, ok := m.store.Load()
		if ok {
			loaded.Restore(m.browser, m.site)
			if m.probe(ctx) {
				slog.InfoContext(ctx, "reusing saved session", "obtained_at", loaded.ObtainedAt)
				m.verified.Add(creds.Username, loaded)
				return loaded, nil
			}
			slog.InfoContext(ctx, "saved session is stale, logging in again")
		}
	}

	return m.login(ctx, creds)
}

// Invalidate drops the in-process verified-session memo. Called when a
// fetch reports the session went stale mid-run.
func (m *Manager) Invalidate() {
	m.verified.Purge()
}

// ClearSession removes the persisted session. Idempotent.
func (m *Manager) ClearSession() error {
	m.verified.Purge()
	return m.store.Clear()
}

// Verify runs the verification probe against the current browser
// state.
func (m *Manager) Verify(ctx context.Context) bool {
	return m.probe(ctx)
}

// VerifySaved restores the persisted session into the browser and
// probes it. Reports false when no session is saved or the probe
// fails, without ever attempting a login.
func (m *Manager) VerifySaved(ctx context.Context) bool {
	loaded, ok := m.store.Load()
	if !ok {
		return false
	}
	loaded.Restore(m.browser, m.site)
	return m.Verify(ctx)
}

// probe makes a single authenticated navigation that only succeeds for
// a live session. Being bounced to the login page means stale.
func (m *Manager) probe(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "manager:probe")
	defer span.End()

	page, err := m.browser.Navigate(ctx, m.cfg.SiteUrl+m.cfg.ProbePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe navigation failed")
		return false
	}

	if m.hasLogoutMarker(page) {
		return true
	}
	if strings.Contains(page.URL, m.cfg.LoginUrlMarker) {
		span.SetStatus(codes.Error, "probe bounced to login page")
		return false
	}
	return true
}

func (m *Manager) hasLogoutMarker(page browser.Page) bool {
	body := strings.ToLower(string(page.Body))
	for _, marker := range m.cfg.LogoutMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func firstInputName(doc *goquery.Document, selectors []string, fallback string) string {
	for _, sel := range selectors {
		input := doc.Find(sel).First()
		if input.Length() == 0 {
			continue
		}
		if name, ok := input.Attr("name"); ok && name != "" {
			return name
		}
	}
	return fallback
}

func (m *Manager) login(ctx context.Context, creds Credentials) (session.Session, error) {
	ctx, span := tracer.Start(ctx, "manager:login")
	defer span.End()

	if creds.Username == "" || creds.Password == "" {
		span.SetStatus(codes.Error, "missing credentials")
		return session.Session{}, &AuthenticationError{Cause: "username and password are required"}
	}

	slog.InfoContext(ctx, "logging in", "username", creds.Username)

	loginUrl := m.cfg.SiteUrl + m.cfg.LoginPath
	page, err := m.browser.Navigate(ctx, loginUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open login page")
		return session.Session{}, &AuthenticationError{Cause: "could not open login page", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page.Body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse login page")
		return session.Session{}, &AuthenticationError{Cause: "could not parse login page", Err: err}
	}

	form := loginForm(doc)
	fields := url.Values{}
	// hidden fields carry the csrf token and friends, they must be
	// posted back untouched
	form.Find("input[type=hidden]").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		fields.Set(name, input.AttrOr("value", ""))
	})
	fields.Set(firstInputName(doc, m.cfg.UsernameSelectors, "username"), creds.Username)
	fields.Set(firstInputName(doc, m.cfg.PasswordSelectors, "password"), creds.Password)

	action := loginUrl
	if raw, ok := form.Attr("action"); ok && raw != "" {
		if base, err := url.Parse(page.URL); err == nil {
			if resolved, err := base.Parse(raw); err == nil {
				action = resolved.String()
			}
		}
	}

	landed, err := m.browser.SubmitForm(ctx, action, fields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login submission failed")
		return session.Session{}, &AuthenticationError{Cause: "login submission failed", Err: err}
	}

	if !m.hasLogoutMarker(landed) && strings.Contains(landed.URL, m.cfg.LoginUrlMarker) {
		span.SetStatus(codes.Error, "still on login page after submission")
		return session.Session{}, &AuthenticationError{Cause: "login rejected, check credentials"}
	}

	captured := session.Capture(m.browser, m.site)
	if captured.IsZero() {
		span.SetStatus(codes.Error, "no session cookies after login")
		return session.Session{}, &AuthenticationError{Cause: "login produced no session cookies"}
	}

	err = m.store.Save(captured)
	if err != nil {
		// the session still works for this run, it just won't survive
		// the process
		slog.WarnContext(ctx, "failed to persist session", "err", err)
	}

	m.verified.Add(creds.Username, captured)
	slog.InfoContext(ctx, "login successful", "session_file", m.store.Path())
	return captured, nil
}

// loginForm returns the form holding the password field, or the first
// form on the page when none obviously does.
func loginForm(doc *goquery.Document) *goquery.Selection {
	forms := doc.Find("form")
	withPassword := forms.FilterFunction(func(_ int, f *goquery.Selection) bool {
		return f.Find("input[type=password]").Length() > 0
	})
	if withPassword.Length() > 0 {
		return withPassword.First()
	}
	return forms.First()
}
