package endorser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"scholar-seeker-ai/lib/browser"
	"scholar-seeker-ai/lib/browser/browsertest"
	"scholar-seeker-ai/lib/pacer"
	"scholar-seeker-ai/lib/scrapers/arxiv/auth"
	"scholar-seeker-ai/lib/scrapers/arxiv/endorse"
	"scholar-seeker-ai/lib/scrapers/arxiv/listing"
	"scholar-seeker-ai/lib/scrapers/arxiv/session"

	"github.com/stretchr/testify/require"
)

const userPage = `<html><head><title>Your arXiv.org account</title></head>
<body><a href="/logout">Logout</a></body></html>`

const loginPage = `<html><head><title>Login</title></head><body>
<form action="/login" method="post">
<input type="text" name="username">
<input type="password" name="password">
</form></body></html>`

func endorsersUrl(paperId string) string {
	return "https://arxiv.org/auth/show-endorsers/" + paperId
}

func endorsersPage(paperId string, names map[string]bool) browser.Page {
	body := `<html><head><title>Endorsers for arXiv:` + paperId + `</title></head><body><table>`
	for name, eligible := range names {
		verdict := "cannot endorse"
		if eligible {
			verdict = "can endorse"
		}
		body += fmt.Sprintf(`<tr><td><b>%s:</b> %s other users.</td></tr>`, name, verdict)
	}
	body += `</table></body></html>`
	return browser.Page{Title: "Endorsers for arXiv:" + paperId, Body: []byte(body)}
}

type harness struct {
	fake    *browsertest.Fake
	store   session.Store
	service *Service
}

func newHarness(t *testing.T, loggedIn bool) *harness {
	t.Helper()

	fake := browsertest.NewFake()
	fake.Pages["https://arxiv.org/user/"] = browser.Page{
		Title: "Your arXiv.org account",
		Body:  []byte(userPage),
	}
	fake.Pages["https://arxiv.org/login"] = browser.Page{
		Title: "Login",
		Body:  []byte(loginPage),
	}

	store := session.NewStore(filepath.Join(t.TempDir(), "state.json"))
	if loggedIn {
		err := store.Save(session.Session{
			Cookies: []session.Cookie{{Name: "arxiv_session", Value: "abc", Domain: "arxiv.org", Path: "/"}},
		})
		require.NoError(t, err)
	}

	authManager, err := auth.NewManager(fake, store, auth.DefaultConfig())
	require.NoError(t, err)
	resolver, err := listing.NewResolver(fake, nil, listing.DefaultConfig())
	require.NoError(t, err)

	return &harness{
		fake:  fake,
		store: store,
		service: NewService(
			authManager,
			resolver,
			endorse.NewFetcher(fake, endorse.DefaultFetchConfig()),
			endorse.NewParser(endorse.DefaultParseConfig()),
			pacer.New(time.Millisecond),
		),
	}
}

func creds() auth.Credentials {
	return auth.Credentials{Username: "u", Password: "p"}
}

func TestScanRecordsEveryPaperInOrder(t *testing.T) {
	h := newHarness(t, true)
	h.fake.Pages[endorsersUrl("2401.00001")] = endorsersPage("2401.00001", map[string]bool{"Jane Smith": true})
	h.fake.Pages[endorsersUrl("2401.00002")] = endorsersPage("2401.00002", map[string]bool{"Wei Chen": false})

	report, err := h.service.Scan(context.Background(), Request{
		Credentials: creds(),
		Papers:      []string{"2401.00001", "2401.00002"},
	})
	require.NoError(t, err)

	require.Equal(t, 2, report.PapersScanned)
	require.Len(t, report.Results, 2)
	require.Equal(t, "2401.00001", report.Results[0].PaperId)
	require.Equal(t, []string{"Jane Smith"}, report.Results[0].Endorsers)
	require.Nil(t, report.Results[0].Error)
	require.Equal(t, "2401.00002", report.Results[1].PaperId)
	require.Empty(t, report.Results[1].Endorsers)
	require.Equal(t, []string{"Wei Chen"}, report.Results[1].Authors)

	require.Equal(t, StateDone, h.service.Progress().State)
}

func TestScanResolvesCategoryWhenNoExplicitPapers(t *testing.T) {
	h := newHarness(t, true)
	h.fake.Pages["https://arxiv.org/list/cs.LG/recent"] = browser.Page{
		Body: []byte(`<html><body><a href="/abs/2401.00001">arXiv:2401.00001</a></body></html>`),
	}
	h.fake.Pages[endorsersUrl("2401.00001")] = endorsersPage("2401.00001", map[string]bool{"Jane Smith": true})

	report, err := h.service.Scan(context.Background(), Request{
		Credentials: creds(),
		Category:    "cs.LG",
		Limit:       5,
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.PapersScanned)
	require.Equal(t, "cs.LG", report.Category)
}

func TestScanRecordsFailuresAndContinues(t *testing.T) {
	h := newHarness(t, true)
	h.fake.Pages[endorsersUrl("2401.00001")] = endorsersPage("2401.00001", map[string]bool{"Jane Smith": true})
	h.fake.Pages[endorsersUrl("2401.00002")] = browser.Page{
		Title: "Article not found",
		Body:  []byte("<html></html>"),
	}
	h.fake.Pages[endorsersUrl("2401.00003")] = endorsersPage("2401.00003", map[string]bool{"Wei Chen": true})

	report, err := h.service.Scan(context.Background(), Request{
		Credentials: creds(),
		Papers:      []string{"2401.00001", "2401.00002", "2401.00003"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, report.PapersScanned)

	require.Nil(t, report.Results[0].Error)
	require.NotNil(t, report.Results[1].Error)
	require.Equal(t, "NotFound", *report.Results[1].Error)
	require.Empty(t, report.Results[1].Authors)
	require.Nil(t, report.Results[2].Error)
}

func TestScanRecordsTimeoutAndContinues(t *testing.T) {
	h := newHarness(t, true)
	h.fake.Pages[endorsersUrl("2307.09288")] = endorsersPage("2307.09288", map[string]bool{"A": true})
	h.fake.NavigateErrs[endorsersUrl("2106.09685")] = context.DeadlineExceeded

	report, err := h.service.Scan(context.Background(), Request{
		Credentials: creds(),
		Papers:      []string{"2307.09288", "2106.09685"},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	require.Equal(t, []string{"A"}, report.Results[0].Endorsers)
	require.Nil(t, report.Results[0].Error)

	require.NotNil(t, report.Results[1].Error)
	require.Equal(t, "Timeout", *report.Results[1].Error)
	require.Empty(t, report.Results[1].Authors)
	require.Empty(t, report.Results[1].Endorsers)
}

func TestScanRecoversFromStaleSessionOnce(t *testing.T) {
	h := newHarness(t, true)
	papers := []string{"2401.00001", "2401.00002", "2401.00003"}
	h.fake.Pages[endorsersUrl("2401.00001")] = endorsersPage("2401.00001", map[string]bool{"Jane Smith": true})
	h.fake.Pages[endorsersUrl("2401.00003")] = endorsersPage("2401.00003", map[string]bool{"Wei Chen": true})

	// warm the verified-session memo while the session still works
	_, err := h.service.auth.Acquire(context.Background(), creds(), false)
	require.NoError(t, err)

	// then the session expires server-side: the probe page and paper
	// 2's page both bounce to login until we log in again
	stale := browser.Page{
		URL:   "https://arxiv.org/login?next_page=" + endorsersUrl("2401.00002"),
		Title: "Login",
		Body:  []byte(loginPage),
	}
	h.fake.Pages[endorsersUrl("2401.00002")] = stale
	goodProbe := h.fake.Pages["https://arxiv.org/user/"]
	h.fake.Pages["https://arxiv.org/user/"] = browser.Page{
		URL:   "https://arxiv.org/login?next_page=/user/",
		Title: "Login",
		Body:  []byte(loginPage),
	}

	site, err := url.Parse("https://arxiv.org")
	require.NoError(t, err)
	h.fake.FormHandler = func(action string, fields url.Values) (browser.Page, error) {
		h.fake.SetCookies(site, []*http.Cookie{{Name: "arxiv_session", Value: "fresh", Path: "/"}})
		h.fake.Pages[endorsersUrl("2401.00002")] = endorsersPage("2401.00002", map[string]bool{"Maria García": true})
		h.fake.Pages["https://arxiv.org/user/"] = goodProbe
		return browser.Page{URL: "https://arxiv.org/user/", Body: []byte(userPage)}, nil
	}

	report, err := h.service.Scan(context.Background(), Request{
		Credentials: creds(),
		Papers:      papers,
	})
	require.NoError(t, err)
	require.Equal(t, 3, report.PapersScanned)

	for _, rec := range report.Results {
		require.Nil(t, rec.Error)
	}
	require.Equal(t, []string{"Maria García"}, report.Results[1].Endorsers)

	// exactly one re-login happened
	require.Len(t, h.fake.Submissions, 1)
}

func TestStaleSessionRetryGoesThroughPacer(t *testing.T) {
	h := newHarness(t, true)

	// warm the verified-session memo while the session still works
	_, err := h.service.auth.Acquire(context.Background(), creds(), false)
	require.NoError(t, err)

	stale := browser.Page{
		URL:   "https://arxiv.org/login?next_page=" + endorsersUrl("2401.00001"),
		Title: "Login",
		Body:  []byte(loginPage),
	}
	h.fake.Pages[endorsersUrl("2401.00001")] = stale
	goodProbe := h.fake.Pages["https://arxiv.org/user/"]
	h.fake.Pages["https://arxiv.org/user/"] = browser.Page{
		URL:   "https://arxiv.org/login?next_page=/user/",
		Title: "Login",
		Body:  []byte(loginPage),
	}

	site, err := url.Parse("https://arxiv.org")
	require.NoError(t, err)
	h.fake.FormHandler = func(action string, fields url.Values) (browser.Page, error) {
		h.fake.SetCookies(site, []*http.Cookie{{Name: "arxiv_session", Value: "fresh", Path: "/"}})
		h.fake.Pages[endorsersUrl("2401.00001")] = endorsersPage("2401.00001", map[string]bool{"Jane Smith": true})
		h.fake.Pages["https://arxiv.org/user/"] = goodProbe
		return browser.Page{URL: "https://arxiv.org/user/", Body: []byte(userPage)}, nil
	}

	interval := time.Millisecond * 300
	paced := NewService(h.service.auth, h.service.resolver, h.service.fetcher, h.service.parser, pacer.New(interval))

	start := time.Now()
	report, err := paced.Scan(context.Background(), Request{
		Credentials: creds(),
		Papers:      []string{"2401.00001"},
	})
	elapsed := time.Since(start)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	require.Nil(t, report.Results[0].Error)

	// the first fetch is immediate, so the retried fetch is the one
	// that must have waited out the pacer interval
	require.GreaterOrEqual(t, elapsed, interval)
}

func TestScanEmptyResolutionYieldsEmptyReport(t *testing.T) {
	h := newHarness(t, true)
	h.fake.Pages["https://arxiv.org/list/cs.XX/recent"] = browser.Page{
		Body: []byte(`<html><body><p>No entries for this period.</p></body></html>`),
	}

	report, err := h.service.Scan(context.Background(), Request{
		Credentials: creds(),
		Category:    "cs.XX",
		Limit:       5,
	})
	require.NoError(t, err)
	require.Equal(t, 0, report.PapersScanned)
	require.Empty(t, report.Results)
	require.Equal(t, StateDone, h.service.Progress().State)
}

func TestScanCancellationReturnsPartialReport(t *testing.T) {
	h := newHarness(t, true)
	h.fake.Pages[endorsersUrl("2401.00001")] = endorsersPage("2401.00001", map[string]bool{"Jane Smith": true})
	h.fake.Pages[endorsersUrl("2401.00002")] = endorsersPage("2401.00002", map[string]bool{"Wei Chen": true})

	// slow pacer plus a short deadline cancels the scan between the
	// first and second paper
	slow := NewService(h.service.auth, h.service.resolver, h.service.fetcher, h.service.parser, pacer.New(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*250)
	defer cancel()

	report, err := slow.Scan(ctx, Request{
		Credentials: creds(),
		Papers:      []string{"2401.00001", "2401.00002"},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the first paper's record survives, nothing half-finished
	require.Equal(t, 1, report.PapersScanned)
	require.Len(t, report.Results, 1)
	require.Equal(t, "2401.00001", report.Results[0].PaperId)
}

func TestScanAbortsWhenAuthenticationFails(t *testing.T) {
	h := newHarness(t, false)
	h.fake.FormHandler = func(action string, fields url.Values) (browser.Page, error) {
		return browser.Page{URL: "https://arxiv.org/login?error=1", Title: "Login", Body: []byte(loginPage)}, nil
	}

	report, err := h.service.Scan(context.Background(), Request{
		Credentials: creds(),
		Papers:      []string{"2401.00001"},
	})
	var authErr *auth.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Empty(t, report.Results)
	require.Empty(t, h.fake.Navigations[1:], "no papers touched after a failed login")
	require.Equal(t, StateFailed, h.service.Progress().State)
}

func TestRecordJsonContract(t *testing.T) {
	rec := Record{
		PaperId:        "2307.09288",
		Authors:        []string{"A", "B"},
		Endorsers:      []string{"A"},
		CheckTimestamp: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	out, err := json.Marshal(rec)
	require.NoError(t, err)

	// downstream tooling depends on these exact fields, error must be
	// an explicit null on success
	require.JSONEq(t, `{
		"arxiv_id": "2307.09288",
		"authors": ["A", "B"],
		"endorsers": ["A"],
		"check_timestamp": "2024-01-15T12:00:00Z",
		"error": null
	}`, string(out))
}

func TestReportEndorsable(t *testing.T) {
	report := Report{Results: []Record{
		{PaperId: "a", Endorsers: []string{"Jane Smith"}},
		{PaperId: "b", Endorsers: []string{}},
		{PaperId: "c", Endorsers: []string{"Wei Chen"}},
	}}
	got := report.Endorsable()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].PaperId)
	require.Equal(t, "c", got[1].PaperId)
}

func TestReportFindEndorsers(t *testing.T) {
	report := Report{Results: []Record{
		{PaperId: "a", Authors: []string{"Jane Smith"}, Endorsers: []string{"Jane Smith"}},
		{PaperId: "b", Authors: []string{"Jane Smith"}, Endorsers: []string{}},
		{PaperId: "c", Authors: []string{"Wei Chen"}, Endorsers: []string{"Wei Chen"}},
	}}

	// matching is whitespace and case insensitive, and only ever
	// against eligible endorsers, not mere authors
	got := report.FindEndorsers([]string{"jane  SMITH"})
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].PaperId)

	require.Empty(t, report.FindEndorsers([]string{"nobody"}))
}
