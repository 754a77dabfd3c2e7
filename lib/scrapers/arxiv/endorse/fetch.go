// Package endorse fetches a paper's endorsement page and extracts who
// is eligible to endorse from it.
package endorse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"scholar-seeker-ai/lib/browser"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("scrapers/arxiv/endorse")

// FailureKind classifies a per-paper fetch failure. Unauthorized is
// the only kind the caller reacts to specially, the rest are recorded
// and skipped.
type FailureKind string

const (
	NotFound     FailureKind = "NotFound"
	Unauthorized FailureKind = "Unauthorized"
	Timeout      FailureKind = "Timeout"
	Unknown      FailureKind = "Unknown"
)

type FetchError struct {
	PaperId string
	Kind    FailureKind
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching endorsement page for %s: %s: %s", e.PaperId, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetching endorsement page for %s: %s", e.PaperId, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchConfig pins the endorsement page anchors.
type FetchConfig struct {
	SiteUrl string
	// endorsement page path template, %s is the paper id
	PathFormat string
	// title fragments that mean the paper does not exist
	NotFoundMarkers []string
	// title or url fragments that mean the session went stale
	LoginMarkers []string
}

func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		SiteUrl:         "https://arxiv.org",
		PathFormat:      "/auth/show-endorsers/%s",
		NotFoundMarkers: []string{"not found", "error"},
		LoginMarkers:    []string{"log in", "login"},
	}
}

type Fetcher struct {
	browser browser.Browser
	cfg     FetchConfig
}

func NewFetcher(b browser.Browser, cfg FetchConfig) *Fetcher {
	return &Fetcher{browser: b, cfg: cfg}
}

// Fetch retrieves one paper's endorsement page. Failures come back as
// a *FetchError whose Kind tells the caller whether to re-auth, skip,
// or give up.
func (f *Fetcher) Fetch(ctx context.Context, paperId string) (browser.Page, error) {
	ctx, span := tracer.Start(ctx, "fetcher:Fetch", trace.WithAttributes(
		attribute.String("paper_id", paperId),
	))
	defer span.End()

	link := f.cfg.SiteUrl + fmt.Sprintf(f.cfg.PathFormat, paperId)
	page, err := f.browser.Navigate(ctx, link)
	if err != nil {
		kind := Unknown
		if isTimeout(err) {
			kind = Timeout
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		return browser.Page{}, &FetchError{PaperId: paperId, Kind: kind, Err: err}
	}

	title := strings.ToLower(page.Title)
	finalUrl := strings.ToLower(page.URL)

	// stale-session check comes first, "log in" in the title would
	// otherwise look like an error page
	for _, marker := range f.cfg.LoginMarkers {
		if strings.Contains(title, marker) || strings.Contains(finalUrl, marker) {
			span.SetStatus(codes.Error, string(Unauthorized))
			return browser.Page{}, &FetchError{PaperId: paperId, Kind: Unauthorized}
		}
	}
	for _, marker := range f.cfg.NotFoundMarkers {
		if strings.Contains(title, marker) {
			span.SetStatus(codes.Error, string(NotFound))
			return browser.Page{}, &FetchError{PaperId: paperId, Kind: NotFound}
		}
	}

	return page, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
