// Package listing resolves the set of paper ids a scan should walk:
// either a caller-supplied list passed through untouched, or the most
// recent submissions of a category scraped from its listing page.
package listing

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"scholar-seeker-ai/lib/browser"
	"scholar-seeker-ai/lib/htmlutil"
	"scholar-seeker-ai/lib/pagecache"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("scrapers/arxiv/listing")

// ResolutionError means the listing page could not be turned into a
// paper list at all. It aborts the scan before any paper is fetched.
type ResolutionError struct {
	Category string
	Cause    string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not resolve papers for %q: %s: %s", e.Category, e.Cause, e.Err)
	}
	return fmt.Sprintf("could not resolve papers for %q: %s", e.Category, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Config pins the structural anchors of the listing page. The markup
// is a moving target, so the selector and id pattern live in
// configuration instead of the scrape loop.
type Config struct {
	SiteUrl string
	// listing page path template, %s is the category
	RecentPathFormat string
	// selector matching anchors that point at individual papers
	LinkSelector string
	// pattern whose first capture group is the paper id
	IdPattern string
	// phrases that mean the listing is legitimately empty
	EmptyMarkers []string
	// how long a fetched listing page stays cached
	CacheLifetime time.Duration
}

func DefaultConfig() Config {
	return Config{
		SiteUrl:          "https://arxiv.org",
		RecentPathFormat: "/list/%s/recent",
		LinkSelector:     `a[href^="/abs/"]`,
		IdPattern:        `/abs/(\d+\.\d+)`,
		EmptyMarkers:     []string{"no entries", "no listings"},
		CacheLifetime:    time.Minute * 10,
	}
}

type Resolver struct {
	browser browser.Browser
	cache   *pagecache.Cache
	cfg     Config
	pattern *regexp.Regexp
}

// NewResolver builds a resolver. cache may be nil, in which case every
// listing hit goes to the network.
func NewResolver(b browser.Browser, cache *pagecache.Cache, cfg Config) (*Resolver, error) {
	pattern, err := regexp.Compile(cfg.IdPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid paper id pattern %q: %w", cfg.IdPattern, err)
	}
	return &Resolver{
		browser: b,
		cache:   cache,
		cfg:     cfg,
		pattern: pattern,
	}, nil
}

// Explicit passes a caller-supplied id list through as-is: order kept,
// duplicates kept, no validation against the remote site.
func (r *Resolver) Explicit(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Recent scrapes the category's listing page and returns up to limit
// paper ids in page order, deduplicated. A page that yields no ids but
// doesn't look empty is treated as a parse failure, not an empty
// category.
func (r *Resolver) Recent(ctx context.Context, category string, limit int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "resolver:Recent", trace.WithAttributes(
		attribute.String("category", category),
		attribute.Int("limit", limit),
	))
	defer span.End()

	link := r.cfg.SiteUrl + fmt.Sprintf(r.cfg.RecentPathFormat, category)
	body, err := r.fetchListing(ctx, link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing fetch failed")
		return nil, &ResolutionError{Category: category, Cause: "listing page unreachable", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing parse failed")
		return nil, &ResolutionError{Category: category, Cause: "listing page unparseable", Err: err}
	}

	seen := map[string]bool{}
	var ids []string
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find(r.cfg.LinkSelector)) {
		match := r.pattern.FindStringSubmatch(anchor.Href)
		if match == nil {
			continue
		}
		id := match[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}

	if len(ids) == 0 && !r.looksEmpty(doc) {
		span.SetStatus(codes.Error, "no paper links found")
		return nil, &ResolutionError{
			Category: category,
			Cause:    "listing page yielded no paper links, its markup may have changed",
		}
	}

	span.SetAttributes(attribute.Int("papers", len(ids)))
	slog.InfoContext(ctx, "resolved recent papers", "category", category, "count", len(ids))
	return ids, nil
}

func (r *Resolver) fetchListing(ctx context.Context, link string) ([]byte, error) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, link)
		if err == nil {
			return cached, nil
		}
		if err != pagecache.ErrNotFound {
			slog.WarnContext(ctx, "listing cache read failed", "err", err)
		}
	}

	page, err := r.browser.Navigate(ctx, link)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		err = r.cache.Set(ctx, link, page.Body, r.cfg.CacheLifetime)
		if err != nil {
			slog.WarnContext(ctx, "listing cache write failed", "err", err)
		}
	}
	return page.Body, nil
}

func (r *Resolver) looksEmpty(doc *goquery.Document) bool {
	body := strings.ToLower(doc.Text())
	for _, marker := range r.cfg.EmptyMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
