// Package endorser drives a full scan: authenticate once, resolve the
// paper list, then walk it paced, fetching and parsing each paper's
// endorsement page into a report.
package endorser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scholar-seeker-ai/lib/pacer"
	"scholar-seeker-ai/lib/scrapers/arxiv/auth"
	"scholar-seeker-ai/lib/scrapers/arxiv/endorse"
	"scholar-seeker-ai/lib/scrapers/arxiv/listing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/endorser")

type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateResolving      State = "resolving"
	StateScanning       State = "scanning"
	StateDone           State = "done"
	// only authentication and resolution failures are terminal,
	// per-paper failures never are
	StateFailed State = "failed"
)

// Progress is a snapshot of where a scan currently is, safe to read
// from another goroutine.
type Progress struct {
	State   State
	Scanned int
	Total   int
}

// Request describes one scan. Papers, when non-empty, wins over
// Category.
type Request struct {
	Credentials auth.Credentials
	Category    string
	Papers      []string
	Limit       int
}

type Service struct {
	auth     *auth.Manager
	resolver *listing.Resolver
	fetcher  *endorse.Fetcher
	parser   *endorse.Parser
	pacer    *pacer.Pacer

	mu       sync.Mutex
	progress Progress
}

func NewService(
	authManager *auth.Manager,
	resolver *listing.Resolver,
	fetcher *endorse.Fetcher,
	parser *endorse.Parser,
	p *pacer.Pacer,
) *Service {
	return &Service{
		auth:     authManager,
		resolver: resolver,
		fetcher:  fetcher,
		parser:   parser,
		pacer:    p,
		progress: Progress{State: StateIdle},
	}
}

func (s *Service) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Service) setProgress(p Progress) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

// Scan runs one full scan. Authentication and resolution failures
// abort with an error, per-paper failures become records. On
// cancellation the report built so far comes back alongside ctx.Err().
func (s *Service) Scan(ctx context.Context, req Request) (Report, error) {
	ctx, span := tracer.Start(ctx, "service:Scan", trace.WithAttributes(
		attribute.String("category", req.Category),
		attribute.Int("explicit_papers", len(req.Papers)),
	))
	defer span.End()

	report := Report{Category: req.Category, Results: []Record{}}

	s.setProgress(Progress{State: StateAuthenticating})
	_, err := s.auth.Acquire(ctx, req.Credentials, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		s.setProgress(Progress{State: StateFailed})
		return report, err
	}

	s.setProgress(Progress{State: StateResolving})
	var papers []string
	if len(req.Papers) > 0 {
		papers = s.resolver.Explicit(req.Papers)
	} else {
		papers, err = s.resolver.Recent(ctx, req.Category, req.Limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolution failed")
			s.setProgress(Progress{State: StateFailed})
			return report, err
		}
	}

	slog.InfoContext(ctx, "starting scan", "papers", len(papers), "category", req.Category)
	for i, paperId := range papers {
		// cancellation lands between papers so records stay whole
		if err := ctx.Err(); err != nil {
			report.PapersScanned = len(report.Results)
			s.setProgress(Progress{State: StateIdle, Scanned: i, Total: len(papers)})
			return report, err
		}
		s.setProgress(Progress{State: StateScanning, Scanned: i, Total: len(papers)})

		if err := s.pacer.Wait(ctx); err != nil {
			report.PapersScanned = len(report.Results)
			s.setProgress(Progress{State: StateIdle, Scanned: i, Total: len(papers)})
			return report, err
		}

		report.Results = append(report.Results, s.scanOne(ctx, req.Credentials, paperId))
	}

	report.PapersScanned = len(report.Results)
	s.setProgress(Progress{State: StateDone, Scanned: len(papers), Total: len(papers)})
	span.SetAttributes(attribute.Int("papers_scanned", report.PapersScanned))
	return report, nil
}

// scanOne fetches and parses one paper. A stale session gets exactly
// one recovery attempt: re-authenticate, retry the fetch once, and any
// further failure is just recorded.
func (s *Service) scanOne(ctx context.Context, creds auth.Credentials, paperId string) Record {
	ctx, span := tracer.Start(ctx, "service:scanOne", trace.WithAttributes(
		attribute.String("paper_id", paperId),
	))
	defer span.End()

	page, err := s.fetcher.Fetch(ctx, paperId)

	var fetchErr *endorse.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Kind == endorse.Unauthorized {
		slog.WarnContext(ctx, "session went stale mid-scan, re-authenticating", "paper_id", paperId)
		s.auth.Invalidate()
		_, authErr := s.auth.Acquire(ctx, creds, false)
		if authErr != nil {
			return failedRecord(paperId, fmt.Sprintf("%s, re-authentication failed", endorse.Unauthorized))
		}
		// the retry is a remote fetch like any other, it goes through
		// the pacer too
		if waitErr := s.pacer.Wait(ctx); waitErr == nil {
			page, err = s.fetcher.Fetch(ctx, paperId)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		kind := endorse.Unknown
		if errors.As(err, &fetchErr) {
			kind = fetchErr.Kind
		}
		slog.WarnContext(ctx, "skipping paper", "paper_id", paperId, "kind", string(kind))
		return failedRecord(paperId, string(kind))
	}

	eligibility := s.parser.Parse(ctx, page.Body)
	return Record{
		PaperId:        paperId,
		Authors:        eligibility.Authors,
		Endorsers:      eligibility.Endorsers,
		CheckTimestamp: time.Now(),
		Error:          nil,
		LowConfidence:  eligibility.LowConfidence,
	}
}

func failedRecord(paperId string, cause string) Record {
	return Record{
		PaperId:        paperId,
		Authors:        []string{},
		Endorsers:      []string{},
		CheckTimestamp: time.Now(),
		Error:          &cause,
	}
}
