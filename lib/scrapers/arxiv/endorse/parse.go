package endorse

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"scholar-seeker-ai/lib/htmlutil"
	"scholar-seeker-ai/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
)

// Eligibility is what a single endorsement page says about a paper's
// authors. Endorsers is always a subset of Authors.
type Eligibility struct {
	Authors   []string
	Endorsers []string
	// LowConfidence flags a page whose structure didn't match what the
	// parser expects, so the (likely empty) lists shouldn't be trusted.
	LowConfidence bool
}

// ParseConfig pins the phrases that mark an author row as eligible.
type ParseConfig struct {
	// row text that marks an eligible author
	EligibleMarkers []string
	// row text that negates eligibility even when an eligible marker
	// also matches ("cannot endorse" contains "can endorse")
	IneligibleMarkers []string
}

func DefaultParseConfig() ParseConfig {
	return ParseConfig{
		EligibleMarkers:   []string{"can endorse"},
		IneligibleMarkers: []string{"cannot endorse", "can not endorse", "unable to endorse"},
	}
}

type Parser struct {
	cfg ParseConfig
}

func NewParser(cfg ParseConfig) *Parser {
	return &Parser{cfg: cfg}
}

// Parse extracts eligibility from an endorsement page body. It never
// fails: unrecognized structure comes back as an empty result with
// LowConfidence set, so one odd page can't sink a whole scan.
func (p *Parser) Parse(ctx context.Context, body []byte) Eligibility {
	ctx, span := tracer.Start(ctx, "parser:Parse")
	defer span.End()

	result := Eligibility{
		Authors:   []string{},
		Endorsers: []string{},
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "endorsement page unparseable", "err", err)
		result.LowConfidence = true
		return result
	}

	seen := map[string]bool{}
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		name := authorName(row)
		if name == "" {
			return
		}
		key := textutil.NormalizeName(name)
		if seen[key] {
			return
		}
		seen[key] = true

		result.Authors = append(result.Authors, name)
		if p.rowIsEligible(row) {
			result.Endorsers = append(result.Endorsers, name)
		}
	})

	if len(result.Authors) == 0 {
		slog.WarnContext(ctx, "endorsement page had no recognizable author rows")
		result.LowConfidence = true
	}

	span.SetAttributes(
		attribute.Int("authors", len(result.Authors)),
		attribute.Int("endorsers", len(result.Endorsers)),
		attribute.Bool("low_confidence", result.LowConfidence),
	)
	return result
}

// authorName pulls the bolded name out of a table row, dropping the
// trailing colon the page renders after it.
func authorName(row *goquery.Selection) string {
	bold := row.Find("b, strong").First()
	if bold.Length() == 0 {
		return ""
	}
	name := htmlutil.CleanText(bold.Text())
	name = strings.TrimSuffix(name, ":")
	return strings.TrimSpace(name)
}

func (p *Parser) rowIsEligible(row *goquery.Selection) bool {
	text := strings.ToLower(htmlutil.CleanText(row.Text()))
	for _, marker := range p.cfg.IneligibleMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	for _, marker := range p.cfg.EligibleMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
