package endorser

import (
	"time"

	"scholar-seeker-ai/lib/textutil"
)

// Record is one paper's outcome. Error is nil on success and carries
// the failure kind otherwise, an explicit null in the JSON report so
// downstream consumers can tell "no endorsers" from "fetch failed".
// Field names and presence are an external contract, tooling parses
// these reports.
type Record struct {
	PaperId        string    `json:"arxiv_id"`
	Authors        []string  `json:"authors"`
	Endorsers      []string  `json:"endorsers"`
	CheckTimestamp time.Time `json:"check_timestamp"`
	Error          *string   `json:"error"`
	LowConfidence  bool      `json:"low_confidence,omitempty"`
}

// Report is the outcome of one scan. Results holds one record per
// paper in scan order, failures included.
type Report struct {
	Category      string   `json:"category,omitempty"`
	PapersScanned int      `json:"papers_scanned"`
	Results       []Record `json:"results"`
}

// Endorsable returns the records where at least one author can
// endorse.
func (r Report) Endorsable() []Record {
	var out []Record
	for _, rec := range r.Results {
		if len(rec.Endorsers) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// FindEndorsers returns the records where an eligible endorser matches
// one of the given names, whitespace and case insensitive.
func (r Report) FindEndorsers(names []string) []Record {
	matchers := make([]string, len(names))
	for i, name := range names {
		matchers[i] = textutil.NormalizeName(name)
	}

	var out []Record
	for _, rec := range r.Results {
		for _, endorser := range rec.Endorsers {
			if textutil.MatchName(endorser, matchers) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
