// Package scanstore persists scan reports to sqlite, so past results
// are queryable without re-hitting the remote site.
package scanstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"scholar-seeker-ai/services/endorser"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("pkg/scanstore")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

// RunSummary is one past scan, newest first out of RecentRuns.
type RunSummary struct {
	Id            int64
	Category      string
	PapersScanned int
	StartedAt     time.Time
}

// PaperStatus is the latest stored outcome for a single paper.
type PaperStatus struct {
	Record    endorser.Record
	CheckedAt time.Time
}

// Push stores a finished report as one run. All records land in the
// same transaction, a run is never half-stored.
func (s Store) Push(ctx context.Context, report endorser.Report, startedAt time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "Push")
	defer span.End()

	span.SetAttributes(
		attribute.String("category", report.Category),
		attribute.Int("papers_scanned", report.PapersScanned),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scan_run (category, papers_scanned, started_at) VALUES (?, ?, ?)`,
		report.Category, report.PapersScanned, startedAt.Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	runId, err := res.LastInsertId()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	for _, rec := range report.Results {
		authors, err := json.Marshal(rec.Authors)
		if err != nil {
			return 0, err
		}
		endorsers, err := json.Marshal(rec.Endorsers)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scan_record (run_id, paper_id, authors, endorsers, low_confidence, error, checked_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runId, rec.PaperId, string(authors), string(endorsers), rec.LowConfidence, rec.Error,
			rec.CheckTimestamp.Unix(),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, err
		}
	}

	err = tx.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	return runId, nil
}

// LastChecked returns the most recent stored outcome for a paper. The
// bool is false when the paper has never been scanned.
func (s Store) LastChecked(ctx context.Context, paperId string) (PaperStatus, bool, error) {
	ctx, span := tracer.Start(ctx, "LastChecked")
	defer span.End()

	span.SetAttributes(attribute.String("paper_id", paperId))

	row := s.db.QueryRowContext(ctx,
		`SELECT authors, endorsers, low_confidence, error, checked_at
		 FROM scan_record
		 WHERE paper_id = ?
		 ORDER BY checked_at DESC, id DESC
		 LIMIT 1`,
		paperId,
	)

	var authorsJson, endorsersJson string
	var checkedAt int64
	status := PaperStatus{Record: endorser.Record{PaperId: paperId}}
	err := row.Scan(&authorsJson, &endorsersJson, &status.Record.LowConfidence, &status.Record.Error, &checkedAt)
	if err == sql.ErrNoRows {
		return PaperStatus{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PaperStatus{}, false, err
	}

	err = json.Unmarshal([]byte(authorsJson), &status.Record.Authors)
	if err != nil {
		return PaperStatus{}, false, err
	}
	err = json.Unmarshal([]byte(endorsersJson), &status.Record.Endorsers)
	if err != nil {
		return PaperStatus{}, false, err
	}
	status.CheckedAt = time.Unix(checkedAt, 0)
	status.Record.CheckTimestamp = status.CheckedAt
	return status, true, nil
}

// RecentRuns lists the latest runs, newest first.
func (s Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	ctx, span := tracer.Start(ctx, "RecentRuns")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, papers_scanned, started_at
		 FROM scan_run
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var run RunSummary
		var startedAt int64
		err = rows.Scan(&run.Id, &run.Category, &run.PapersScanned, &startedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		run.StartedAt = time.Unix(startedAt, 0)
		out = append(out, run)
	}
	return out, rows.Err()
}

// Results returns all records stored for one run in scan order.
func (s Store) Results(ctx context.Context, runId int64) ([]endorser.Record, error) {
	ctx, span := tracer.Start(ctx, "Results")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT paper_id, authors, endorsers, low_confidence, error, checked_at
		 FROM scan_record WHERE run_id = ? ORDER BY id ASC`,
		runId,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []endorser.Record
	for rows.Next() {
		var rec endorser.Record
		var authorsJson, endorsersJson string
		var checkedAt int64
		err = rows.Scan(&rec.PaperId, &authorsJson, &endorsersJson, &rec.LowConfidence, &rec.Error, &checkedAt)
		if err != nil {
			return nil, err
		}
		rec.CheckTimestamp = time.Unix(checkedAt, 0)
		err = json.Unmarshal([]byte(authorsJson), &rec.Authors)
		if err != nil {
			return nil, err
		}
		err = json.Unmarshal([]byte(endorsersJson), &rec.Endorsers)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
