// CLAUDE:SUMMARY Result upsert keyed on (mawb, broker, format) with transient retry.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const resultCols = `id, mawb, broker_id, format_id, batch_id, status,
	broker_name, template_name, airport_code, customer, sections_json,
	summary_json, artifact_path, artifact_url, pdf_path, pdf_url,
	error_message, started_at, completed_at, updated_at`

// UpsertResult inserts or overwrites the row for r's (mawb, broker_id,
// format_id) triple. Transient datastore errors are retried.
func (s *Store) UpsertResult(ctx context.Context, r *Result) error {
	if r.MAWB == "" || r.BrokerID == "" || r.FormatID == "" {
		return fmt.Errorf("store: result requires mawb, broker_id, and format_id")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := nowMilli()
	if r.StartedAt == 0 {
		r.StartedAt = now
	}
	r.UpdatedAt = now
	if r.SectionsJSON == "" {
		r.SectionsJSON = "{}"
	}
	if r.SummaryJSON == "" {
		r.SummaryJSON = "{}"
	}

	return s.withRetry(ctx, "upsert result", func() error {
		_, err := s.DB.ExecContext(ctx,
			`INSERT INTO results (`+resultCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (mawb, broker_id, format_id) DO UPDATE SET
				batch_id=excluded.batch_id,
				status=excluded.status,
				broker_name=excluded.broker_name,
				template_name=excluded.template_name,
				airport_code=excluded.airport_code,
				customer=excluded.customer,
				sections_json=excluded.sections_json,
				summary_json=excluded.summary_json,
				artifact_path=excluded.artifact_path,
				artifact_url=excluded.artifact_url,
				pdf_path=excluded.pdf_path,
				pdf_url=excluded.pdf_url,
				error_message=excluded.error_message,
				completed_at=excluded.completed_at,
				updated_at=excluded.updated_at`,
			r.ID, r.MAWB, r.BrokerID, r.FormatID, nullable(r.BatchID), r.Status,
			r.BrokerName, r.TemplateName, r.AirportCode, r.Customer, r.SectionsJSON,
			r.SummaryJSON, r.ArtifactPath, r.ArtifactURL, r.PDFPath, r.PDFURL,
			r.ErrorMessage, r.StartedAt, nullableInt(r.CompletedAt), r.UpdatedAt,
		)
		return err
	})
}

// GetResult retrieves a result by row ID.
func (s *Store) GetResult(ctx context.Context, id string) (*Result, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM results WHERE id = ?`, id)
	return scanResult(row.Scan)
}

// GetResultByKey retrieves the result for one (mawb, broker, format).
func (s *Store) GetResultByKey(ctx context.Context, mawb, brokerID, formatID string) (*Result, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM results
		WHERE mawb = ? AND broker_id = ? AND format_id = ?`, mawb, brokerID, formatID)
	return scanResult(row.Scan)
}

// ListResults returns results, newest first, filtered by MAWB and/or
// batch when those arguments are non-empty.
func (s *Store) ListResults(ctx context.Context, mawb, batchID string, limit, offset int) ([]*Result, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + resultCols + ` FROM results WHERE 1=1`
	var args []any
	if mawb != "" {
		q += ` AND mawb = ?`
		args = append(args, mawb)
	}
	if batchID != "" {
		q += ` AND batch_id = ?`
		args = append(args, batchID)
	}
	q += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		r, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanResult(scan func(dest ...any) error) (*Result, error) {
	var r Result
	var batchID sql.NullString
	var completedAt sql.NullInt64
	err := scan(
		&r.ID, &r.MAWB, &r.BrokerID, &r.FormatID, &batchID, &r.Status,
		&r.BrokerName, &r.TemplateName, &r.AirportCode, &r.Customer, &r.SectionsJSON,
		&r.SummaryJSON, &r.ArtifactPath, &r.ArtifactURL, &r.PDFPath, &r.PDFURL,
		&r.ErrorMessage, &r.StartedAt, &completedAt, &r.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}
	r.BatchID = batchID.String
	r.CompletedAt = completedAt.Int64
	return &r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
