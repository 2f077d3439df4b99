// CLAUDE:SUMMARY Batch and batch-item bookkeeping: create, status counts, cancellation.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const batchCols = `id, name, sections_json, status, initiated_by,
	started_at, completed_at, created_at, updated_at`

const itemCols = `id, batch_id, mawb, airport_code, customer, checkbook_hawbs,
	broker_id, format_id, result_id, status, position, logs_json,
	processing_seconds, started_at, completed_at, created_at, updated_at`

// CreateBatch inserts a batch row plus its items in one transaction.
// The batch name follows "Batch #N - date time - M masters".
func (s *Store) CreateBatch(ctx context.Context, sections map[string]bool, initiatedBy string, items []*BatchItem) (*Batch, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("store: batch requires at least one item")
	}
	count, err := s.CountBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: count batches: %w", err)
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("store: marshal sections: %w", err)
	}

	now := time.Now()
	b := &Batch{
		ID: uuid.NewString(),
		Name: fmt.Sprintf("Batch #%d - %s - %d masters",
			count+1, now.Format("01/02/2006 15:04"), len(items)),
		SectionsJSON: string(sectionsJSON),
		Status:       "pending",
		InitiatedBy:  initiatedBy,
		CreatedAt:    now.UnixMilli(),
		UpdatedAt:    now.UnixMilli(),
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (`+batchCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.SectionsJSON, b.Status, b.InitiatedBy,
		nil, nil, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert batch: %w", err)
	}

	for i, it := range items {
		it.ID = uuid.NewString()
		it.BatchID = b.ID
		it.Status = "pending"
		it.Position = i
		if it.LogsJSON == "" {
			it.LogsJSON = "[]"
		}
		it.CreatedAt, it.UpdatedAt = b.CreatedAt, b.UpdatedAt
		_, err = tx.ExecContext(ctx,
			`INSERT INTO batch_items (`+itemCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.BatchID, it.MAWB, it.AirportCode, it.Customer, it.CheckbookHAWBs,
			it.BrokerID, it.FormatID, nullable(it.ResultID), it.Status, it.Position, it.LogsJSON,
			nil, nil, nil, it.CreatedAt, it.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: insert batch item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return b, nil
}

// GetBatch retrieves a batch by ID.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+batchCols+` FROM batches WHERE id = ?`, id)
	return scanBatch(row.Scan)
}

// ListBatches returns batches, newest first, optionally filtered by status.
func (s *Store) ListBatches(ctx context.Context, status string, limit, offset int) ([]*Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + batchCols + ` FROM batches`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// CountBatches returns the total number of batches.
func (s *Store) CountBatches(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches`).Scan(&count)
	return count, err
}

// UpdateBatchStatus transitions a batch, stamping started/completed times.
func (s *Store) UpdateBatchStatus(ctx context.Context, id, status string) error {
	now := nowMilli()
	switch status {
	case "running":
		_, err := s.DB.ExecContext(ctx,
			`UPDATE batches SET status=?, started_at=?, updated_at=? WHERE id=?`,
			status, now, now, id)
		return err
	case "completed", "cancelled", "failed":
		_, err := s.DB.ExecContext(ctx,
			`UPDATE batches SET status=?, completed_at=?, updated_at=? WHERE id=?`,
			status, now, now, id)
		return err
	default:
		_, err := s.DB.ExecContext(ctx,
			`UPDATE batches SET status=?, updated_at=? WHERE id=?`, status, now, id)
		return err
	}
}

// CancelBatch marks the batch cancelled and flips its pending items.
func (s *Store) CancelBatch(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := nowMilli()
	if _, err := tx.ExecContext(ctx,
		`UPDATE batches SET status='cancelled', completed_at=?, updated_at=? WHERE id=?`,
		now, now, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE batch_items SET status='cancelled', updated_at=?
		WHERE batch_id=? AND status='pending'`, now, id); err != nil {
		return err
	}
	return tx.Commit()
}

// GetBatchItems returns a batch's items in position order.
func (s *Store) GetBatchItems(ctx context.Context, batchID string) ([]*BatchItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+itemCols+` FROM batch_items WHERE batch_id = ? ORDER BY position`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*BatchItem
	for rows.Next() {
		it, err := scanBatchItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// BatchItemCounts aggregates item statuses for one batch.
func (s *Store) BatchItemCounts(ctx context.Context, batchID string) (BatchCounts, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM batch_items WHERE batch_id = ? GROUP BY status`, batchID)
	if err != nil {
		return BatchCounts{}, err
	}
	defer rows.Close()

	var c BatchCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return BatchCounts{}, err
		}
		c.Total += n
		switch status {
		case "pending":
			c.Pending = n
		case "running":
			c.Running = n
		case "success":
			c.Success = n
		case "failed":
			c.Failed = n
		case "cancelled":
			c.Cancelled = n
		}
	}
	return c, rows.Err()
}

// StartBatchItem marks an item running.
func (s *Store) StartBatchItem(ctx context.Context, id string) error {
	now := nowMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE batch_items SET status='running', started_at=?, updated_at=? WHERE id=?`,
		now, now, id)
	return err
}

// FinishBatchItem records an item's terminal status, result linkage, and
// accumulated log lines.
func (s *Store) FinishBatchItem(ctx context.Context, id, status, resultID string, logs []string) error {
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("store: marshal logs: %w", err)
	}
	now := nowMilli()
	_, err = s.DB.ExecContext(ctx,
		`UPDATE batch_items SET status=?, result_id=?, logs_json=?,
		processing_seconds=CASE WHEN started_at IS NULL THEN NULL ELSE (?-started_at)/1000 END,
		completed_at=?, updated_at=?
		WHERE id=?`,
		status, nullable(resultID), string(logsJSON), now, now, now, id)
	return err
}

func scanBatch(scan func(dest ...any) error) (*Batch, error) {
	var b Batch
	var startedAt, completedAt sql.NullInt64
	err := scan(
		&b.ID, &b.Name, &b.SectionsJSON, &b.Status, &b.InitiatedBy,
		&startedAt, &completedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	b.StartedAt = startedAt.Int64
	b.CompletedAt = completedAt.Int64
	return &b, nil
}

func scanBatchItem(scan func(dest ...any) error) (*BatchItem, error) {
	var it BatchItem
	var resultID sql.NullString
	var processing, startedAt, completedAt sql.NullInt64
	err := scan(
		&it.ID, &it.BatchID, &it.MAWB, &it.AirportCode, &it.Customer, &it.CheckbookHAWBs,
		&it.BrokerID, &it.FormatID, &resultID, &it.Status, &it.Position, &it.LogsJSON,
		&processing, &startedAt, &completedAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan batch item: %w", err)
	}
	it.ResultID = resultID.String
	it.ProcessingSeconds = processing.Int64
	it.StartedAt = startedAt.Int64
	it.CompletedAt = completedAt.Int64
	return &it, nil
}
