// CLAUDE:SUMMARY Report format (template) CRUD.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const formatCols = `id, name, template_identifier, description,
	template_payload, is_active, created_at, updated_at`

// InsertFormat adds a report format. TemplatePayload must be valid JSON
// (or empty, which becomes "{}").
func (s *Store) InsertFormat(ctx context.Context, f *Format) error {
	if err := validateFormat(f); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := nowMilli()
	f.CreatedAt, f.UpdatedAt = now, now
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO formats (`+formatCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.TemplateIdentifier, f.Description,
		f.TemplatePayload, f.IsActive, f.CreatedAt, f.UpdatedAt,
	)
	return err
}

// GetFormat retrieves a format by ID.
func (s *Store) GetFormat(ctx context.Context, id string) (*Format, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+formatCols+` FROM formats WHERE id = ?`, id)
	return scanFormat(row.Scan)
}

// ListFormats returns formats, optionally only active ones.
func (s *Store) ListFormats(ctx context.Context, activeOnly bool) ([]*Format, error) {
	q := `SELECT ` + formatCols + ` FROM formats`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY name`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var formats []*Format
	for rows.Next() {
		f, err := scanFormat(rows.Scan)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, rows.Err()
}

// UpdateFormat updates a format's mutable fields.
func (s *Store) UpdateFormat(ctx context.Context, f *Format) error {
	if err := validateFormat(f); err != nil {
		return err
	}
	f.UpdatedAt = nowMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE formats SET name=?, template_identifier=?, description=?,
		template_payload=?, is_active=?, updated_at=?
		WHERE id=?`,
		f.Name, f.TemplateIdentifier, f.Description,
		f.TemplatePayload, f.IsActive, f.UpdatedAt, f.ID,
	)
	return err
}

// DeleteFormat removes a format.
func (s *Store) DeleteFormat(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM formats WHERE id = ?`, id)
	return err
}

func validateFormat(f *Format) error {
	if f.Name == "" || f.TemplateIdentifier == "" {
		return fmt.Errorf("store: format name and template identifier are required")
	}
	if f.TemplatePayload == "" {
		f.TemplatePayload = "{}"
	}
	if !json.Valid([]byte(f.TemplatePayload)) {
		return fmt.Errorf("store: template payload is not valid JSON")
	}
	return nil
}

func scanFormat(scan func(dest ...any) error) (*Format, error) {
	var f Format
	var active int
	err := scan(
		&f.ID, &f.Name, &f.TemplateIdentifier, &f.Description,
		&f.TemplatePayload, &active, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan format: %w", err)
	}
	f.IsActive = active != 0
	return &f, nil
}
