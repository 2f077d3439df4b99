// CLAUDE:SUMMARY Broker CRUD with credential sealing.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const brokerCols = `id, name, username, password, company, is_active,
	auth_required, otp_uri, entries_format, created_at, updated_at`

// InsertBroker adds a broker. An otpauth URI is required when 2FA is on.
func (s *Store) InsertBroker(ctx context.Context, b *Broker) error {
	if err := validateBroker(b); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.EntriesFormat == "" {
		b.EntriesFormat = "allied"
	}
	now := nowMilli()
	b.CreatedAt, b.UpdatedAt = now, now

	password, otpURI, err := s.sealCredentials(b.Password, b.OTPURI)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO brokers (`+brokerCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Username, password, b.Company, b.IsActive,
		b.AuthRequired, otpURI, b.EntriesFormat, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// GetBroker retrieves a broker by ID with credentials opened.
func (s *Store) GetBroker(ctx context.Context, id string) (*Broker, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+brokerCols+` FROM brokers WHERE id = ?`, id)
	return s.scanBroker(row.Scan)
}

// ListBrokers returns brokers, optionally only active ones.
func (s *Store) ListBrokers(ctx context.Context, activeOnly bool) ([]*Broker, error) {
	q := `SELECT ` + brokerCols + ` FROM brokers`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY name`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var brokers []*Broker
	for rows.Next() {
		b, err := s.scanBroker(rows.Scan)
		if err != nil {
			return nil, err
		}
		brokers = append(brokers, b)
	}
	return brokers, rows.Err()
}

// UpdateBroker updates a broker's mutable fields.
func (s *Store) UpdateBroker(ctx context.Context, b *Broker) error {
	if err := validateBroker(b); err != nil {
		return err
	}
	b.UpdatedAt = nowMilli()
	password, otpURI, err := s.sealCredentials(b.Password, b.OTPURI)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE brokers SET name=?, username=?, password=?, company=?, is_active=?,
		auth_required=?, otp_uri=?, entries_format=?, updated_at=?
		WHERE id=?`,
		b.Name, b.Username, password, b.Company, b.IsActive,
		b.AuthRequired, otpURI, b.EntriesFormat, b.UpdatedAt, b.ID,
	)
	return err
}

// DeleteBroker removes a broker.
func (s *Store) DeleteBroker(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM brokers WHERE id = ?`, id)
	return err
}

func validateBroker(b *Broker) error {
	if b.Name == "" || b.Username == "" || b.Password == "" {
		return fmt.Errorf("store: broker name, username, and password are required")
	}
	if b.OTPURI != "" && !strings.HasPrefix(b.OTPURI, "otpauth://totp/") {
		return fmt.Errorf("store: OTP URI must start with otpauth://totp/")
	}
	if b.AuthRequired && b.OTPURI == "" {
		return fmt.Errorf("store: OTP URI is required when authentication is enabled")
	}
	return nil
}

func (s *Store) sealCredentials(password, otpURI string) (string, string, error) {
	if s.box == nil {
		return password, otpURI, nil
	}
	sealed, err := s.box.Seal(password)
	if err != nil {
		return "", "", fmt.Errorf("store: seal password: %w", err)
	}
	sealedURI := ""
	if otpURI != "" {
		if sealedURI, err = s.box.Seal(otpURI); err != nil {
			return "", "", fmt.Errorf("store: seal otp uri: %w", err)
		}
	}
	return sealed, sealedURI, nil
}

func (s *Store) scanBroker(scan func(dest ...any) error) (*Broker, error) {
	var b Broker
	var active, authRequired int
	err := scan(
		&b.ID, &b.Name, &b.Username, &b.Password, &b.Company, &active,
		&authRequired, &b.OTPURI, &b.EntriesFormat, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan broker: %w", err)
	}
	b.IsActive = active != 0
	b.AuthRequired = authRequired != 0
	if s.box != nil {
		if b.Password, err = s.box.Open(b.Password); err != nil {
			return nil, fmt.Errorf("store: open password: %w", err)
		}
		if b.OTPURI != "" {
			if b.OTPURI, err = s.box.Open(b.OTPURI); err != nil {
				return nil, fmt.Errorf("store: open otp uri: %w", err)
			}
		}
	}
	return &b, nil
}
