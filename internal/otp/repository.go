// internal/otp/repository.go

package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrOTPNotFound is returned when no OTP matches a lookup
var ErrOTPNotFound = errors.New("OTP not found")

// Repository defines the OTP repository interface
type Repository interface {
	CreateOTP(ctx context.Context, otp *OTP) error
	GetLatestOTPByRecipient(ctx context.Context, recipient string) (*OTP, error)
	UpdateOTPAttempts(ctx context.Context, id int64, attempts int) error
	MarkOTPAsVerified(ctx context.Context, id int64) error
	InvalidateOTPs(ctx context.Context, recipient string, purpose Purpose) error
	CountRecentOTPs(ctx context.Context, recipient string, since time.Time) (int, error)
	DeleteExpiredOTPs(ctx context.Context, before time.Time) error
}

// postgresRepository implements Repository using PostgreSQL
type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

const otpColumns = `id, user_id, code, purpose, recipient, attempts, verified, expires_at, verified_at, created_at`

// CreateOTP creates a new OTP record
func (r *postgresRepository) CreateOTP(ctx context.Context, otp *OTP) error {
	query := `
		INSERT INTO otps (user_id, code, purpose, recipient, attempts, verified, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRowContext(
		ctx,
		query,
		otp.UserID,
		otp.Code,
		otp.Purpose,
		otp.Recipient,
		otp.Attempts,
		otp.Verified,
		otp.ExpiresAt,
		otp.CreatedAt,
	).Scan(&otp.ID)

	if err != nil {
		return fmt.Errorf("failed to create OTP: %w", err)
	}

	return nil
}

// GetLatestOTPByRecipient retrieves the newest OTP sent to an address,
// verified or not, so a reused code can be told apart from a wrong one
func (r *postgresRepository) GetLatestOTPByRecipient(ctx context.Context, recipient string) (*OTP, error) {
	var otp OTP
	query := `
		SELECT ` + otpColumns + `
		FROM otps
		WHERE recipient = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &otp, query, recipient)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to get OTP by recipient: %w", err)
	}

	return &otp, nil
}

// UpdateOTPAttempts updates the attempts count for an OTP
func (r *postgresRepository) UpdateOTPAttempts(ctx context.Context, id int64, attempts int) error {
	query := `UPDATE otps SET attempts = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, attempts, id)
	if err != nil {
		return fmt.Errorf("failed to update OTP attempts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOTPNotFound
	}

	return nil
}

// MarkOTPAsVerified marks an OTP as verified
func (r *postgresRepository) MarkOTPAsVerified(ctx context.Context, id int64) error {
	query := `UPDATE otps SET verified = true, verified_at = $1 WHERE id = $2 AND verified = false`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark OTP as verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOTPNotFound
	}

	return nil
}

// InvalidateOTPs expires every outstanding code of a purpose for a recipient
func (r *postgresRepository) InvalidateOTPs(ctx context.Context, recipient string, purpose Purpose) error {
	query := `
		UPDATE otps
		SET expires_at = $1
		WHERE recipient = $2 AND purpose = $3 AND verified = false AND expires_at > $1`

	_, err := r.db.ExecContext(ctx, query, time.Now(), recipient, purpose)
	if err != nil {
		return fmt.Errorf("failed to invalidate OTPs: %w", err)
	}

	return nil
}

// CountRecentOTPs counts OTPs sent to a recipient since a point in time
func (r *postgresRepository) CountRecentOTPs(ctx context.Context, recipient string, since time.Time) (int, error) {
	var count int

	query := `
		SELECT COUNT(*)
		FROM otps
		WHERE recipient = $1 AND created_at > $2`

	err := r.db.GetContext(ctx, &count, query, recipient, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent OTPs: %w", err)
	}

	return count, nil
}

// DeleteExpiredOTPs deletes used or expired codes created more than a day
// before the cutoff. Younger rows still count towards the resend limit.
func (r *postgresRepository) DeleteExpiredOTPs(ctx context.Context, before time.Time) error {
	query := `DELETE FROM otps WHERE created_at < $2 AND (verified = true OR expires_at < $1)`

	createdBefore := before.Add(-24 * time.Hour)

	result, err := r.db.ExecContext(ctx, query, before, createdBefore)
	if err != nil {
		return fmt.Errorf("failed to delete expired OTPs: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Printf("Deleted %d expired OTPs", n)
	}

	return nil
}
