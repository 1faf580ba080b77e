// internal/auth/repository.go
// Repository pattern isolates database queries from business logic.
// This makes it easy to change databases or add caching without touching business logic.

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Unique index names created by the migrations
const (
	usernameIndex = "idx_users_username_lower"
	emailIndex    = "idx_users_email_lower"
)

// ErrSessionNotFound is returned when no session matches a token id
var ErrSessionNotFound = errors.New("session not found")

// Repository interface defines all database operations for auth
// Using an interface makes testing easier - we can create mock implementations
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	UpdateRole(ctx context.Context, userID int64, role Role) error
	VerifyUser(ctx context.Context, userID int64) error

	// Validation helpers
	IsEmailTaken(ctx context.Context, email string) (bool, error)
	IsUsernameTaken(ctx context.Context, username string) (bool, error)

	// Session operations
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByTokenID(ctx context.Context, tokenID string) (*Session, error)
	RevokeSession(ctx context.Context, sessionID int64) (bool, error)
	RevokeUserSessions(ctx context.Context, userID int64) error
	DeleteStaleSessions(ctx context.Context, before time.Time) (int64, error)
}

// postgresRepository implements Repository using PostgreSQL
type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

const userColumns = `id, username, email, password_hash, role, is_verified, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// CreateUser inserts a new user into the database
func (r *postgresRepository) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (username, email, password_hash, role, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	// We use RETURNING to get the auto-generated ID
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)

	if err != nil {
		// Check if it's a unique constraint violation
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			switch pgErr.Constraint {
			case usernameIndex:
				return ErrUsernameAlreadyExists
			case emailIndex:
				return ErrEmailAlreadyExists
			}
			return fmt.Errorf("user already exists: %w", err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID
func (r *postgresRepository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by their email
func (r *postgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	// Using LOWER() for case-insensitive comparison
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetUserByUsername retrieves a user by their username
func (r *postgresRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

// UpdatePassword stores a new password hash
func (r *postgresRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, "update password", query, passwordHash, time.Now(), userID)
}

// UpdateRole changes the role of a user
func (r *postgresRepository) UpdateRole(ctx context.Context, userID int64, role Role) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, "update role", query, role, time.Now(), userID)
}

// VerifyUser marks a user as verified
func (r *postgresRepository) VerifyUser(ctx context.Context, userID int64) error {
	query := `UPDATE users SET is_verified = true, updated_at = $1 WHERE id = $2`
	return r.execOne(ctx, "verify user", query, time.Now(), userID)
}

// execOne runs an update that must touch exactly one user
func (r *postgresRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// IsEmailTaken checks if an email is already registered
func (r *postgresRepository) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`

	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return exists, nil
}

// IsUsernameTaken checks if a username is already taken
func (r *postgresRepository) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))`

	err := r.db.QueryRowContext(ctx, query, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}

	return exists, nil
}

// CreateSession creates a new session
func (r *postgresRepository) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (user_id, token_id, user_agent, ip_address, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRowContext(
		ctx,
		query,
		session.UserID,
		session.TokenID,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.CreatedAt,
	).Scan(&session.ID)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSessionByTokenID retrieves a session by the jti of its refresh token
func (r *postgresRepository) GetSessionByTokenID(ctx context.Context, tokenID string) (*Session, error) {
	session := &Session{}
	query := `
		SELECT id, user_id, token_id, user_agent, ip_address, expires_at, revoked_at, created_at
		FROM sessions
		WHERE token_id = $1`

	err := r.db.QueryRowContext(ctx, query, tokenID).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenID,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// RevokeSession revokes a live session. It reports false when the session
// was already revoked, which means its refresh token was replayed.
func (r *postgresRepository) RevokeSession(ctx context.Context, sessionID int64) (bool, error) {
	query := `UPDATE sessions SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, time.Now(), sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// RevokeUserSessions revokes all sessions for a user (logout from all devices)
func (r *postgresRepository) RevokeUserSessions(ctx context.Context, userID int64) error {
	query := `UPDATE sessions SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	return nil
}

// DeleteStaleSessions removes sessions that expired or were revoked before a cutoff
func (r *postgresRepository) DeleteStaleSessions(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1 OR revoked_at < $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}

	return result.RowsAffected()
}
