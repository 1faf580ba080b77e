// cmd/api/migrations.go
// Schema for users, sessions and OTPs, applied at startup

package main

import (
	"database/sql"
	"fmt"
	"log"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(100) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'Buyer',
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_id VARCHAR(64) NOT NULL UNIQUE,
		user_agent TEXT,
		ip_address VARCHAR(45),
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		revoked_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS otps (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
		code VARCHAR(10) NOT NULL,
		purpose VARCHAR(50) NOT NULL,
		recipient VARCHAR(255) NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		verified_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`,

	// Unique case-insensitive identities; the names are matched on conflict
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_otps_recipient_purpose ON otps(recipient, purpose)`,
	`CREATE INDEX IF NOT EXISTS idx_otps_created_at ON otps(created_at DESC)`,
}

// runMigrations executes database migrations
func runMigrations(db *sql.DB) error {
	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Printf("   %d migrations applied", len(migrations))
	return nil
}
