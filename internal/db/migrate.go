package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sssdapp/commerce-api/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect. Uniqueness
// of usernames, emails, token JTIs, and TOTP ownership is enforced by
// the indexes created here; application code never relies on
// check-then-insert alone.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.TOTPSecret{},
		&models.PersonalAccessToken{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// ddl defines an index statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_users_username_lower",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_users_username_lower
				ON users (LOWER(username))
			`,
		},
		{
			name: "idx_users_email_lower",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_users_email_lower
				ON users (LOWER(email))
			`,
		},
		{
			name: "idx_personal_access_tokens_user_id_expires_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_personal_access_tokens_user_id_expires_at
				ON personal_access_tokens (user_id, expires_at)
			`,
		},
		{
			name: "idx_personal_access_tokens_user_id_revoked_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_personal_access_tokens_user_id_revoked_at
				ON personal_access_tokens (user_id, revoked_at)
				WHERE revoked_at IS NOT NULL
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// IsUniqueViolation reports whether the error comes from a unique
// constraint, across both supported dialects.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	// Postgres: SQLSTATE 23505; SQLite: "UNIQUE constraint failed".
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
