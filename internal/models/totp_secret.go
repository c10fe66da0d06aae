package models

import "time"

// TOTPSecret stores the per-user shared secret for one-time codes.
// At most one row exists per user; enrollment never overwrites it.
type TOTPSecret struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user, one secret each.
	Secret string `gorm:"type:text;not null"`   // Base32 shared secret.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
