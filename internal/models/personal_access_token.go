package models

import "time"

// PersonalAccessToken records one issued bearer session. A user may hold
// several live rows at once (multi-device); rows are revoked on logout
// and on refresh rotation rather than deleted.
type PersonalAccessToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`                 // Owning user.
	JTI    string `gorm:"type:text;not null;uniqueIndex"` // JWT ID claim of the issued token.

	LastUsedAt time.Time  `gorm:"not null"` // Updated on every authenticated request.
	ExpiresAt  time.Time  `gorm:"not null"` // Hard expiry, checked at validation time.
	RevokedAt  *time.Time `gorm:"index"`    // Set on logout or refresh rotation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Issuance timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Live reports whether the token row is usable at the given instant.
func (t PersonalAccessToken) Live(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	return now.Before(t.ExpiresAt)
}
