package models

import (
	"time"

	"gorm.io/datatypes"
)

// User represents a customer account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FullName    string `gorm:"type:text;not null"`             // Display name.
	Username    string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email       string `gorm:"type:text;not null;uniqueIndex"` // Unique email address.
	Password    string `gorm:"type:text;not null"`             // Hashed password.
	PhoneNumber string `gorm:"type:text;not null"`             // Mobile phone number.

	ImageURL        string         `gorm:"type:text"`  // Optional avatar URL.
	PersonalDetails datatypes.JSON `gorm:"type:jsonb"` // Optional profile payload.

	TOTPSecret *TOTPSecret           `gorm:"foreignKey:UserID"` // Enrolled TOTP secret, if any.
	Tokens     []PersonalAccessToken `gorm:"foreignKey:UserID"` // Issued bearer tokens.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
