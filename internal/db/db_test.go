package db

import (
	"errors"
	"testing"

	"github.com/sssdapp/commerce-api/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := Open("file::memory:")
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestMigrate_UniqueIndexes(t *testing.T) {
	conn := openTestDB(t)

	user := models.User{
		FullName:    "Jane Doe",
		Username:    "janedoe",
		Email:       "jane@example.com",
		Password:    "hash",
		PhoneNumber: "+38761234567",
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	duplicate := models.User{
		FullName:    "Jane Clone",
		Username:    "janedoe",
		Email:       "clone@example.com",
		Password:    "hash",
		PhoneNumber: "+38761234567",
	}
	errDup := conn.Create(&duplicate).Error
	if errDup == nil {
		t.Fatalf("expected unique violation on username")
	}
	if !IsUniqueViolation(errDup) {
		t.Fatalf("expected IsUniqueViolation for %v", errDup)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil) {
		t.Fatalf("nil is not a violation")
	}
	if IsUniqueViolation(errors.New("connection refused")) {
		t.Fatalf("unrelated error is not a violation")
	}
	if !IsUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("gorm.ErrDuplicatedKey is a violation")
	}
	if !IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_email" (SQLSTATE 23505)`)) {
		t.Fatalf("postgres message is a violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: users.username")) {
		t.Fatalf("sqlite message is a violation")
	}
}

func TestCaseInsensitiveLookup(t *testing.T) {
	conn := openTestDB(t)

	user := models.User{
		FullName:    "Jane Doe",
		Username:    "JaneDoe",
		Email:       "Jane@Example.com",
		Password:    "hash",
		PhoneNumber: "+38761234567",
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	var found models.User
	errFind := conn.
		Where(CaseInsensitiveEqExpr("username"), NormalizeIdentifier("  janedoe ")).
		First(&found).Error
	if errFind != nil {
		t.Fatalf("lookup: %v", errFind)
	}
	if found.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, found.ID)
	}
}
