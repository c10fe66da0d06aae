package totpenroll

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pquerna/otp/totp"
	"github.com/sssdapp/commerce-api/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.User{}, &models.TOTPSecret{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func testUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := models.User{
		FullName:    "Jane Doe",
		Username:    "janedoe",
		Email:       "jane@example.com",
		Password:    "hash",
		PhoneNumber: "+38761234567",
	}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return &user
}

func TestEnroll_OnceOnly(t *testing.T) {
	db := testDB(t)
	user := testUser(t, db)
	svc := NewService(db, "SSSD_APP", "")

	secret, err := svc.Enroll(context.Background(), user)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if secret.Secret == "" {
		t.Fatalf("expected non-empty secret")
	}

	if _, errSecond := svc.Enroll(context.Background(), user); !errors.Is(errSecond, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", errSecond)
	}

	// The stored secret is unchanged by the failed second attempt.
	var row models.TOTPSecret
	if errFind := db.Where("user_id = ?", user.ID).First(&row).Error; errFind != nil {
		t.Fatalf("find secret: %v", errFind)
	}
	if row.Secret != secret.Secret {
		t.Fatalf("secret changed after rejected enrollment")
	}
}

func TestProvisioning(t *testing.T) {
	db := testDB(t)
	user := testUser(t, db)
	svc := NewService(db, "SSSD_APP", "https://qr.example/render?data=[DATA]&size=300x300")

	if _, errMissing := svc.Provisioning(context.Background(), user); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before enrollment, got %v", errMissing)
	}

	if _, errEnroll := svc.Enroll(context.Background(), user); errEnroll != nil {
		t.Fatalf("enroll: %v", errEnroll)
	}

	prov, err := svc.Provisioning(context.Background(), user)
	if err != nil {
		t.Fatalf("provisioning: %v", err)
	}
	if !strings.HasPrefix(prov.URI, "otpauth://totp/") {
		t.Fatalf("unexpected uri %q", prov.URI)
	}
	if !strings.Contains(prov.URI, "janedoe@SSSD_APP") {
		t.Fatalf("expected label in uri, got %q", prov.URI)
	}
	if !strings.HasPrefix(prov.QRURL, "https://qr.example/render?data=otpauth") {
		t.Fatalf("unexpected qr url %q", prov.QRURL)
	}
	if !strings.HasPrefix(prov.QRDataURI, "data:image/png;base64,") {
		t.Fatalf("expected inline png data uri")
	}
}

func TestVerify_SkewWindow(t *testing.T) {
	db := testDB(t)
	user := testUser(t, db)
	svc := NewService(db, "SSSD_APP", "")

	secret, errEnroll := svc.Enroll(context.Background(), user)
	if errEnroll != nil {
		t.Fatalf("enroll: %v", errEnroll)
	}

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	current, errCode := totp.GenerateCode(secret.Secret, now)
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	if errVerify := svc.Verify(context.Background(), user, current); errVerify != nil {
		t.Fatalf("verify current step: %v", errVerify)
	}

	// One step behind still validates under the standard skew.
	behind, errCode := totp.GenerateCode(secret.Secret, now.Add(-30*time.Second))
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	if errVerify := svc.Verify(context.Background(), user, behind); errVerify != nil {
		t.Fatalf("verify one step behind: %v", errVerify)
	}

	// Two steps away is outside the window.
	stale, errCode := totp.GenerateCode(secret.Secret, now.Add(-90*time.Second))
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	if errVerify := svc.Verify(context.Background(), user, stale); !errors.Is(errVerify, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for stale step, got %v", errVerify)
	}
}

func TestVerify_NoSecret(t *testing.T) {
	db := testDB(t)
	user := testUser(t, db)
	svc := NewService(db, "SSSD_APP", "")

	if errVerify := svc.Verify(context.Background(), user, "123456"); !errors.Is(errVerify, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errVerify)
	}
}
