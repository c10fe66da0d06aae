// Package totpenroll manages per-user TOTP secrets: one-time
// enrollment, provisioning URIs with QR rendering, and code
// verification.
package totpenroll

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	dbutil "github.com/sssdapp/commerce-api/internal/db"
	"github.com/sssdapp/commerce-api/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyExists means the user already enrolled a secret.
	ErrAlreadyExists = errors.New("totpenroll: secret already exists")
	// ErrNotFound means the user has no enrolled secret.
	ErrNotFound = errors.New("totpenroll: secret not found")
	// ErrInvalidCode means the submitted code did not match any
	// accepted time step.
	ErrInvalidCode = errors.New("totpenroll: invalid code")
)

// totpPeriod is the RFC 6238 time-step size in seconds.
const totpPeriod = 30

// Service implements the TOTP secret lifecycle against the database.
type Service struct {
	db            *gorm.DB
	appName       string
	qrURLTemplate string
	now           func() time.Time
}

// NewService constructs a TOTP enrollment service.
func NewService(db *gorm.DB, appName, qrURLTemplate string) *Service {
	return &Service{
		db:            db,
		appName:       strings.TrimSpace(appName),
		qrURLTemplate: strings.TrimSpace(qrURLTemplate),
		now:           time.Now,
	}
}

// Enroll creates the user's TOTP secret. A user enrolls at most once;
// concurrent calls race on the unique index and the loser gets
// ErrAlreadyExists.
func (s *Service) Enroll(ctx context.Context, user *models.User) (*models.TOTPSecret, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("totpenroll: not initialized")
	}
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("totpenroll: missing user")
	}

	var existing models.TOTPSecret
	errFind := s.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&existing).Error
	if errFind == nil {
		return nil, ErrAlreadyExists
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("totpenroll: lookup secret: %w", errFind)
	}

	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      s.appName,
		AccountName: user.Username,
		SecretSize:  20,
	})
	if errGenerate != nil {
		return nil, fmt.Errorf("totpenroll: generate secret: %w", errGenerate)
	}

	secret := models.TOTPSecret{
		UserID: user.ID,
		Secret: key.Secret(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&secret).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("totpenroll: persist secret: %w", errCreate)
	}
	return &secret, nil
}

// Provisioning bundles the enrollment artifacts handed to the client.
type Provisioning struct {
	URI       string // otpauth:// provisioning URI.
	QRURL     string // External QR-render service URL for the URI.
	QRDataURI string // Inline base64 PNG of the QR code.
}

// Provisioning returns the otpauth URI and QR renderings for the
// user's enrolled secret, or ErrNotFound without one.
func (s *Service) Provisioning(ctx context.Context, user *models.User) (*Provisioning, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("totpenroll: not initialized")
	}
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("totpenroll: missing user")
	}

	secret, errLoad := s.loadSecret(ctx, user.ID)
	if errLoad != nil {
		return nil, errLoad
	}

	uri := s.provisioningURI(user.Username, secret.Secret)

	qrURL := ""
	if s.qrURLTemplate != "" {
		qrURL = strings.Replace(s.qrURLTemplate, "[DATA]", url.QueryEscape(uri), 1)
	}

	dataURI, errRender := renderQRDataURI(uri)
	if errRender != nil {
		return nil, errRender
	}

	return &Provisioning{URI: uri, QRURL: qrURL, QRDataURI: dataURI}, nil
}

// Verify checks a submitted one-time code against the user's stored
// secret, accepting the standard one-step skew on either side.
func (s *Service) Verify(ctx context.Context, user *models.User, code string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("totpenroll: not initialized")
	}
	if user == nil || user.ID == 0 {
		return fmt.Errorf("totpenroll: missing user")
	}

	secret, errLoad := s.loadSecret(ctx, user.ID)
	if errLoad != nil {
		return errLoad
	}

	clock := s.now
	if clock == nil {
		clock = time.Now
	}
	valid, errValidate := totp.ValidateCustom(code, secret.Secret, clock().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if errValidate != nil {
		return ErrInvalidCode
	}
	if !valid {
		return ErrInvalidCode
	}
	return nil
}

func (s *Service) loadSecret(ctx context.Context, userID uint64) (*models.TOTPSecret, error) {
	var secret models.TOTPSecret
	errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&secret).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("totpenroll: lookup secret: %w", errFind)
	}
	return &secret, nil
}

// provisioningURI builds the otpauth URI with the `{username}@{app}`
// label convention.
func (s *Service) provisioningURI(username, secret string) string {
	label := username
	if s.appName != "" {
		label = fmt.Sprintf("%s@%s", username, s.appName)
	}
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", s.appName)
	query.Set("period", fmt.Sprintf("%d", totpPeriod))
	query.Set("digits", "6")
	query.Set("algorithm", "SHA1")
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + label,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// renderQRDataURI encodes the URI as a 300x300 PNG QR code wrapped in
// a data URI.
func renderQRDataURI(uri string) (string, error) {
	code, errEncode := qr.Encode(uri, qr.M, qr.Auto)
	if errEncode != nil {
		return "", fmt.Errorf("totpenroll: encode qr: %w", errEncode)
	}
	scaled, errScale := barcode.Scale(code, 300, 300)
	if errScale != nil {
		return "", fmt.Errorf("totpenroll: scale qr: %w", errScale)
	}
	var buf bytes.Buffer
	if errPNG := png.Encode(&buf, scaled); errPNG != nil {
		return "", fmt.Errorf("totpenroll: render qr png: %w", errPNG)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
