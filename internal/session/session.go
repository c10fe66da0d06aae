// Package session issues and tracks bearer tokens. Every issued JWT
// has a persisted row keyed by its JTI, so logout and refresh revoke
// tokens server-side instead of relying on expiry alone.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sssdapp/commerce-api/internal/models"
	"github.com/sssdapp/commerce-api/internal/security"
	"gorm.io/gorm"
)

// ErrUnauthenticated covers every token rejection: bad signature,
// unknown JTI, revoked, or expired. Callers translate it to 401
// without detail.
var ErrUnauthenticated = errors.New("session: unauthenticated")

// tokenTTLFactor scales the configured base expiry into the real token
// lifetime. It is fixed at issuance and not caller-configurable.
const tokenTTLFactor = 180

// Issuer mints, validates, refreshes, and revokes bearer sessions.
type Issuer struct {
	db         *gorm.DB
	secret     string
	baseExpiry time.Duration
	now        func() time.Time
}

// NewIssuer constructs a session issuer.
func NewIssuer(db *gorm.DB, secret string, baseExpiry time.Duration) *Issuer {
	return &Issuer{
		db:         db,
		secret:     secret,
		baseExpiry: baseExpiry,
		now:        time.Now,
	}
}

// Lifetime returns the effective token lifetime.
func (i *Issuer) Lifetime() time.Duration {
	return i.baseExpiry * tokenTTLFactor
}

// Issued bundles a minted token with its expiry metadata.
type Issued struct {
	Token     string
	ExpiresAt time.Time
	ExpiresIn int64 // Seconds until expiry.
}

// Issue signs a token for the user and persists the session row.
func (i *Issuer) Issue(ctx context.Context, user *models.User) (*Issued, error) {
	if i == nil || i.db == nil {
		return nil, fmt.Errorf("session: issuer not initialized")
	}
	return i.issueTx(ctx, i.db, user)
}

func (i *Issuer) issueTx(ctx context.Context, tx *gorm.DB, user *models.User) (*Issued, error) {
	now := i.clock()
	token, jti, expiresAt, errIssue := security.IssueUserToken(i.secret, user, i.Lifetime(), now)
	if errIssue != nil {
		return nil, errIssue
	}

	row := models.PersonalAccessToken{
		UserID:     user.ID,
		JTI:        jti,
		LastUsedAt: now,
		ExpiresAt:  expiresAt,
	}
	if errCreate := tx.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("session: persist token: %w", errCreate)
	}

	return &Issued{
		Token:     token,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(i.Lifetime().Seconds()),
	}, nil
}

// Authenticate verifies a presented token, rejects revoked or expired
// sessions, touches last_used_at, and returns the owning user.
func (i *Issuer) Authenticate(ctx context.Context, token string) (*models.User, *models.PersonalAccessToken, error) {
	user, row, errResolve := i.resolve(ctx, token)
	if errResolve != nil {
		return nil, nil, errResolve
	}

	now := i.clock()
	if errTouch := i.db.WithContext(ctx).Model(&models.PersonalAccessToken{}).
		Where("id = ?", row.ID).
		Update("last_used_at", now).Error; errTouch != nil {
		return nil, nil, fmt.Errorf("session: touch token: %w", errTouch)
	}
	row.LastUsedAt = now

	return user, row, nil
}

// Refresh rotates a session: the old row is revoked and a new token is
// issued in the same transaction.
func (i *Issuer) Refresh(ctx context.Context, token string) (*Issued, error) {
	user, row, errResolve := i.resolve(ctx, token)
	if errResolve != nil {
		return nil, errResolve
	}

	var issued *Issued
	errTx := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := i.clock()
		res := tx.Model(&models.PersonalAccessToken{}).
			Where("id = ? AND revoked_at IS NULL", row.ID).
			Update("revoked_at", now)
		if res.Error != nil {
			return fmt.Errorf("session: revoke token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost a race with another refresh or a logout.
			return ErrUnauthenticated
		}

		next, errIssue := i.issueTx(ctx, tx, user)
		if errIssue != nil {
			return errIssue
		}
		issued = next
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return issued, nil
}

// Logout revokes the presented token's session row. Revoking an
// already-revoked token is not an error.
func (i *Issuer) Logout(ctx context.Context, token string) error {
	_, row, errResolve := i.resolve(ctx, token)
	if errResolve != nil {
		return errResolve
	}

	if errRevoke := i.db.WithContext(ctx).Model(&models.PersonalAccessToken{}).
		Where("id = ? AND revoked_at IS NULL", row.ID).
		Update("revoked_at", i.clock()).Error; errRevoke != nil {
		return fmt.Errorf("session: revoke token: %w", errRevoke)
	}
	return nil
}

// resolve parses the token, loads its session row and user, and
// rejects anything revoked, expired, or unknown.
func (i *Issuer) resolve(ctx context.Context, token string) (*models.User, *models.PersonalAccessToken, error) {
	if i == nil || i.db == nil {
		return nil, nil, fmt.Errorf("session: issuer not initialized")
	}

	claims, errParse := security.ParseUserToken(i.secret, token)
	if errParse != nil {
		return nil, nil, ErrUnauthenticated
	}

	var row models.PersonalAccessToken
	errFind := i.db.WithContext(ctx).Where("jti = ?", claims.ID).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUnauthenticated
	}
	if errFind != nil {
		return nil, nil, fmt.Errorf("session: lookup token: %w", errFind)
	}
	if !row.Live(i.clock()) {
		return nil, nil, ErrUnauthenticated
	}

	var user models.User
	errUser := i.db.WithContext(ctx).First(&user, claims.UserID).Error
	if errors.Is(errUser, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUnauthenticated
	}
	if errUser != nil {
		return nil, nil, fmt.Errorf("session: lookup user: %w", errUser)
	}

	return &user, &row, nil
}

func (i *Issuer) clock() time.Time {
	if i == nil || i.now == nil {
		return time.Now().UTC()
	}
	return i.now().UTC()
}
