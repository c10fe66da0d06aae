package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	dbutil "github.com/sssdapp/commerce-api/internal/db"
	"github.com/sssdapp/commerce-api/internal/models"
	"github.com/sssdapp/commerce-api/internal/ratelimit"
	"github.com/sssdapp/commerce-api/internal/security"
	"github.com/sssdapp/commerce-api/internal/session"
	"github.com/sssdapp/commerce-api/internal/validate"
	"gorm.io/gorm"
)

// Context keys set by the auth middleware.
const (
	ContextUserKey  = "authUser"
	ContextTokenKey = "authToken"
)

// AuthHandler manages login, registration, and session endpoints.
type AuthHandler struct {
	db        *gorm.DB
	validator *validate.Validator
	issuer    *session.Issuer
	limiter   *ratelimit.Manager
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, validator *validate.Validator, issuer *session.Issuer, limiter *ratelimit.Manager) *AuthHandler {
	return &AuthHandler{db: db, validator: validator, issuer: issuer, limiter: limiter}
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Login authenticates by username or email and issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	identifier := strings.TrimSpace(body.Identifier)
	if errShape := h.validator.Identifier(identifier); errShape != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errShape.Error()})
		return
	}
	if errShape := validate.PasswordShape(body.Password); errShape != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errShape.Error()})
		return
	}

	result, errLimit := h.limiter.Allow(c.Request.Context(), ratelimit.LoginKey(identifier))
	if errLimit != nil {
		log.WithError(errLimit).Warn("login rate limit check failed")
	} else if !result.Allowed {
		retryAfter := int(time.Until(result.Reset).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts"})
		return
	}

	normalized := dbutil.NormalizeIdentifier(identifier)
	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where(dbutil.CaseInsensitiveEqExpr("username")+" OR "+dbutil.CaseInsensitiveEqExpr("email"), normalized, normalized).
		First(&user).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		// Same response as a wrong password, no account probing.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid credentials"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if !security.VerifyPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid credentials"})
		return
	}

	issued, errIssue := h.issuer.Issue(c.Request.Context(), &user)
	if errIssue != nil {
		log.WithError(errIssue).Error("token issuance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	respondWithToken(c, issued)
}

// registerRequest defines the request body for registration.
type registerRequest struct {
	FullName    string `json:"fullName"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// Register creates a new user account after collision and field checks.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	fullName := strings.TrimSpace(body.FullName)
	username := strings.TrimSpace(body.Username)
	email := strings.TrimSpace(body.Email)
	phoneNumber := strings.TrimSpace(body.PhoneNumber)

	if collisions := h.collisionErrors(c, email, username); len(collisions) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": collisions})
		return
	}

	if fieldErrors := h.validator.Register(c.Request.Context(), fullName, username, body.Password, email, phoneNumber); len(fieldErrors) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": fieldErrors})
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	user := models.User{
		FullName:    fullName,
		Username:    username,
		Email:       email,
		Password:    hash,
		PhoneNumber: phoneNumber,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		// The unique indexes catch the race between the collision
		// check and the insert.
		if dbutil.IsUniqueViolation(errCreate) {
			collisions := h.collisionErrors(c, email, username)
			if len(collisions) == 0 {
				collisions = map[string]string{"username": "Username already exists"}
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": collisions})
			return
		}
		log.WithError(errCreate).Error("user insert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Registration successful!"})
}

// collisionErrors reports field errors for an email or username that is
// already taken.
func (h *AuthHandler) collisionErrors(c *gin.Context, email, username string) map[string]string {
	emailKey := dbutil.NormalizeIdentifier(email)
	usernameKey := dbutil.NormalizeIdentifier(username)

	var existing []models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where(dbutil.CaseInsensitiveEqExpr("email")+" OR "+dbutil.CaseInsensitiveEqExpr("username"), emailKey, usernameKey).
		Find(&existing).Error
	if errFind != nil || len(existing) == 0 {
		return nil
	}

	collisions := make(map[string]string)
	for _, user := range existing {
		if dbutil.NormalizeIdentifier(user.Email) == emailKey {
			collisions["email"] = "Email already exists"
		}
		if dbutil.NormalizeIdentifier(user.Username) == usernameKey {
			collisions["username"] = "Username already exists"
		}
	}
	return collisions
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":               user.ID,
		"full_name":        user.FullName,
		"username":         user.Username,
		"email":            user.Email,
		"phone_number":     user.PhoneNumber,
		"image_url":        user.ImageURL,
		"personal_details": user.PersonalDetails,
		"created_at":       user.CreatedAt,
		"updated_at":       user.UpdatedAt,
	})
}

// ValidateToken confirms the presented bearer token is valid.
func (h *AuthHandler) ValidateToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Token is valid"})
}

// Logout revokes the presented bearer token.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := currentToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
		return
	}

	if errLogout := h.issuer.Logout(c.Request.Context(), token); errLogout != nil {
		if errors.Is(errLogout, session.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
			return
		}
		log.WithError(errLogout).Error("logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

// Refresh rotates the presented bearer token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := currentToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
		return
	}

	issued, errRefresh := h.issuer.Refresh(c.Request.Context(), token)
	if errRefresh != nil {
		if errors.Is(errRefresh, session.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
			return
		}
		log.WithError(errRefresh).Error("token refresh failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}

	respondWithToken(c, issued)
}

// respondWithToken writes the standard token payload.
func respondWithToken(c *gin.Context, issued *session.Issued) {
	c.JSON(http.StatusOK, gin.H{
		"jwt_access_token": issued.Token,
		"token_type":       "bearer",
		"expires_in":       issued.ExpiresIn,
	})
}

// currentUser returns the user loaded by the auth middleware.
func currentUser(c *gin.Context) *models.User {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// currentToken returns the raw bearer token from the auth middleware.
func currentToken(c *gin.Context) string {
	value, ok := c.Get(ContextTokenKey)
	if !ok {
		return ""
	}
	token, ok := value.(string)
	if !ok {
		return ""
	}
	return token
}
