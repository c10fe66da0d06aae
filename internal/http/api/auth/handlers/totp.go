package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/sssdapp/commerce-api/internal/totpenroll"
	"github.com/sssdapp/commerce-api/internal/validate"
)

// TOTPHandler manages TOTP enrollment and verification endpoints.
type TOTPHandler struct {
	enroller  *totpenroll.Service
	validator *validate.Validator
}

// NewTOTPHandler constructs a TOTPHandler.
func NewTOTPHandler(enroller *totpenroll.Service, validator *validate.Validator) *TOTPHandler {
	return &TOTPHandler{enroller: enroller, validator: validator}
}

// GenerateSecret enrolls the authenticated user with a new TOTP secret.
func (h *TOTPHandler) GenerateSecret(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
		return
	}

	secret, errEnroll := h.enroller.Enroll(c.Request.Context(), user)
	if errEnroll != nil {
		if errors.Is(errEnroll, totpenroll.ErrAlreadyExists) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "User already has a TOTP secret"})
			return
		}
		log.WithError(errEnroll).Error("totp enrollment failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"secret": secret.Secret})
}

// GenerateQRCode returns provisioning material for the enrolled secret.
func (h *TOTPHandler) GenerateQRCode(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
		return
	}

	provisioning, errProv := h.enroller.Provisioning(c.Request.Context(), user)
	if errProv != nil {
		if errors.Is(errProv, totpenroll.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "TOTP secret not found for the user"})
			return
		}
		log.WithError(errProv).Error("totp provisioning failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "provisioning failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"qr_code_uri": provisioning.QRURL,
		"qr_code":     provisioning.QRDataURI,
	})
}

// validateTOTPRequest defines the request body for code verification.
type validateTOTPRequest struct {
	Secret string `json:"secret"`
}

// ValidateCode verifies a submitted one-time code against the enrolled
// secret.
func (h *TOTPHandler) ValidateCode(c *gin.Context) {
	var body validateTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	code := strings.ReplaceAll(body.Secret, " ", "")
	if errShape := h.validator.TOTPCode(code); errShape != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errShape.Error()})
		return
	}

	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
		return
	}

	errVerify := h.enroller.Verify(c.Request.Context(), user, code)
	switch {
	case errVerify == nil:
		c.JSON(http.StatusOK, gin.H{"message": "TOTP secret is valid"})
	case errors.Is(errVerify, totpenroll.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "TOTP secret not found for the user"})
	case errors.Is(errVerify, totpenroll.ErrInvalidCode):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid TOTP secret"})
	default:
		log.WithError(errVerify).Error("totp verification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
	}
}
