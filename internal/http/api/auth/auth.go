// Package auth registers the authentication HTTP surface: login,
// registration, session management, and TOTP enrollment.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	handlers "github.com/sssdapp/commerce-api/internal/http/api/auth/handlers"
	"github.com/sssdapp/commerce-api/internal/ratelimit"
	"github.com/sssdapp/commerce-api/internal/session"
	"github.com/sssdapp/commerce-api/internal/totpenroll"
	"github.com/sssdapp/commerce-api/internal/validate"
	"gorm.io/gorm"
)

// RegisterAuthRoutes registers auth routes, middleware, and handlers.
func RegisterAuthRoutes(r *gin.Engine, db *gorm.DB, validator *validate.Validator, issuer *session.Issuer, enroller *totpenroll.Service, limiter *ratelimit.Manager) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authGroup := r.Group("/auth")

	authHandler := handlers.NewAuthHandler(db, validator, issuer, limiter)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/register", authHandler.Register)

	authed := authGroup.Group("")
	authed.Use(userAuthMiddleware(issuer))
	authed.GET("/me", authHandler.Me)
	authed.GET("/validateToken", authHandler.ValidateToken)
	authed.POST("/logout", authHandler.Logout)
	authed.POST("/refresh", authHandler.Refresh)

	totpHandler := handlers.NewTOTPHandler(enroller, validator)
	authed.GET("/generateTOTPSecret", totpHandler.GenerateSecret)
	authed.GET("/generateTOTPQRCode", totpHandler.GenerateQRCode)
	authed.POST("/validateTOTPSecret", totpHandler.ValidateCode)
}

// userAuthMiddleware validates bearer tokens and loads user context.
func userAuthMiddleware(issuer *session.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		user, _, errAuth := issuer.Authenticate(c.Request.Context(), token)
		if errAuth != nil {
			if errors.Is(errAuth, session.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			return
		}

		c.Set(handlers.ContextUserKey, user)
		c.Set(handlers.ContextTokenKey, token)
		c.Next()
	}
}
