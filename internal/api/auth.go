// Package api is the HTTP surface of the moderation engine: collaborator
// endpoints for the chat and identity services, the user-facing warning
// endpoints and the admin console API.
package api

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles carried in the token's role claim.
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)

const (
	ctxSubject = "subject"
	ctxRole    = "role"
)

// Claims are the bearer token claims. Subject is the caller's user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for subject with the given role.
func SignToken(secret []byte, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// JWTAuth validates the bearer token and stores subject and role in the
// gin context.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		const bearer = "Bearer "
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearer) {
			errorResponse(c, http.StatusUnauthorized, "bearer token required")
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(header[len(bearer):], claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				errorResponse(c, http.StatusUnauthorized, "token has expired")
			} else {
				log.Printf("[api] rejected token: %v", err)
				errorResponse(c, http.StatusUnauthorized, "invalid token")
			}
			c.Abort()
			return
		}
		if claims.Subject == "" || claims.Role == "" {
			errorResponse(c, http.StatusUnauthorized, "token missing sub or role")
			c.Abort()
			return
		}

		c.Set(ctxSubject, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller holds one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		errorResponse(c, http.StatusForbidden, "insufficient role")
		c.Abort()
	}
}

// callerID returns the caller's subject as an ObjectID, writing a 401 when
// the subject is not one.
func callerID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString(ctxSubject))
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "token subject is not a user id")
		return primitive.NilObjectID, false
	}
	return id, true
}
