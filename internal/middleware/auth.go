// Package middleware provides HTTP middleware components for authentication,
// authorization, telemetry, and other cross-cutting concerns.
package middleware

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionIDKey is the gin context key holding the authenticated session id.
const SessionIDKey = "session_id"

const tokenIssuer = "optionscope"

// SessionClaims represents the claims of a session token.
type SessionClaims struct {
	// SessionID is the session the bearer may drive.
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// AuthMiddleware issues and checks session tokens.
type AuthMiddleware struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware.
//
// Parameters:
//
//	secretKey: Secret key for signing tokens. Empty generates a random
//	  per-process key, so tokens do not survive a restart.
//	tokenTTL: Lifetime of issued tokens.
//
// Returns:
//
//	*AuthMiddleware: Initialized middleware.
func NewAuthMiddleware(secretKey string, tokenTTL time.Duration) *AuthMiddleware {
	key := []byte(secretKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &AuthMiddleware{
		secretKey: key,
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// GenerateToken creates a token that grants access to one session.
//
// Parameters:
//
//	sessionID: Session identifier.
//
// Returns:
//
//	string: Signed token string.
//	time.Time: Expiry of the token.
//	error: Error if generation fails.
func (am *AuthMiddleware) GenerateToken(sessionID string) (string, time.Time, error) {
	now := am.now()
	expiresAt := now.Add(am.tokenTTL)
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(am.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a session token and returns its claims.
func (am *AuthMiddleware) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.secretKey, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(am.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// RequireSession validates the bearer token and checks that it was issued
// for the session named by the idParam route parameter. The token may also
// be passed as the "token" query parameter for EventSource clients, which
// cannot set headers.
func (am *AuthMiddleware) RequireSession(idParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := am.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if claims.SessionID != c.Param(idParam) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token does not grant access to this session"})
			return
		}

		c.Set(SessionIDKey, claims.SessionID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		// Check Bearer prefix (case-insensitive as per RFC 6750)
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" || tokenParts[1] == "" {
			return "", false
		}
		return tokenParts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}
