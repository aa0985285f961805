package middleware

import (
	"errors"
	"net/http"
	"strings"

	"SceneForge-server/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const UserIDKey = "user_id"

var (
	errMissingToken = errors.New("missing bearer token")
	errNoSubject    = errors.New("token has no subject")
)

// ParseToken verifies an HS256 token and returns its subject.
func ParseToken(secret, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errNoSubject
	}
	return claims.Subject, nil
}

// bearer reads the token from the Authorization header, falling back to the
// token query parameter for websocket clients.
func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Query("token")
}

// RequireUser rejects requests without a valid token and stores the token
// subject under UserIDKey.
func RequireUser(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			abort(c, &service.ConfigError{Key: "JWT_SECRET"})
			return
		}
		raw := bearer(c)
		if raw == "" {
			abortUnauthorized(c, errMissingToken)
			return
		}
		sub, err := ParseToken(secret, raw)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}
		c.Set(UserIDKey, sub)
		c.Next()
	}
}

// OptionalUser stores the token subject when a valid token is present and
// lets every request through.
func OptionalUser(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearer(c); raw != "" && secret != "" {
			if sub, err := ParseToken(secret, raw); err == nil {
				c.Set(UserIDKey, sub)
			}
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(service.HTTPStatus(err), gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    service.ErrorCode(err),
	})
}

func abortUnauthorized(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "unauthorized: " + err.Error(),
		"code":    "unauthorized",
	})
}
