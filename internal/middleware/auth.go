package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"schoolcomms/internal/config"
	"schoolcomms/pkg/response"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// TenantIDKey is the context key for the authenticated tenant
	TenantIDKey ContextKey = "tenant_id"
	// TokenKey is the context key for the JWT token
	TokenKey ContextKey = "token"
)

// Claims is the JWT claims structure issued by the school admin panel.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates bearer tokens from the admin panel and binds
// the tenant onto the request context. Every tenant-scoped route sits
// behind it.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		tokenString := parts[1]

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(cfg.JWT.Secret), nil
		},
			jwt.WithIssuer(cfg.JWT.Issuer),
			jwt.WithAudience(cfg.JWT.Audience),
		)

		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Unauthorized(c, "Token has expired")
			} else {
				response.Unauthorized(c, "Invalid token")
			}
			c.Abort()
			return
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid {
			response.Unauthorized(c, "Invalid token claims")
			c.Abort()
			return
		}

		if claims.TenantID == "" {
			response.Unauthorized(c, "Token carries no tenant")
			c.Abort()
			return
		}

		c.Set(string(TenantIDKey), claims.TenantID)
		c.Set(string(TokenKey), tokenString)

		ctx := context.WithValue(c.Request.Context(), TenantIDKey, claims.TenantID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
