package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
)

const principalKey = "principal"

// Principal is the authenticated caller attached to the request.
type Principal struct {
	UserID int64
	Role   string
}

// PrincipalLoader resolves the live account behind a token. It returns an
// error wrapping apperror.ErrNotFound when the account no longer exists.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (Principal, error)
}

// Middleware guards routes with bearer tokens and capabilities.
type Middleware struct {
	issuer *Issuer
	loader PrincipalLoader
	logger *zap.SugaredLogger
}

func NewMiddleware(issuer *Issuer, loader PrincipalLoader, logger *zap.SugaredLogger) *Middleware {
	return &Middleware{issuer: issuer, loader: loader, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token. The role is
// reloaded from storage so promotions and demotions apply immediately.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized, no token."})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized, malformed token."})
			return
		}
		claims, err := m.issuer.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.Debugw("token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized, token failed."})
			return
		}
		p, err := m.loader.LoadPrincipal(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "User not found."})
				return
			}
			m.logger.Errorw("load principal", "err", err, "userId", claims.UserID)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// Require rejects callers whose role lacks any of caps. It must run after
// RequireAuth.
func (m *Middleware) Require(caps ...Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized."})
			return
		}
		if !Allows(p.Role, caps...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied."})
			return
		}
		c.Next()
	}
}

// FromContext returns the principal set by RequireAuth.
func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// WithPrincipal attaches p to c; handlers under test use it in place of
// RequireAuth.
func WithPrincipal(c *gin.Context, p Principal) {
	c.Set(principalKey, p)
}
