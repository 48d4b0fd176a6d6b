package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"ideapulse-marketplace/pkg/errutil"
)

type userKey struct{}

var userContextKey = userKey{}

// UserIDHeader carries the authenticated user id resolved by the external
// identity provider sitting in front of this service.
const UserIDHeader = "X-User-ID"

// Identity copies the identity header into the request context so services
// can resolve the current user without touching the transport.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
			ctx := context.WithValue(c.Request.Context(), userContextKey, id)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// WithUser returns a context carrying the given user id. Used by tests and
// the worker, which have no HTTP request to derive it from.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

// CurrentUser returns the authenticated user id or an unauthorized error.
func CurrentUser(ctx context.Context) (string, error) {
	id, ok := ctx.Value(userContextKey).(string)
	if !ok || id == "" {
		return "", errutil.Unauthorized("no authenticated user", nil)
	}
	return id, nil
}
