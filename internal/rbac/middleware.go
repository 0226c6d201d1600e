package rbac

import (
	"net/http"

	"survey-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireIdentity enforces that the auth middleware ran and left a user id in context.
// This does not validate the role; chain RequireAnyRole for that.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil || uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - roles outside the closed set are rejected
// - the hidden system role is denied unless explicitly allowed
func RequireAnyRole(allowed ...Role) gin.HandlerFunc {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		raw, err := auth.Role(c.Request.Context())
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		role, ok := ParseRole(raw)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// FromContext returns the caller's role from the request context.
func FromContext(c *gin.Context) (Role, bool) {
	raw, err := auth.Role(c.Request.Context())
	if err != nil {
		return "", false
	}
	return ParseRole(raw)
}
