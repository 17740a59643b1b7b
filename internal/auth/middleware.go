package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"libraryhub/internal/models"
)

const userKey = "auth.user"

// Resolver turns a raw bearer token into the stored user.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

// Authenticate resolves the caller from the Authorization header and stores
// the user on the context. Resolution failures are handed to fail, which is
// expected to write the response.
func Authenticate(r Resolver, fail func(*gin.Context, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := r.Resolve(c.Request.Context(), BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			fail(c, err)
			c.Abort()
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// RequireRole rejects callers whose stored role is not one of roles. It must
// run after Authenticate.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "unauthorized"})
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions", "code": "forbidden"})
	}
}

// RequireStaff allows admins and librarians.
func RequireStaff() gin.HandlerFunc {
	return RequireRole(models.UserRoleAdmin, models.UserRoleLibrarian)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

func GetUserID(c *gin.Context) uuid.UUID {
	if user, ok := CurrentUser(c); ok {
		return user.ID
	}
	return uuid.Nil
}

func GetUserRole(c *gin.Context) models.UserRole {
	if user, ok := CurrentUser(c); ok {
		return user.Role
	}
	return ""
}
