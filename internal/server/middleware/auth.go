package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vittoria-system/internal/utils"
)

const orgContextKey = "org_id"

// JWTAuth validates the bearer token and resolves the tenant the caller is
// authenticated for. Requests without a resolvable tenant are rejected here,
// so catalog-scoped handlers never run without a tenant filter.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid or expired token",
			})
			return
		}

		orgID, err := uuid.Parse(claims.OrganizationId)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Token carries no organization context",
			})
			return
		}

		c.Set(orgContextKey, orgID)
		c.Set("user_id", claims.UserId)
		c.Next()
	}
}

// OrgID returns the tenant id the middleware resolved for this request.
func OrgID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(orgContextKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
