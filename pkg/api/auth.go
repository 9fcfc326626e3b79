package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ownerKey is the gin context key carrying the caller's identity.
const ownerKey = "owner"

// ownerIdentity extracts the caller identity from the X-User-ID header.
// Authentication itself is delegated to the fronting gateway; this service
// only scopes data by the forwarded identity.
func ownerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader("X-User-ID")
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "X-User-ID header is required",
			})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// owner returns the caller identity set by ownerIdentity.
func owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}
