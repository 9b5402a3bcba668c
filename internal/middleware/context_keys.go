package middleware

import "github.com/gin-gonic/gin"

// userIDKey is the key used to store the acting user's ID in the Gin
// context. Using a custom type prevents collisions.
const userIDKey = contextKey("userID")

// actorHeader carries the acting user's ID. The service trusts its callers;
// there is no authentication layer in front of the core.
const actorHeader = "X-Actor-ID"

// defaultActor attributes writes when the caller sends no actor header.
const defaultActor = "system"

// ActorMiddleware resolves the acting user for audit attribution and stores
// it in the Gin context.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(actorHeader)
		if actor == "" {
			actor = defaultActor
		}
		c.Set(string(userIDKey), actor)
		c.Next()
	}
}

// GetUserIDFromContext retrieves the acting user ID from the Gin context.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userIDVal, exists := c.Get(string(userIDKey))
	if !exists {
		userIDVal = c.Request.Context().Value(userIDKey)
		if userIDVal == nil {
			return "", false
		}
	}
	userID, ok := userIDVal.(string)
	if !ok {
		return "", false
	}
	return userID, true
}
