package httpx

import (
	"github.com/gin-gonic/gin"
	"mentor-marketplace/internal/services"
)

const (
	KeyUserID = "sub"
	KeyRole   = "role"
	KeyEmail  = "email"
)

// Actor returns the caller set by the auth middleware.
func Actor(c *gin.Context) services.Actor {
	return services.Actor{ID: c.GetString(KeyUserID), Role: c.GetString(KeyRole)}
}
