package httpx

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"mentor-marketplace/internal/logger"
	"mentor-marketplace/internal/services"
	"net/http"
)

// Response is the envelope of every JSON API response.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func SendSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func SendError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Error:   message,
	})
}

// Fail maps a service error to its status. Internal errors are logged and hidden.
func Fail(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	SendError(c, status, services.PublicMessage(err))
}

// BindJSON decodes the body or answers 400.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		SendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		SendError(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return false
	}
	return true
}
