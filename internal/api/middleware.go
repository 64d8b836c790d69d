package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"mentor-marketplace/internal/auth"
	"mentor-marketplace/internal/httpx"
	"mentor-marketplace/internal/logger"
	"net/http"
	"strings"
	"time"
)

const accessTokenCookie = "accessToken"

// RequestLogger writes one zap line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if uid := c.GetString(httpx.KeyUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("http request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
	}
}

// Recovery turns panics into 500 and alerts the admin.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in handler", zap.String("path", c.Request.URL.Path), zap.Any("panic", r))
				logger.NotifyAdmin("Panic in " + c.Request.Method + " " + c.Request.URL.Path)
				httpx.SendError(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		h = strings.TrimSpace(h)
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return h
	}
	if v, err := c.Cookie(accessTokenCookie); err == nil {
		return v
	}
	return ""
}

// JWTAuth accepts an access token from the Authorization header or the accessToken cookie.
func JWTAuth(tokens *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := tokenFromRequest(c)
		if tok == "" {
			httpx.SendError(c, http.StatusUnauthorized, "you are not authorized")
			return
		}
		claims, err := tokens.ParseValidate(tok, auth.TokenAccess)
		if err != nil {
			httpx.SendError(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(httpx.KeyUserID, claims.Sub)
		c.Set(httpx.KeyRole, claims.Role)
		c.Set(httpx.KeyEmail, claims.Email)
		c.Next()
	}
}

func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(httpx.KeyRole)
		if _, ok := allowed[role]; !ok {
			httpx.SendError(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}
