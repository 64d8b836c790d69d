package api

import (
	"github.com/gin-gonic/gin"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/httpx"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-caller per-route minimum interval between calls.
type RateLimiter struct {
	mu       sync.Mutex
	lastCall map[string]map[string]time.Time
	limits   map[string]time.Duration
	fallback time.Duration
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		lastCall: make(map[string]map[string]time.Time),
		limits: map[string]time.Duration{
			"POST /api/v1/bookings/create":      5 * time.Second,
			"POST /api/v1/subscriptions/create": 10 * time.Second,
			"POST /api/v1/auth/login":           2 * time.Second,
			"POST /api/v1/auth/register":        5 * time.Second,
			"POST /api/v1/users/me/avatar":      10 * time.Second,
		},
		now: time.Now,
	}
}

// IsLimited reports whether caller hit route too soon and records the call otherwise.
func (r *RateLimiter) IsLimited(caller, route string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit, ok := r.limits[route]
	if !ok {
		limit = r.fallback
	}
	if limit <= 0 {
		return false
	}
	now := r.now()
	if r.lastCall[caller] == nil {
		r.lastCall[caller] = make(map[string]time.Time)
	}
	if last, seen := r.lastCall[caller][route]; seen && now.Sub(last) < limit {
		return true
	}
	r.lastCall[caller][route] = now
	return false
}

// Middleware keys anonymous callers by IP. Admins are never limited.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(httpx.KeyRole) == db.RoleAdmin {
			c.Next()
			return
		}
		caller := c.GetString(httpx.KeyUserID)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		if r.IsLimited(caller, c.Request.Method+" "+c.FullPath()) {
			httpx.SendError(c, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}
		c.Next()
	}
}
