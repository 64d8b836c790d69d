package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mentor-marketplace/internal/auth"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/httpx"
	"mentor-marketplace/internal/services"
	"mentor-marketplace/internal/testutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTAuth(t *testing.T) {
	tokens := auth.NewIssuer("secret", time.Minute, time.Hour)
	access, err := tokens.CreateAccessToken("u1", db.RoleUser, "u1@example.com")
	require.NoError(t, err)
	refresh, err := tokens.CreateRefreshToken("u1", db.RoleUser, "u1@example.com")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", JWTAuth(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, httpx.Actor(c).ID+"/"+httpx.Actor(c).Role)
	})

	tests := []struct {
		desc   string
		header string
		cookie string
		want   int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"bearer access token", "Bearer " + access, "", http.StatusOK},
		{"bare access token", access, "", http.StatusOK},
		{"cookie access token", "", access, http.StatusOK},
		{"refresh token as access", "Bearer " + refresh, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if tt.cookie != "" {
			req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: tt.cookie})
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.want, w.Code, tt.desc)
		if tt.want == http.StatusOK {
			assert.Equal(t, "u1/"+db.RoleUser, w.Body.String(), tt.desc)
		}
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role string
		want int
	}{
		{db.RoleMentor, http.StatusOK},
		{db.RoleAdmin, http.StatusOK},
		{db.RoleUser, http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) { c.Set(httpx.KeyRole, tt.role) }, RequireRole(db.RoleMentor, db.RoleAdmin),
			func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, tt.want, w.Code, "role %q", tt.role)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }
	route := "POST /api/v1/bookings/create"

	assert.False(t, rl.IsLimited("u1", route))
	assert.True(t, rl.IsLimited("u1", route))
	assert.False(t, rl.IsLimited("u2", route))
	assert.False(t, rl.IsLimited("u1", "GET /api/v1/skills"))

	now = now.Add(5 * time.Second)
	assert.False(t, rl.IsLimited("u1", route))
}

func TestHealthEndpoint(t *testing.T) {
	hc := services.NewHealthChecker()
	hc.Register("database", func(context.Context) error { return nil })
	hc.Register("rabbitmq", func(context.Context) error { return errors.New("connection refused") })
	hc.UpdateAll(context.Background())

	s := &Server{Health: hc, CORSOrigins: []string{"http://localhost:3000"}}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status       string                      `json:"status"`
		Dependencies []services.DependencyStatus `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Len(t, body.Dependencies, 2)
}

func TestRouterCORS(t *testing.T) {
	tests := []struct {
		desc    string
		origins []string
		want    string
	}{
		{"allowed origin", []string{"http://localhost:3000"}, "http://localhost:3000"},
		{"no origins configured", nil, ""},
	}
	for _, tt := range tests {
		s := &Server{CORSOrigins: tt.origins}
		var r *gin.Engine
		require.NotPanics(t, func() { r = s.Router() }, tt.desc)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, tt.desc)
		assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"), tt.desc)
	}
}

func TestCreateBookingRoute(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	mentor := env.Mentor(t, "mentor@example.com", now.AddDate(0, 0, 30))
	mentee := env.User(t, "mentee@example.com")
	skill := env.Skill(t, mentor.ID, nil)
	tokens := auth.NewIssuer("secret", time.Minute, time.Hour)
	s := &Server{Bookings: services.NewBookingService(env.Deps), Tokens: tokens,
		CORSOrigins: []string{"http://localhost:3000"}}
	r := s.Router()

	body, err := json.Marshal(services.CreateBookingInput{
		SkillID:     skill.ID,
		MentorID:    mentor.ID,
		ScheduledAt: now.Add(24 * time.Hour).Format(time.RFC3339),
		DurationMin: 60,
	})
	require.NoError(t, err)
	post := func(userID, role string) *httptest.ResponseRecorder {
		tok, err := tokens.CreateAccessToken(userID, role, "")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/create", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, post(mentor.ID, db.RoleMentor).Code)

	w := post(mentee.ID, db.RoleUser)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Data    services.BookingResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "booking confirmed", resp.Message)
	assert.Equal(t, db.BookingAccepted, resp.Data.Booking.Status)

	// Second attempt inside the rate window is refused before the service runs.
	assert.Equal(t, http.StatusTooManyRequests, post(mentee.ID, db.RoleUser).Code)
}

func TestFailMapsServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{services.ErrSelfBooking, http.StatusBadRequest, services.ErrSelfBooking.Message},
		{services.NotFound("booking"), http.StatusNotFound, "booking not found"},
		{services.ErrUserBlocked, http.StatusForbidden, "account is blocked"},
		{services.ErrPaymentInitiation, http.StatusBadGateway, "could not initiate payment"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) { httpx.Fail(c, tt.err) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, tt.code, w.Code, tt.err.Error())

		var resp httpx.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, tt.msg, resp.Error)
	}
}
