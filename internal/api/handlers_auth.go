package api

import (
	"github.com/gin-gonic/gin"
	"mentor-marketplace/internal/httpx"
	"mentor-marketplace/internal/services"
	"net/http"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

const refreshTokenCookie = "refreshToken"

func (s *Server) register(c *gin.Context) {
	var in services.RegisterInput
	if !httpx.BindJSON(c, &in) {
		return
	}
	user, err := s.Auth.Register(c.Request.Context(), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusCreated, "user registered", user)
}

func (s *Server) login(c *gin.Context) {
	var in loginRequest
	if !httpx.BindJSON(c, &in) {
		return
	}
	pair, err := s.Auth.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	s.setAuthCookies(c, pair)
	httpx.SendSuccess(c, http.StatusOK, "logged in", pair)
}

func (s *Server) refresh(c *gin.Context) {
	var in refreshRequest
	_ = c.ShouldBindJSON(&in)
	if in.RefreshToken == "" {
		in.RefreshToken, _ = c.Cookie(refreshTokenCookie)
	}
	if in.RefreshToken == "" {
		httpx.SendError(c, http.StatusUnauthorized, "refresh token missing")
		return
	}
	pair, err := s.Auth.Refresh(c.Request.Context(), in.RefreshToken)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	s.setAuthCookies(c, pair)
	httpx.SendSuccess(c, http.StatusOK, "token refreshed", pair)
}

func (s *Server) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookie, "", -1, "/", "", s.CookieSecure, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", s.CookieSecure, true)
	httpx.SendSuccess(c, http.StatusOK, "logged out", nil)
}

func (s *Server) me(c *gin.Context) {
	actor := httpx.Actor(c)
	user, err := s.Users.Get(c.Request.Context(), actor, actor.ID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "profile retrieved", user)
}

func (s *Server) setAuthCookies(c *gin.Context, pair *services.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookie, pair.AccessToken, int(s.Tokens.AccessTTL().Seconds()), "/", "", s.CookieSecure, true)
	c.SetCookie(refreshTokenCookie, pair.RefreshToken, 0, "/api/v1/auth", "", s.CookieSecure, true)
}
