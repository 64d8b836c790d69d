package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"mentor-marketplace/internal/httpx"
	"mentor-marketplace/internal/logger"
	"mentor-marketplace/internal/services"
	"net/http"
)

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) listUsers(c *gin.Context) {
	var q services.UserListQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := s.Users.List(c.Request.Context(), httpx.Actor(c), q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "users retrieved", page)
}

func (s *Server) getUser(c *gin.Context) {
	user, err := s.Users.Get(c.Request.Context(), httpx.Actor(c), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "user retrieved", user)
}

func (s *Server) updateUser(c *gin.Context) {
	var in services.UpdateUserInput
	if !httpx.BindJSON(c, &in) {
		return
	}
	user, err := s.Users.Update(c.Request.Context(), httpx.Actor(c), c.Param("id"), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "user updated", user)
}

func (s *Server) deleteUser(c *gin.Context) {
	if err := s.Users.Delete(c.Request.Context(), httpx.Actor(c), c.Param("id")); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "user deleted", nil)
}

func (s *Server) updateUserRole(c *gin.Context) {
	var in roleRequest
	if !httpx.BindJSON(c, &in) {
		return
	}
	actor := httpx.Actor(c)
	user, err := s.Users.UpdateRole(c.Request.Context(), actor, c.Param("id"), in.Role)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	logger.LogAdminAction(actor.ID, "update_role", user.ID+" -> "+in.Role)
	httpx.SendSuccess(c, http.StatusOK, "role updated", user)
}

func (s *Server) updateUserStatus(c *gin.Context) {
	var in statusRequest
	if !httpx.BindJSON(c, &in) {
		return
	}
	actor := httpx.Actor(c)
	user, err := s.Users.UpdateStatus(c.Request.Context(), actor, c.Param("id"), in.Status)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	logger.LogAdminAction(actor.ID, "update_status", user.ID+" -> "+in.Status)
	httpx.SendSuccess(c, http.StatusOK, "status updated", user)
}

func (s *Server) uploadAvatar(c *gin.Context) {
	if s.Avatars == nil {
		httpx.SendError(c, http.StatusServiceUnavailable, "avatar uploads are not configured")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		httpx.SendError(c, http.StatusBadRequest, "file is required")
		return
	}
	if err := services.ValidateAvatar(fh.Filename, fh.Size); err != nil {
		httpx.Fail(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	defer f.Close()

	actor := httpx.Actor(c)
	url, err := s.Avatars.UploadAvatar(c.Request.Context(), actor.ID, fh.Filename, fh.Size, f)
	if err != nil {
		logger.Warn("avatar upload failed", zap.String("user_id", actor.ID), zap.Error(err))
		httpx.SendError(c, http.StatusBadGateway, "avatar upload failed")
		return
	}
	if err := s.Users.SetAvatar(c.Request.Context(), actor.ID, url); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "avatar updated", gin.H{"avatar": url})
}

func (s *Server) listMentors(c *gin.Context) {
	var q services.MentorListQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := s.Mentors.List(c.Request.Context(), q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "mentors retrieved", page)
}

func (s *Server) getMentor(c *gin.Context) {
	mentor, err := s.Mentors.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "mentor retrieved", mentor)
}

func (s *Server) listSkills(c *gin.Context) {
	var q services.SkillListQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := s.Skills.List(c.Request.Context(), q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "skills retrieved", page)
}

func (s *Server) getSkill(c *gin.Context) {
	skill, err := s.Skills.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "skill retrieved", skill)
}

func (s *Server) createSkill(c *gin.Context) {
	var in services.SkillInput
	if !httpx.BindJSON(c, &in) {
		return
	}
	skill, err := s.Skills.Create(c.Request.Context(), httpx.Actor(c), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusCreated, "skill created", skill)
}

func (s *Server) updateSkill(c *gin.Context) {
	var in services.SkillInput
	if !httpx.BindJSON(c, &in) {
		return
	}
	skill, err := s.Skills.Update(c.Request.Context(), httpx.Actor(c), c.Param("id"), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "skill updated", skill)
}

func (s *Server) deleteSkill(c *gin.Context) {
	if err := s.Skills.Delete(c.Request.Context(), httpx.Actor(c), c.Param("id")); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "skill deleted", nil)
}
