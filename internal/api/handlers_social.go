package api

import (
	"github.com/gin-gonic/gin"
	"mentor-marketplace/internal/httpx"
	"mentor-marketplace/internal/services"
	"net/http"
)

type conversationRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (s *Server) mentorReviews(c *gin.Context) {
	var q services.PageQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := s.Reviews.ListForMentor(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "reviews retrieved", page)
}

func (s *Server) createReview(c *gin.Context) {
	var in services.CreateReviewInput
	if !httpx.BindJSON(c, &in) {
		return
	}
	review, err := s.Reviews.Create(c.Request.Context(), httpx.Actor(c), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusCreated, "review created", review)
}

func (s *Server) updateReview(c *gin.Context) {
	var in services.UpdateReviewInput
	if !httpx.BindJSON(c, &in) {
		return
	}
	review, err := s.Reviews.Update(c.Request.Context(), httpx.Actor(c), c.Param("id"), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "review updated", review)
}

func (s *Server) deleteReview(c *gin.Context) {
	if err := s.Reviews.Delete(c.Request.Context(), httpx.Actor(c), c.Param("id")); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "review deleted", nil)
}

func (s *Server) createConversation(c *gin.Context) {
	var in conversationRequest
	if !httpx.BindJSON(c, &in) {
		return
	}
	conv, err := s.Chat.CreateOrGet(c.Request.Context(), httpx.Actor(c), in.UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "conversation ready", conv)
}

func (s *Server) listConversations(c *gin.Context) {
	convs, err := s.Chat.ListConversations(c.Request.Context(), httpx.Actor(c))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "conversations retrieved", convs)
}

func (s *Server) listMessages(c *gin.Context) {
	var q services.PageQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := s.Chat.ListMessages(c.Request.Context(), httpx.Actor(c), c.Param("id"), q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "messages retrieved", page)
}

func (s *Server) sendMessage(c *gin.Context) {
	var in services.SendMessageInput
	if !httpx.BindJSON(c, &in) {
		return
	}
	msg, err := s.Chat.Send(c.Request.Context(), httpx.Actor(c), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusCreated, "message sent", msg)
}

func (s *Server) adminDashboard(c *gin.Context) {
	stats, err := s.Dashboard.Admin(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "dashboard retrieved", stats)
}

func (s *Server) mentorDashboard(c *gin.Context) {
	stats, err := s.Dashboard.Mentor(c.Request.Context(), httpx.Actor(c).ID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "dashboard retrieved", stats)
}

func (s *Server) userDashboard(c *gin.Context) {
	stats, err := s.Dashboard.User(c.Request.Context(), httpx.Actor(c).ID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "dashboard retrieved", stats)
}
