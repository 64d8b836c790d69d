package api

import (
	"github.com/gin-gonic/gin"
	"mentor-marketplace/internal/httpx"
	"mentor-marketplace/internal/services"
	"net/http"
)

type bookingStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type subscriptionRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

func (s *Server) createBooking(c *gin.Context) {
	var in services.CreateBookingInput
	if !httpx.BindJSON(c, &in) {
		return
	}
	res, err := s.Bookings.Create(c.Request.Context(), httpx.Actor(c).ID, in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	msg := "booking confirmed"
	if res.RequiresPayment {
		msg = "booking created, complete payment to confirm"
	}
	httpx.SendSuccess(c, http.StatusCreated, msg, res)
}

func (s *Server) myBookings(c *gin.Context) {
	var q services.BookingListQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := s.Bookings.ListAsMentee(c.Request.Context(), httpx.Actor(c).ID, q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "bookings retrieved", page)
}

func (s *Server) mentorBookings(c *gin.Context) {
	var q services.BookingListQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := s.Bookings.ListAsMentor(c.Request.Context(), httpx.Actor(c).ID, q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "bookings retrieved", page)
}

func (s *Server) getBooking(c *gin.Context) {
	booking, err := s.Bookings.Get(c.Request.Context(), httpx.Actor(c), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "booking retrieved", booking)
}

func (s *Server) updateBookingStatus(c *gin.Context) {
	var in bookingStatusRequest
	if !httpx.BindJSON(c, &in) {
		return
	}
	booking, err := s.Bookings.UpdateStatus(c.Request.Context(), httpx.Actor(c).ID, c.Param("id"), in.Status)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "booking status updated", booking)
}

func (s *Server) cancelBooking(c *gin.Context) {
	booking, err := s.Bookings.Cancel(c.Request.Context(), httpx.Actor(c).ID, c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "booking cancelled", booking)
}

func (s *Server) listPlans(c *gin.Context) {
	plans, err := s.Subscriptions.ListPlans(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "plans retrieved", plans)
}

func (s *Server) createSubscription(c *gin.Context) {
	var in subscriptionRequest
	if !httpx.BindJSON(c, &in) {
		return
	}
	out, err := s.Subscriptions.Create(c.Request.Context(), httpx.Actor(c).ID, in.PlanID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusCreated, "checkout session created", out)
}

func (s *Server) mySubscriptions(c *gin.Context) {
	subs, err := s.Subscriptions.ListMine(c.Request.Context(), httpx.Actor(c).ID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "subscriptions retrieved", subs)
}

func (s *Server) getSubscription(c *gin.Context) {
	sub, err := s.Subscriptions.Get(c.Request.Context(), httpx.Actor(c), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "subscription retrieved", sub)
}

func (s *Server) cancelSubscription(c *gin.Context) {
	sub, err := s.Subscriptions.Cancel(c.Request.Context(), httpx.Actor(c), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "subscription cancelled", sub)
}

func (s *Server) myPayments(c *gin.Context) {
	var q services.PaymentListQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := s.Payments.ListMine(c.Request.Context(), httpx.Actor(c).ID, q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "payments retrieved", page)
}
