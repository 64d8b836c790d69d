package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"mentor-marketplace/internal/admin"
	"mentor-marketplace/internal/auth"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/services"
	"net/http"
	"time"
)

// Server bundles the services behind the HTTP API.
type Server struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Mentors       *services.MentorService
	Skills        *services.SkillService
	Bookings      *services.BookingService
	Subscriptions *services.SubscriptionService
	Payments      *services.PaymentService
	Reviews       *services.ReviewService
	Chat          *services.ChatService
	Dashboard     *services.DashboardService
	Reconciler    *services.Reconciler
	Health        *services.HealthChecker
	Admin         *admin.Handlers
	Avatars       services.AvatarStore
	Tokens        *auth.Issuer
	Limiter       *RateLimiter

	WebhookSecret string
	CORSOrigins   []string
	CookieSecure  bool
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(), Recovery())
	// cors.New panics on an empty origin list; no origins means same-origin only.
	if len(s.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if s.Limiter == nil {
		s.Limiter = NewRateLimiter()
	}

	webhook := services.WebhookHandler(s.WebhookSecret, s.Reconciler)
	r.POST("/webhook", webhook)
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	v1.POST("/webhook", webhook)

	authed := JWTAuth(s.Tokens)
	limit := s.Limiter.Middleware()

	a := v1.Group("/auth")
	a.POST("/register", limit, s.register)
	a.POST("/login", limit, s.login)
	a.POST("/refresh", s.refresh)
	a.POST("/logout", s.logout)
	a.GET("/me", authed, s.me)

	users := v1.Group("/users", authed)
	users.GET("", s.listUsers)
	users.GET("/:id", s.getUser)
	users.PATCH("/:id", s.updateUser)
	users.DELETE("/:id", s.deleteUser)
	users.POST("/me/avatar", limit, s.uploadAvatar)
	users.PATCH("/:id/role", RequireRole(db.RoleAdmin), s.updateUserRole)
	users.PATCH("/:id/status", RequireRole(db.RoleAdmin), s.updateUserStatus)

	mentors := v1.Group("/mentors")
	mentors.GET("", s.listMentors)
	mentors.GET("/:id", s.getMentor)

	skills := v1.Group("/skills")
	skills.GET("", s.listSkills)
	skills.GET("/:id", s.getSkill)
	skills.POST("", authed, RequireRole(db.RoleMentor, db.RoleAdmin), s.createSkill)
	skills.PATCH("/:id", authed, s.updateSkill)
	skills.DELETE("/:id", authed, s.deleteSkill)

	bookings := v1.Group("/bookings", authed)
	bookings.POST("/create", RequireRole(db.RoleUser, db.RolePremiumUser), limit, s.createBooking)
	bookings.GET("/my-bookings", s.myBookings)
	bookings.GET("/mentor", RequireRole(db.RoleMentor), s.mentorBookings)
	bookings.GET("/:id", s.getBooking)
	bookings.PATCH("/:id/status", RequireRole(db.RoleMentor), s.updateBookingStatus)
	bookings.PATCH("/:id/cancel", s.cancelBooking)

	subs := v1.Group("/subscriptions")
	subs.GET("/plans", s.listPlans)
	subs.POST("/create", authed, RequireRole(db.RoleUser, db.RoleMentor), limit, s.createSubscription)
	subs.GET("", authed, s.mySubscriptions)
	subs.GET("/:id", authed, s.getSubscription)
	subs.PATCH("/cancel/:id", authed, s.cancelSubscription)

	v1.GET("/payments/my", authed, s.myPayments)

	reviews := v1.Group("/reviews")
	reviews.GET("/mentor/:id", s.mentorReviews)
	reviews.POST("", authed, s.createReview)
	reviews.PATCH("/:id", authed, s.updateReview)
	reviews.DELETE("/:id", authed, s.deleteReview)

	chat := v1.Group("/chat", authed)
	chat.POST("/conversations", s.createConversation)
	chat.GET("/conversations", s.listConversations)
	chat.GET("/conversations/:id/messages", s.listMessages)
	chat.POST("/messages", s.sendMessage)

	dash := v1.Group("/dashboard", authed)
	dash.GET("/admin", RequireRole(db.RoleAdmin), s.adminDashboard)
	dash.GET("/mentor", RequireRole(db.RoleMentor), s.mentorDashboard)
	dash.GET("/user", s.userDashboard)

	if s.Admin != nil {
		s.Admin.Register(v1.Group("/admin", authed, RequireRole(db.RoleAdmin)))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "route not found"})
	})
	return r
}

func (s *Server) health(c *gin.Context) {
	if s.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	status := http.StatusOK
	state := "ok"
	if !s.Health.Healthy() {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "dependencies": s.Health.Statuses()})
}
