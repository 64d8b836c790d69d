package admin

import (
	"encoding/csv"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/httpx"
	"mentor-marketplace/internal/logger"
	"mentor-marketplace/internal/services"
	"net/http"
	"path/filepath"
	"strconv"
	"time"
)

const maxExportRows = 10000

// Handlers serves the admin-only routes.
type Handlers struct {
	DB            *gorm.DB
	Payments      *services.PaymentService
	Subscriptions *services.SubscriptionService
	Backups       *Backups
	Now           func() time.Time
}

type Stats struct {
	Users               int64 `json:"users"`
	Mentors             int64 `json:"mentors"`
	PremiumUsers        int64 `json:"premiumUsers"`
	ActiveSubscriptions int64 `json:"activeSubscriptions"`
	NewUsers24h         int64 `json:"newUsers24h"`
	NewBookings24h      int64 `json:"newBookings24h"`
	RevenueToday        int64 `json:"revenueToday"`
	RevenueMonth        int64 `json:"revenueMonth"`
	RevenueTotal        int64 `json:"revenueTotal"`
}

func (h *Handlers) Register(g *gin.RouterGroup) {
	g.GET("/stats", h.stats)
	g.GET("/payments", h.payments)
	g.GET("/payments/export", h.exportPayments)
	g.GET("/revenue", h.revenue)
	g.POST("/subscriptions/activate/:session", h.activateSubscription)
	g.GET("/backups", h.listBackups)
	g.POST("/backups", h.createBackup)
	g.POST("/backups/restore", h.restoreBackup)
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// CollectStats gathers the headline numbers shown to admins.
func CollectStats(conn *gorm.DB, now time.Time) Stats {
	today := now.Truncate(24 * time.Hour)
	return Stats{
		Users:               db.CountUsers(conn),
		Mentors:             db.CountUsersByRole(conn, db.RoleMentor),
		PremiumUsers:        db.CountUsersByRole(conn, db.RolePremiumUser),
		ActiveSubscriptions: db.CountActiveSubscriptions(conn),
		NewUsers24h:         db.CountSince(conn, &db.User{}, now.Add(-24*time.Hour)),
		NewBookings24h:      db.CountSince(conn, &db.Booking{}, now.Add(-24*time.Hour)),
		RevenueToday:        db.SumPayments(conn, today, now),
		RevenueMonth:        db.SumPayments(conn, now.AddDate(0, 0, -30), now),
		RevenueTotal:        db.SumPayments(conn, time.Time{}, now),
	}
}

func (h *Handlers) stats(c *gin.Context) {
	st := CollectStats(h.DB.WithContext(c.Request.Context()), h.now())
	logger.LogAdminAction(httpx.Actor(c).ID, "stats", "")
	httpx.SendSuccess(c, http.StatusOK, "stats retrieved", st)
}

// payments lists payments in a date range, e.g. ?from=2024-01-01&to=2024-01-31.
func (h *Handlers) payments(c *gin.Context) {
	var q services.PaymentListQuery
	if !httpx.BindQuery(c, &q) {
		return
	}
	page, err := h.Payments.ListAll(c.Request.Context(), q)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	logger.LogAdminAction(httpx.Actor(c).ID, "payments", q.From+".."+q.To)
	httpx.SendSuccess(c, http.StatusOK, "payments retrieved", page)
}

func (h *Handlers) exportPayments(c *gin.Context) {
	now := h.now()
	from, to := now.AddDate(0, 0, -30), now
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			httpx.SendError(c, http.StatusBadRequest, "invalid from date, use YYYY-MM-DD")
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			httpx.SendError(c, http.StatusBadRequest, "invalid to date, use YYYY-MM-DD")
			return
		}
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	pays := db.GetPayments(h.DB.WithContext(c.Request.Context()), from, to, 0, maxExportRows)

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="payments.csv"`)
	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "user_id", "purpose", "amount", "currency", "status", "transaction_id", "created_at"})
	for _, p := range pays {
		tx := ""
		if p.TransactionID != nil {
			tx = *p.TransactionID
		}
		_ = w.Write([]string{p.ID, p.UserID, p.Purpose, strconv.Itoa(p.Amount), p.Currency, p.Status, tx,
			p.CreatedAt.Format(time.RFC3339)})
	}
	w.Flush()
	logger.LogAdminAction(httpx.Actor(c).ID, "payments_export", strconv.Itoa(len(pays)))
}

func (h *Handlers) revenue(c *gin.Context) {
	rev, err := h.Payments.Revenue(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "revenue retrieved", rev)
}

// activateSubscription confirms a subscription whose webhook never arrived.
func (h *Handlers) activateSubscription(c *gin.Context) {
	session := c.Param("session")
	sub, err := h.Subscriptions.Activate(c.Request.Context(), session)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	logger.LogAdminAction(httpx.Actor(c).ID, "subscription_activate", session)
	httpx.SendSuccess(c, http.StatusOK, "subscription activated", sub)
}

func (h *Handlers) listBackups(c *gin.Context) {
	files, err := h.Backups.List()
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SendSuccess(c, http.StatusOK, "backups retrieved", files)
}

func (h *Handlers) createBackup(c *gin.Context) {
	actor := httpx.Actor(c)
	filename, err := h.Backups.Dump(c.Request.Context(), "backup")
	if err != nil {
		logger.Error("manual backup failed", zap.Error(err))
		httpx.SendError(c, http.StatusInternalServerError, "backup failed")
		return
	}
	logger.LogAdminAction(actor.ID, "backup", filename)
	if err := logger.SendAdminDocument(filename, "Database backup requested by "+actor.ID); err != nil {
		logger.Warn("backup delivery failed", zap.Error(err))
	}
	httpx.SendSuccess(c, http.StatusCreated, "backup created", gin.H{"file": filepath.Base(filename)})
}

type restoreRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handlers) restoreBackup(c *gin.Context) {
	var in restoreRequest
	if !httpx.BindJSON(c, &in) {
		return
	}
	actor := httpx.Actor(c)
	if err := h.Backups.Restore(c.Request.Context(), in.Name); err != nil {
		logger.Error("restore failed", zap.String("file", in.Name), zap.Error(err))
		httpx.SendError(c, http.StatusInternalServerError, "restore failed")
		return
	}
	logger.LogAdminAction(actor.ID, "restore", in.Name)
	logger.NotifyAdmin("Database restored from " + in.Name + " by " + actor.ID)
	httpx.SendSuccess(c, http.StatusOK, "restore completed", gin.H{"file": in.Name})
}
