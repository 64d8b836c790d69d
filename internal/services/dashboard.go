package services

import (
	"context"
	"mentor-marketplace/internal/db"
	"time"
)

type DailyPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type AdminStats struct {
	Users               int64        `json:"users"`
	Mentors             int64        `json:"mentors"`
	PremiumUsers        int64        `json:"premiumUsers"`
	ActiveSubscriptions int64        `json:"activeSubscriptions"`
	Bookings            int64        `json:"bookings"`
	Skills              int64        `json:"skills"`
	RevenueToday        int64        `json:"revenueToday"`
	RevenueMonth        int64        `json:"revenueMonth"`
	RevenueTotal        int64        `json:"revenueTotal"`
	RecentUsers         []db.User    `json:"recentUsers"`
	Signups             []DailyPoint `json:"signups"`
	Messages            []DailyPoint `json:"messages"`
	Revenue             []DailyPoint `json:"revenue"`
}

type SkillStat struct {
	SkillID  string `json:"skillId"`
	Title    string `json:"title"`
	Bookings int64  `json:"bookings"`
}

type MentorDashboard struct {
	Earnings         int64       `json:"earnings"`
	TotalSessions    int64       `json:"totalSessions"`
	UpcomingSessions int64       `json:"upcomingSessions"`
	PendingRequests  int64       `json:"pendingRequests"`
	ReviewCount      int64       `json:"reviewCount"`
	AverageRating    float64     `json:"averageRating"`
	SkillStats       []SkillStat `json:"skillStats"`
}

type UserDashboard struct {
	MessagesSent      int64 `json:"messagesSent"`
	MessagesReceived  int64 `json:"messagesReceived"`
	Conversations     int64 `json:"conversations"`
	Bookings          int64 `json:"bookings"`
	UpcomingBookings  int64 `json:"upcomingBookings"`
	CompletedSessions int64 `json:"completedSessions"`
	FreeBookingsLeft  int   `json:"freeBookingsLeft"`
	IsPremium         bool  `json:"isPremium"`
}

type DashboardService struct {
	*Deps
}

func NewDashboardService(d *Deps) *DashboardService {
	return &DashboardService{Deps: d}
}

func (s *DashboardService) Admin(ctx context.Context) (*AdminStats, error) {
	conn := s.DB.WithContext(ctx)
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	st := &AdminStats{
		Users:               db.CountUsers(conn),
		Mentors:             db.CountUsersByRole(conn, db.RoleMentor),
		ActiveSubscriptions: db.CountActiveSubscriptions(conn),
		RevenueToday:        db.SumPayments(conn, today, now),
		RevenueMonth:        db.SumPayments(conn, now.AddDate(0, 0, -30), now),
		RevenueTotal:        db.SumPayments(conn, time.Time{}, now),
	}
	conn.Model(&db.User{}).Where("is_premium = ? AND premium_expires > ?", true, now).Count(&st.PremiumUsers)
	conn.Model(&db.Booking{}).Count(&st.Bookings)
	conn.Model(&db.Skill{}).Count(&st.Skills)
	if err := conn.Order("created_at desc").Limit(5).Find(&st.RecentUsers).Error; err != nil {
		return nil, err
	}

	for i := 6; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		end := start.Add(24 * time.Hour)
		label := start.Format("2006-01-02")
		var users, msgs int64
		conn.Model(&db.User{}).Where("created_at >= ? AND created_at < ?", start, end).Count(&users)
		conn.Model(&db.Message{}).Where("created_at >= ? AND created_at < ?", start, end).Count(&msgs)
		st.Signups = append(st.Signups, DailyPoint{Date: label, Count: users})
		st.Messages = append(st.Messages, DailyPoint{Date: label, Count: msgs})
		st.Revenue = append(st.Revenue, DailyPoint{Date: label, Count: db.SumPayments(conn, start, end.Add(-time.Nanosecond))})
	}
	return st, nil
}

func (s *DashboardService) Mentor(ctx context.Context, mentorID string) (*MentorDashboard, error) {
	conn := s.DB.WithContext(ctx)
	now := s.now()
	d := &MentorDashboard{}
	if err := conn.Model(&db.Booking{}).Where("mentor_id = ? AND status = ?", mentorID, db.BookingCompleted).
		Select("COALESCE(SUM(price_paid), 0)").Scan(&d.Earnings).Error; err != nil {
		return nil, err
	}
	conn.Model(&db.Booking{}).Where("mentor_id = ?", mentorID).Count(&d.TotalSessions)
	conn.Model(&db.Booking{}).Where("mentor_id = ? AND status = ? AND scheduled_at > ?", mentorID, db.BookingAccepted, now).
		Count(&d.UpcomingSessions)
	conn.Model(&db.Booking{}).Where("mentor_id = ? AND status = ?", mentorID, db.BookingPending).Count(&d.PendingRequests)
	conn.Model(&db.Review{}).Where("target_user_id = ?", mentorID).Count(&d.ReviewCount)
	conn.Model(&db.Review{}).Where("target_user_id = ?", mentorID).Select("COALESCE(AVG(rating), 0)").Scan(&d.AverageRating)
	if err := conn.Model(&db.Skill{}).
		Select("skills.id AS skill_id, skills.title AS title, COUNT(bookings.id) AS bookings").
		Joins("LEFT JOIN bookings ON bookings.skill_id = skills.id").
		Where("skills.owner_id = ?", mentorID).
		Group("skills.id, skills.title").
		Order("bookings desc").
		Scan(&d.SkillStats).Error; err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DashboardService) User(ctx context.Context, userID string) (*UserDashboard, error) {
	conn := s.DB.WithContext(ctx)
	now := s.now()
	var user db.User
	if err := conn.First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	d := &UserDashboard{FreeBookingsLeft: user.FreeBookingsLeft, IsPremium: userPremiumValid(&user, now)}
	conn.Model(&db.Message{}).Where("sender_id = ?", userID).Count(&d.MessagesSent)
	conn.Model(&db.Message{}).Where("receiver_id = ?", userID).Count(&d.MessagesReceived)
	conn.Model(&db.Conversation{}).Where("user_a_id = ? OR user_b_id = ?", userID, userID).Count(&d.Conversations)
	conn.Model(&db.Booking{}).Where("mentee_id = ?", userID).Count(&d.Bookings)
	conn.Model(&db.Booking{}).Where("mentee_id = ? AND status = ? AND scheduled_at > ?", userID, db.BookingAccepted, now).
		Count(&d.UpcomingBookings)
	conn.Model(&db.Booking{}).Where("mentee_id = ? AND status = ?", userID, db.BookingCompleted).Count(&d.CompletedSessions)
	return d, nil
}
