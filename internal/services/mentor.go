package services

import (
	"context"
	"mentor-marketplace/internal/db"
	"strings"
)

type MentorListQuery struct {
	PageQuery
	Search   string `form:"searchTerm"`
	Category string `form:"category"`
}

var mentorSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"rating":    "average_rating",
}

type MentorService struct {
	*Deps
}

func NewMentorService(d *Deps) *MentorService {
	return &MentorService{Deps: d}
}

// List returns active mentors whose premium is valid.
func (s *MentorService) List(ctx context.Context, q MentorListQuery) (*Page[db.User], error) {
	q.PageQuery = q.PageQuery.normalized()
	conn := s.DB.WithContext(ctx)
	query := conn.Model(&db.User{}).Preload("Profile").
		Where("users.role = ? AND users.status = ? AND users.is_premium = ? AND users.premium_expires > ?",
			db.RoleMentor, db.UserStatusActive, true, s.now())
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		query = query.Where(
			"LOWER(users.name) LIKE ? OR users.id IN (?) OR users.id IN (?)", like,
			conn.Model(&db.Profile{}).Select("user_id").Where("LOWER(bio) LIKE ? OR LOWER(expertise) LIKE ?", like, like),
			conn.Model(&db.Skill{}).Select("owner_id").Where("LOWER(title) LIKE ?", like),
		)
	}
	if q.Category != "" {
		query = query.Where("users.id IN (?)", conn.Model(&db.Skill{}).Select("owner_id").Where("category = ?", q.Category))
	}
	return paginate[db.User](query, q.PageQuery, "users."+q.order(mentorSortColumns, "created_at"))
}

func (s *MentorService) Get(ctx context.Context, id string) (*db.User, error) {
	var mentor db.User
	err := s.DB.WithContext(ctx).Preload("Profile").
		Preload("Skills", "is_published = ?", true).
		First(&mentor, "id = ? AND role = ? AND status = ?", id, db.RoleMentor, db.UserStatusActive).Error
	if err != nil {
		return nil, notFoundOr(err, "mentor")
	}
	return &mentor, nil
}
