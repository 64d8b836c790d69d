package services

import (
	"context"
	"gorm.io/gorm"
	"mentor-marketplace/internal/db"
	"strings"
)

type SkillInput struct {
	Title        *string  `json:"title"`
	Category     *string  `json:"category"`
	Description  *string  `json:"description"`
	Level        *string  `json:"level"`
	PricePerHour *int     `json:"pricePerHour"`
	Tags         []string `json:"tags"`
	IsPublished  *bool    `json:"isPublished"`
}

type SkillListQuery struct {
	PageQuery
	Search   string `form:"searchTerm"`
	Category string `form:"category"`
	Level    string `form:"level"`
	OwnerID  string `form:"ownerId"`
	MinPrice *int   `form:"minPrice"`
	MaxPrice *int   `form:"maxPrice"`
}

var skillSortColumns = map[string]string{
	"createdAt":    "created_at",
	"title":        "title",
	"pricePerHour": "price_per_hour",
}

var skillLevels = map[string]bool{
	db.LevelBeginner: true, db.LevelIntermediate: true, db.LevelAdvanced: true,
}

type SkillService struct {
	*Deps
}

func NewSkillService(d *Deps) *SkillService {
	return &SkillService{Deps: d}
}

func (s *SkillService) Create(ctx context.Context, actor Actor, in SkillInput) (*db.Skill, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, Validation("title is required")
	}
	skill := db.Skill{OwnerID: actor.ID, Level: db.LevelBeginner, IsPublished: true}
	if err := applySkill(&skill, in); err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Create(&skill).Error; err != nil {
		return nil, err
	}
	return &skill, nil
}

func (s *SkillService) List(ctx context.Context, q SkillListQuery) (*Page[db.Skill], error) {
	q.PageQuery = q.PageQuery.normalized()
	query := s.DB.WithContext(ctx).Model(&db.Skill{}).Preload("Owner").Where("is_published = ?", true)
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(category) LIKE ?", like, like, like)
	}
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Level != "" {
		query = query.Where("level = ?", q.Level)
	}
	if q.OwnerID != "" {
		query = query.Where("owner_id = ?", q.OwnerID)
	}
	if q.MinPrice != nil {
		query = query.Where("price_per_hour >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		query = query.Where("price_per_hour <= ?", *q.MaxPrice)
	}
	return paginate[db.Skill](query, q.PageQuery, q.order(skillSortColumns, "created_at"))
}

func (s *SkillService) Get(ctx context.Context, id string) (*db.Skill, error) {
	var skill db.Skill
	if err := s.DB.WithContext(ctx).Preload("Owner").First(&skill, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "skill")
	}
	return &skill, nil
}

func (s *SkillService) Update(ctx context.Context, actor Actor, id string, in SkillInput) (*db.Skill, error) {
	var skill db.Skill
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&skill, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "skill")
		}
		if skill.OwnerID != actor.ID && !actor.IsAdmin() {
			return Forbidden("you can only edit your own skills")
		}
		if err := applySkill(&skill, in); err != nil {
			return err
		}
		return tx.Save(&skill).Error
	})
	if err != nil {
		return nil, err
	}
	return &skill, nil
}

func (s *SkillService) Delete(ctx context.Context, actor Actor, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var skill db.Skill
		if err := tx.First(&skill, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "skill")
		}
		if skill.OwnerID != actor.ID && !actor.IsAdmin() {
			return Forbidden("you can only delete your own skills")
		}
		return tx.Delete(&skill).Error
	})
}

func applySkill(skill *db.Skill, in SkillInput) error {
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return Validation("title cannot be empty")
		}
		skill.Title = t
	}
	if in.Level != nil {
		if !skillLevels[*in.Level] {
			return Validation("level must be BEGINNER, INTERMEDIATE or ADVANCED")
		}
		skill.Level = *in.Level
	}
	if in.PricePerHour != nil {
		if *in.PricePerHour < 0 {
			return Validation("pricePerHour cannot be negative")
		}
		skill.PricePerHour = in.PricePerHour
	}
	if in.Category != nil {
		skill.Category = *in.Category
	}
	if in.Description != nil {
		skill.Description = *in.Description
	}
	if in.Tags != nil {
		skill.Tags = jsonList(in.Tags)
	}
	if in.IsPublished != nil {
		skill.IsPublished = *in.IsPublished
	}
	return nil
}
