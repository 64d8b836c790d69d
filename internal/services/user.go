package services

import (
	"context"
	"encoding/json"
	"errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"mentor-marketplace/internal/auth"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/logger"
	"net/mail"
	"strings"
)

const minPasswordLength = 6

type ProfileInput struct {
	Bio        *string  `json:"bio"`
	Country    *string  `json:"country"`
	City       *string  `json:"city"`
	Phone      *string  `json:"phone"`
	HourlyRate *int     `json:"hourlyRate"`
	Expertise  *string  `json:"expertise"`
	Interests  []string `json:"interests"`
	Languages  []string `json:"languages"`
}

type RegisterInput struct {
	Name     string        `json:"name" binding:"required"`
	Email    string        `json:"email" binding:"required"`
	Password string        `json:"password" binding:"required"`
	Role     string        `json:"role"`
	Profile  *ProfileInput `json:"profile"`
}

type TokenPair struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         *db.User `json:"user"`
}

type AuthService struct {
	*Deps
	Tokens *auth.Issuer
}

func NewAuthService(d *Deps, tokens *auth.Issuer) *AuthService {
	return &AuthService{Deps: d, Tokens: tokens}
}

// Register creates a USER or MENTOR account with its profile in one transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*db.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, Validation("invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, Validation("password must be at least %d characters", minPasswordLength)
	}
	role := in.Role
	if role == "" {
		role = db.RoleUser
	}
	if role != db.RoleUser && role != db.RoleMentor {
		return nil, Validation("role must be USER or MENTOR")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := db.User{
		Email:            email,
		PasswordHash:     hash,
		Name:             strings.TrimSpace(in.Name),
		Role:             role,
		Status:           db.UserStatusActive,
		FreeBookingsLeft: s.Settings.FreeBookingLimit,
	}
	profile := db.Profile{}
	if in.Profile != nil {
		if err := applyProfile(&profile, *in.Profile); err != nil {
			return nil, err
		}
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}
		profile.UserID = user.ID
		return tx.Create(&profile).Error
	})
	if err != nil {
		return nil, err
	}
	user.Profile = &profile
	logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", role))
	return &user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	var user db.User
	err := s.DB.WithContext(ctx).Preload("Profile").
		First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if user.Status != db.UserStatusActive {
		return nil, ErrUserBlocked
	}
	return s.issue(&user)
}

// Refresh exchanges a refresh token for a new pair, re-reading the role.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.Tokens.ParseValidate(refreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, ErrUnauthorized
	}
	var user db.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", claims.Sub).Error; err != nil {
		return nil, ErrUnauthorized
	}
	if user.Status != db.UserStatusActive {
		return nil, ErrUserBlocked
	}
	return s.issue(&user)
}

func (s *AuthService) issue(user *db.User) (*TokenPair, error) {
	access, err := s.Tokens.CreateAccessToken(user.ID, user.Role, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Tokens.CreateRefreshToken(user.ID, user.Role, user.Email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

type UserService struct {
	*Deps
}

func NewUserService(d *Deps) *UserService {
	return &UserService{Deps: d}
}

type UserListQuery struct {
	PageQuery
	Search string `form:"searchTerm"`
	Role   string `form:"role"`
}

var userSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
}

// List returns every user to admins. Others see themselves and premium mentors.
func (s *UserService) List(ctx context.Context, actor Actor, q UserListQuery) (*Page[db.User], error) {
	q.PageQuery = q.PageQuery.normalized()
	query := s.DB.WithContext(ctx).Model(&db.User{}).Preload("Profile")
	if !actor.IsAdmin() {
		query = query.Where("id = ? OR (role = ? AND is_premium = ? AND premium_expires > ? AND status = ?)",
			actor.ID, db.RoleMentor, true, s.now(), db.UserStatusActive)
	}
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if q.Role != "" {
		query = query.Where("role = ?", q.Role)
	}
	return paginate[db.User](query, q.PageQuery, q.order(userSortColumns, "created_at"))
}

func (s *UserService) Get(ctx context.Context, actor Actor, id string) (*db.User, error) {
	if actor.ID != id && !actor.IsAdmin() {
		return nil, Forbidden("you can only view your own account")
	}
	var user db.User
	if err := s.DB.WithContext(ctx).Preload("Profile").First(&user, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &user, nil
}

type UpdateUserInput struct {
	Name    *string       `json:"name"`
	Profile *ProfileInput `json:"profile"`
}

func (s *UserService) Update(ctx context.Context, actor Actor, id string, in UpdateUserInput) (*db.User, error) {
	if actor.ID != id && !actor.IsAdmin() {
		return nil, Forbidden("you can only update your own account")
	}
	var user db.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Profile").First(&user, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "user")
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return Validation("name cannot be empty")
			}
			if err := tx.Model(&db.User{}).Where("id = ?", id).Update("name", name).Error; err != nil {
				return err
			}
			user.Name = name
		}
		if in.Profile == nil {
			return nil
		}
		profile := user.Profile
		if profile == nil {
			profile = &db.Profile{UserID: id}
		}
		if err := applyProfile(profile, *in.Profile); err != nil {
			return err
		}
		user.Profile = profile
		return tx.Save(profile).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) SetAvatar(ctx context.Context, userID, url string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.User{}).Where("id = ?", userID).Update("avatar", url).Error; err != nil {
			return err
		}
		return tx.Model(&db.Profile{}).Where("user_id = ?", userID).Update("avatar_url", url).Error
	})
}

func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	if actor.ID != id && !actor.IsAdmin() {
		return Forbidden("you can only delete your own account")
	}
	res := s.DB.WithContext(ctx).Select("Profile").Delete(&db.User{Base: db.Base{ID: id}})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return NotFound("user")
	}
	return nil
}

var assignableRoles = map[string]bool{
	db.RoleUser: true, db.RolePremiumUser: true, db.RoleMentor: true, db.RoleAdmin: true,
}

func (s *UserService) UpdateRole(ctx context.Context, actor Actor, id, role string) (*db.User, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("admin role required")
	}
	if !assignableRoles[role] {
		return nil, Validation("unknown role %q", role)
	}
	return s.updateField(ctx, id, "role", role)
}

func (s *UserService) UpdateStatus(ctx context.Context, actor Actor, id, status string) (*db.User, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("admin role required")
	}
	if status != db.UserStatusActive && status != db.UserStatusBlocked {
		return nil, Validation("status must be ACTIVE or BLOCKED")
	}
	return s.updateField(ctx, id, "status", status)
}

func (s *UserService) updateField(ctx context.Context, id, column string, value interface{}) (*db.User, error) {
	conn := s.DB.WithContext(ctx)
	res := conn.Model(&db.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, NotFound("user")
	}
	var user db.User
	if err := conn.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func applyProfile(p *db.Profile, in ProfileInput) error {
	if in.HourlyRate != nil && *in.HourlyRate < 0 {
		return Validation("hourlyRate cannot be negative")
	}
	if in.Bio != nil {
		p.Bio = *in.Bio
	}
	if in.Country != nil {
		p.Country = *in.Country
	}
	if in.City != nil {
		p.City = *in.City
	}
	if in.Phone != nil {
		p.Phone = *in.Phone
	}
	if in.HourlyRate != nil {
		p.HourlyRate = in.HourlyRate
	}
	if in.Expertise != nil {
		p.Expertise = *in.Expertise
	}
	if in.Interests != nil {
		p.Interests = jsonList(in.Interests)
	}
	if in.Languages != nil {
		p.Languages = jsonList(in.Languages)
	}
	return nil
}

func jsonList(items []string) datatypes.JSON {
	b, _ := json.Marshal(items)
	return datatypes.JSON(b)
}
