package services

import (
	"context"
	"errors"
	"gorm.io/gorm"
	"mentor-marketplace/internal/db"
)

type CreateReviewInput struct {
	BookingID string `json:"bookingId" binding:"required"`
	Rating    int    `json:"rating" binding:"required"`
	Comment   string `json:"comment"`
}

type UpdateReviewInput struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

type ReviewService struct {
	*Deps
}

func NewReviewService(d *Deps) *ReviewService {
	return &ReviewService{Deps: d}
}

func validRating(r int) error {
	if r < 1 || r > 5 {
		return Validation("rating must be between 1 and 5")
	}
	return nil
}

// Create records the mentee's review of a completed session.
func (s *ReviewService) Create(ctx context.Context, actor Actor, in CreateReviewInput) (*db.Review, error) {
	if err := validRating(in.Rating); err != nil {
		return nil, err
	}
	var review db.Review
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b db.Booking
		if err := tx.First(&b, "id = ?", in.BookingID).Error; err != nil {
			return notFoundOr(err, "booking")
		}
		if b.MenteeID != actor.ID {
			return Forbidden("only the mentee can review this session")
		}
		if b.Status != db.BookingCompleted {
			return ErrReviewNotAllowed
		}
		var existing int64
		if err := tx.Model(&db.Review{}).Where("booking_id = ?", b.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateReview
		}
		review = db.Review{
			ReviewerID:   actor.ID,
			TargetUserID: b.MentorID,
			BookingID:    b.ID,
			Rating:       in.Rating,
			Comment:      in.Comment,
		}
		if err := tx.Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReview
			}
			return err
		}
		return recomputeRating(tx, b.MentorID)
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (s *ReviewService) ListForMentor(ctx context.Context, mentorID string, q PageQuery) (*Page[db.Review], error) {
	q = q.normalized()
	query := s.DB.WithContext(ctx).Model(&db.Review{}).Preload("Reviewer").Where("target_user_id = ?", mentorID)
	return paginate[db.Review](query, q, q.order(map[string]string{"createdAt": "created_at", "rating": "rating"}, "created_at"))
}

func (s *ReviewService) Update(ctx context.Context, actor Actor, id string, in UpdateReviewInput) (*db.Review, error) {
	var review db.Review
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&review, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "review")
		}
		if review.ReviewerID != actor.ID {
			return Forbidden("you can only edit your own reviews")
		}
		if in.Rating != nil {
			if err := validRating(*in.Rating); err != nil {
				return err
			}
			review.Rating = *in.Rating
		}
		if in.Comment != nil {
			review.Comment = *in.Comment
		}
		if err := tx.Save(&review).Error; err != nil {
			return err
		}
		return recomputeRating(tx, review.TargetUserID)
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (s *ReviewService) Delete(ctx context.Context, actor Actor, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var review db.Review
		if err := tx.First(&review, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "review")
		}
		if review.ReviewerID != actor.ID && !actor.IsAdmin() {
			return Forbidden("you can only delete your own reviews")
		}
		if err := tx.Delete(&review).Error; err != nil {
			return err
		}
		return recomputeRating(tx, review.TargetUserID)
	})
}

func recomputeRating(tx *gorm.DB, mentorID string) error {
	var avg float64
	if err := tx.Model(&db.Review{}).Where("target_user_id = ?", mentorID).
		Select("COALESCE(AVG(rating), 0)").Scan(&avg).Error; err != nil {
		return err
	}
	return tx.Model(&db.User{}).Where("id = ?", mentorID).Update("average_rating", avg).Error
}
