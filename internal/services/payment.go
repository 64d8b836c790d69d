package services

import (
	"context"
	"mentor-marketplace/internal/db"
	"time"
)

type PaymentListQuery struct {
	PageQuery
	Status  string `form:"status"`
	Purpose string `form:"purpose"`
	From    string `form:"from"`
	To      string `form:"to"`
}

type PaymentService struct {
	*Deps
}

func NewPaymentService(d *Deps) *PaymentService {
	return &PaymentService{Deps: d}
}

func (s *PaymentService) ListMine(ctx context.Context, userID string, q PaymentListQuery) (*Page[db.Payment], error) {
	q.PageQuery = q.PageQuery.normalized()
	query := s.DB.WithContext(ctx).Model(&db.Payment{}).Where("user_id = ?", userID)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	return paginate[db.Payment](query, q.PageQuery, "created_at "+q.SortOrder)
}

// ListAll is the admin view over a creation-date range.
func (s *PaymentService) ListAll(ctx context.Context, q PaymentListQuery) (*Page[db.Payment], error) {
	q.PageQuery = q.PageQuery.normalized()
	from, to, err := parseRange(q.From, q.To, s.now())
	if err != nil {
		return nil, err
	}
	query := s.DB.WithContext(ctx).Model(&db.Payment{}).Where("created_at >= ? AND created_at <= ?", from, to)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Purpose != "" {
		query = query.Where("purpose = ?", q.Purpose)
	}
	return paginate[db.Payment](query, q.PageQuery, "created_at "+q.SortOrder)
}

type Revenue struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Total int64     `json:"total"`
}

func (s *PaymentService) Revenue(ctx context.Context, fromStr, toStr string) (*Revenue, error) {
	from, to, err := parseRange(fromStr, toStr, s.now())
	if err != nil {
		return nil, err
	}
	return &Revenue{From: from, To: to, Total: db.SumPayments(s.DB.WithContext(ctx), from, to)}, nil
}

// parseRange defaults to the last 30 days. Dates are YYYY-MM-DD or RFC3339.
func parseRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	from := now.AddDate(0, 0, -30)
	to := now
	var err error
	if fromStr != "" {
		if from, err = parseDate(fromStr); err != nil {
			return from, to, Validation("invalid from date")
		}
	}
	if toStr != "" {
		if to, err = parseDate(toStr); err != nil {
			return from, to, Validation("invalid to date")
		}
		if len(toStr) == len("2006-01-02") {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if to.Before(from) {
		return from, to, Validation("from must be before to")
	}
	return from, to, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
