package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cems/internal/model"
)

// 我的报名列表时间范围
const (
	ScopeAll      = "all"
	ScopeUpcoming = "upcoming"
	ScopePast     = "past"
)

// RatingSummary 评分汇总
type RatingSummary struct {
	Average float64 `gorm:"column:average"`
	Count   int64   `gorm:"column:count"`
}

// RegistrationRepository 报名数据访问接口
type RegistrationRepository interface {
	Create(ctx context.Context, reg *model.Registration) error
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	GetByEventAndStudent(ctx context.Context, eventID, studentID string) (*model.Registration, error)
	// CountActiveByEvent 统计占用名额的报名数（status <> cancelled）
	CountActiveByEvent(ctx context.Context, eventID string) (int64, error)
	CountActiveByEvents(ctx context.Context, eventIDs []string) (map[string]int64, error)
	CountActiveByStudent(ctx context.Context, studentID string) (int64, error)
	CountByStudent(ctx context.Context, studentID string) (int64, error)
	CountByEvent(ctx context.Context, eventID string) (int64, error)
	DeleteByEventAndStudent(ctx context.Context, eventID, studentID string) (int64, error)
	ListByStudent(ctx context.Context, studentID, scope, today string, offset, limit int) ([]model.Registration, int64, error)
	ListByEvent(ctx context.Context, eventID string, offset, limit int) ([]model.Registration, int64, error)
	ListAllByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListStudentIDsByEvent(ctx context.Context, eventID string) ([]string, error)
	UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus, markedAt *time.Time) error
	UpdateTicketPayload(ctx context.Context, id string, payload datatypes.JSON) error
	// SubmitFeedback 仅在尚未评分时写入，返回受影响行数
	SubmitFeedback(ctx context.Context, id string, rating int, text *string, at time.Time) (int64, error)
	CancelByEvent(ctx context.Context, eventID string) (int64, error)
	RatingByEvent(ctx context.Context, eventID string) (*RatingSummary, error)
}

type registrationRepo struct {
	db *gorm.DB
}

// NewRegistrationRepo 创建 RegistrationRepository 实例
func NewRegistrationRepo(db *gorm.DB) RegistrationRepository {
	return &registrationRepo{db: db}
}

func (r *registrationRepo) Create(ctx context.Context, reg *model.Registration) error {
	return r.db.WithContext(ctx).Create(reg).Error
}

func (r *registrationRepo) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	var reg model.Registration
	err := r.db.WithContext(ctx).
		Preload("Event").
		Where("registration_id = ?", id).
		First(&reg).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registrationRepo) GetByEventAndStudent(ctx context.Context, eventID, studentID string) (*model.Registration, error) {
	var reg model.Registration
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND student_id = ?", eventID, studentID).
		First(&reg).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registrationRepo) CountActiveByEvent(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("event_id = ? AND status <> ?", eventID, model.RegistrationCancelled).
		Count(&count).Error
	return count, err
}

func (r *registrationRepo) CountActiveByEvents(ctx context.Context, eventIDs []string) (map[string]int64, error) {
	result := make(map[string]int64, len(eventIDs))
	if len(eventIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		EventID string
		Count   int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Select("event_id, COUNT(*) AS count").
		Where("event_id IN ? AND status <> ?", eventIDs, model.RegistrationCancelled).
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.EventID] = row.Count
	}
	return result, nil
}

func (r *registrationRepo) CountActiveByStudent(ctx context.Context, studentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("student_id = ? AND status <> ?", studentID, model.RegistrationCancelled).
		Count(&count).Error
	return count, err
}

func (r *registrationRepo) CountByStudent(ctx context.Context, studentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("student_id = ?", studentID).
		Count(&count).Error
	return count, err
}

func (r *registrationRepo) CountByEvent(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count, err
}

func (r *registrationRepo) DeleteByEventAndStudent(ctx context.Context, eventID, studentID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("event_id = ? AND student_id = ?", eventID, studentID).
		Delete(&model.Registration{})
	return res.RowsAffected, res.Error
}

func (r *registrationRepo) ListByStudent(ctx context.Context, studentID, scope, today string, offset, limit int) ([]model.Registration, int64, error) {
	var regs []model.Registration
	var total int64

	db := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Joins("JOIN events ON events.event_id = event_registrations.event_id").
		Where("event_registrations.student_id = ?", studentID)

	switch scope {
	case ScopeUpcoming:
		db = db.Where("events.event_date >= ?", today)
	case ScopePast:
		db = db.Where("events.event_date < ?", today)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.
		Select("event_registrations.*").
		Preload("Event.Venue", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Event.Organizer").
		Order("events.event_date DESC, events.start_time DESC").
		Offset(offset).Limit(limit).
		Find(&regs).Error; err != nil {
		return nil, 0, err
	}

	return regs, total, nil
}

func (r *registrationRepo) ListByEvent(ctx context.Context, eventID string, offset, limit int) ([]model.Registration, int64, error) {
	var regs []model.Registration
	var total int64

	db := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("event_id = ?", eventID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.
		Preload("Student").
		Order("registered_at DESC").
		Offset(offset).Limit(limit).
		Find(&regs).Error; err != nil {
		return nil, 0, err
	}

	return regs, total, nil
}

func (r *registrationRepo) ListAllByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	var regs []model.Registration
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("event_id = ?", eventID).
		Order("registered_at ASC").
		Find(&regs).Error
	return regs, err
}

func (r *registrationRepo) ListStudentIDsByEvent(ctx context.Context, eventID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("event_id = ? AND status <> ?", eventID, model.RegistrationCancelled).
		Pluck("student_id", &ids).Error
	return ids, err
}

func (r *registrationRepo) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus, markedAt *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("registration_id = ?", id).
		Updates(map[string]interface{}{
			"status":               status,
			"attendance_marked_at": markedAt,
			"updated_at":           gorm.Expr("NOW()"),
		}).Error
}

func (r *registrationRepo) UpdateTicketPayload(ctx context.Context, id string, payload datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("registration_id = ?", id).
		Update("ticket_payload", payload).Error
}

func (r *registrationRepo) SubmitFeedback(ctx context.Context, id string, rating int, text *string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("registration_id = ? AND feedback_rating IS NULL", id).
		Updates(map[string]interface{}{
			"feedback_rating": rating,
			"feedback_text":   text,
			"feedback_at":     at,
			"updated_at":      gorm.Expr("NOW()"),
		})
	return res.RowsAffected, res.Error
}

func (r *registrationRepo) CancelByEvent(ctx context.Context, eventID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("event_id = ? AND status <> ?", eventID, model.RegistrationCancelled).
		Updates(map[string]interface{}{
			"status":     model.RegistrationCancelled,
			"updated_at": gorm.Expr("NOW()"),
		})
	return res.RowsAffected, res.Error
}

func (r *registrationRepo) RatingByEvent(ctx context.Context, eventID string) (*RatingSummary, error) {
	var summary RatingSummary
	err := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Select("COALESCE(AVG(feedback_rating), 0) AS average, COUNT(feedback_rating) AS count").
		Where("event_id = ? AND feedback_rating IS NOT NULL", eventID).
		Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
