package repository

import (
	"context"

	"gorm.io/gorm"

	"cems/internal/model"
)

// ── 统计结果 ──

// LabelCount 分组计数
type LabelCount struct {
	Label string `gorm:"column:label" json:"label"`
	Count int64  `gorm:"column:count" json:"count"`
}

// DashboardCounts 管理后台总览
type DashboardCounts struct {
	TotalUsers         int64        `json:"total_users"`
	TotalEvents        int64        `json:"total_events"`
	TotalVenues        int64        `json:"total_venues"`
	TotalRegistrations int64        `json:"total_registrations"`
	EventsByStatus     []LabelCount `json:"events_by_status"`
	UsersByRole        []LabelCount `json:"users_by_role"`
}

// TrendPoint 按活动日期统计的报名数
type TrendPoint struct {
	Date          string `gorm:"column:date"          json:"date"`
	Registrations int64  `gorm:"column:registrations" json:"registrations"`
}

// FeedbackSummary 反馈汇总
type FeedbackSummary struct {
	AverageRating    float64 `gorm:"column:average_rating"    json:"average_rating"`
	TotalFeedback    int64   `gorm:"column:total_feedback"    json:"total_feedback"`
	PositiveFeedback int64   `gorm:"column:positive_feedback" json:"positive_feedback"`
}

// VenueUsage 场地使用情况
type VenueUsage struct {
	VenueID       string `gorm:"column:venue_id"       json:"venue_id"`
	Name          string `gorm:"column:name"           json:"name"`
	EventCount    int64  `gorm:"column:event_count"    json:"event_count"`
	TotalCapacity int64  `gorm:"column:total_capacity" json:"total_capacity"`
}

// StudentSummary 学生个人统计
type StudentSummary struct {
	TotalRegistrations int64   `gorm:"column:total_registrations" json:"total_registrations"`
	AttendedEvents     int64   `gorm:"column:attended_events"     json:"attended_events"`
	PastEvents         int64   `gorm:"column:past_events"         json:"past_events"`
	UpcomingEvents     int64   `gorm:"column:upcoming_events"     json:"upcoming_events"`
	AverageRating      float64 `gorm:"column:average_rating"      json:"average_rating"`
}

// OrganizerSummary 组织者个人统计
type OrganizerSummary struct {
	TotalEvents       int64   `gorm:"column:total_events"       json:"total_events"`
	ApprovedEvents    int64   `gorm:"column:approved_events"    json:"approved_events"`
	PendingEvents     int64   `gorm:"column:pending_events"     json:"pending_events"`
	CompletedEvents   int64   `gorm:"column:completed_events"   json:"completed_events"`
	TotalParticipants int64   `gorm:"column:total_participants" json:"total_participants"`
	AverageRating     float64 `gorm:"column:average_rating"     json:"average_rating"`
}

// StatsRepository 统计查询接口（只读）
type StatsRepository interface {
	Dashboard(ctx context.Context) (*DashboardCounts, error)
	RegistrationTrend(ctx context.Context, sinceDate string) ([]TrendPoint, error)
	DepartmentParticipation(ctx context.Context, sinceDate string) ([]LabelCount, error)
	Feedback(ctx context.Context, sinceDate string) (*FeedbackSummary, error)
	VenueUsage(ctx context.Context, sinceDate string) ([]VenueUsage, error)
	Student(ctx context.Context, studentID, today string) (*StudentSummary, error)
	Organizer(ctx context.Context, organizerID string) (*OrganizerSummary, error)
}

type statsRepo struct {
	db *gorm.DB
}

// NewStatsRepo 创建 StatsRepository 实例
func NewStatsRepo(db *gorm.DB) StatsRepository {
	return &statsRepo{db: db}
}

func (r *statsRepo) Dashboard(ctx context.Context) (*DashboardCounts, error) {
	db := r.db.WithContext(ctx)
	var out DashboardCounts

	if err := db.Model(&model.User{}).Where("is_active = ?", true).Count(&out.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Event{}).Count(&out.TotalEvents).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Venue{}).Where("is_active = ?", true).Count(&out.TotalVenues).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Registration{}).Count(&out.TotalRegistrations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Event{}).
		Select("status AS label, COUNT(*) AS count").
		Group("status").Order("status").
		Scan(&out.EventsByStatus).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.User{}).
		Select("role AS label, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("role").Order("role").
		Scan(&out.UsersByRole).Error; err != nil {
		return nil, err
	}

	return &out, nil
}

func (r *statsRepo) RegistrationTrend(ctx context.Context, sinceDate string) ([]TrendPoint, error) {
	var points []TrendPoint
	err := r.db.WithContext(ctx).
		Table("events e").
		Select("TO_CHAR(e.event_date, 'YYYY-MM-DD') AS date, COUNT(er.registration_id) AS registrations").
		Joins("LEFT JOIN event_registrations er ON er.event_id = e.event_id AND er.status <> ?", model.RegistrationCancelled).
		Where("e.event_date >= ?", sinceDate).
		Group("e.event_date").
		Order("e.event_date").
		Scan(&points).Error
	return points, err
}

func (r *statsRepo) DepartmentParticipation(ctx context.Context, sinceDate string) ([]LabelCount, error) {
	var rows []LabelCount
	err := r.db.WithContext(ctx).
		Table("event_registrations er").
		Select("u.department AS label, COUNT(er.registration_id) AS count").
		Joins("JOIN users u ON u.user_id = er.student_id").
		Joins("JOIN events e ON e.event_id = er.event_id").
		Where("u.department IS NOT NULL AND u.department <> ''").
		Where("e.event_date >= ?", sinceDate).
		Group("u.department").
		Order("count DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *statsRepo) Feedback(ctx context.Context, sinceDate string) (*FeedbackSummary, error) {
	var out FeedbackSummary
	err := r.db.WithContext(ctx).
		Table("event_registrations er").
		Select(`COALESCE(AVG(er.feedback_rating), 0) AS average_rating,
			COUNT(er.feedback_rating) AS total_feedback,
			COUNT(*) FILTER (WHERE er.feedback_rating >= 4) AS positive_feedback`).
		Joins("JOIN events e ON e.event_id = er.event_id").
		Where("er.feedback_rating IS NOT NULL AND e.event_date >= ?", sinceDate).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *statsRepo) VenueUsage(ctx context.Context, sinceDate string) ([]VenueUsage, error) {
	var rows []VenueUsage
	err := r.db.WithContext(ctx).
		Table("venues v").
		Select("v.venue_id, v.name, COUNT(e.event_id) AS event_count, COALESCE(SUM(e.capacity), 0) AS total_capacity").
		Joins("LEFT JOIN events e ON e.venue_id = v.venue_id AND e.event_date >= ?", sinceDate).
		Where("v.is_active = ? AND v.deleted_at IS NULL", true).
		Group("v.venue_id, v.name").
		Order("event_count DESC, v.name ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *statsRepo) Student(ctx context.Context, studentID, today string) (*StudentSummary, error) {
	var out StudentSummary
	err := r.db.WithContext(ctx).
		Table("event_registrations er").
		Select(`COUNT(*) AS total_registrations,
			COUNT(*) FILTER (WHERE er.status = ?) AS attended_events,
			COUNT(*) FILTER (WHERE e.event_date < ?) AS past_events,
			COUNT(*) FILTER (WHERE e.event_date >= ?) AS upcoming_events,
			COALESCE(AVG(er.feedback_rating), 0) AS average_rating`,
			model.RegistrationAttended, today, today).
		Joins("JOIN events e ON e.event_id = er.event_id").
		Where("er.student_id = ?", studentID).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *statsRepo) Organizer(ctx context.Context, organizerID string) (*OrganizerSummary, error) {
	var out OrganizerSummary
	db := r.db.WithContext(ctx)

	err := db.Table("events").
		Select(`COUNT(*) AS total_events,
			COUNT(*) FILTER (WHERE status = ?) AS approved_events,
			COUNT(*) FILTER (WHERE status = ?) AS pending_events,
			COUNT(*) FILTER (WHERE status = ?) AS completed_events`,
			model.EventApproved, model.EventPending, model.EventCompleted).
		Where("organizer_id = ?", organizerID).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}

	var participation struct {
		TotalParticipants int64   `gorm:"column:total_participants"`
		AverageRating     float64 `gorm:"column:average_rating"`
	}
	err = db.Table("event_registrations er").
		Select("COUNT(DISTINCT er.student_id) AS total_participants, COALESCE(AVG(er.feedback_rating), 0) AS average_rating").
		Joins("JOIN events e ON e.event_id = er.event_id").
		Where("e.organizer_id = ?", organizerID).
		Scan(&participation).Error
	if err != nil {
		return nil, err
	}
	out.TotalParticipants = participation.TotalParticipants
	out.AverageRating = participation.AverageRating

	return &out, nil
}
