package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cems/internal/model"
	apperrors "cems/pkg/errors"
)

// EventFilter 活动列表筛选条件
type EventFilter struct {
	Statuses    []model.EventStatus
	OrganizerID string
	VenueID     string
	Search      string
	FromDate    string // YYYY-MM-DD，含
	ToDate      string // YYYY-MM-DD，含
	Upcoming    bool   // true: 按活动日期升序；false: 按创建时间倒序
}

// EventRepository 活动数据访问接口
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	// LockByID 在当前事务内对活动行加 FOR UPDATE 锁（不预加载关联）
	LockByID(ctx context.Context, id string) (*model.Event, error)
	// Update 乐观锁更新：version 不匹配时返回 ErrOptimisticLock
	Update(ctx context.Context, event *model.Event) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter EventFilter, offset, limit int) ([]model.Event, int64, error)
	// FindConflicts 查询同场地同日期与 [start, end) 相交的占用中活动
	FindConflicts(ctx context.Context, venueID, date, start, end, excludeID string) ([]model.Event, error)
	ListByVenueAndDate(ctx context.Context, venueID, date string) ([]model.Event, error)
	CountOccupyingByVenue(ctx context.Context, venueID string) (int64, error)
	CountByOrganizer(ctx context.Context, organizerID string) (int64, error)
	// CompletePast 将结束时刻早于 (today, clock) 的已批准活动标记为 completed
	CompletePast(ctx context.Context, today, clock string) (int64, error)
}

type eventRepo struct {
	db *gorm.DB
}

// NewEventRepo 创建 EventRepository 实例
func NewEventRepo(db *gorm.DB) EventRepository {
	return &eventRepo{db: db}
}

func occupyingStatuses() []model.EventStatus {
	return []model.EventStatus{model.EventPending, model.EventApproved}
}

func (r *eventRepo) Create(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Preload("Organizer").
		Preload("Venue", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("event_id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepo) LockByID(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepo) Update(ctx context.Context, event *model.Event) error {
	res := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("event_id = ? AND version = ?", event.EventID, event.Version).
		Updates(map[string]interface{}{
			"title":                 event.Title,
			"description":           event.Description,
			"event_date":            event.EventDate,
			"start_time":            event.StartTime,
			"end_time":              event.EndTime,
			"capacity":              event.Capacity,
			"venue_id":              event.VenueID,
			"status":                event.Status,
			"banner_image":          event.BannerImage,
			"registration_deadline": event.RegistrationDeadline,
			"admin_notes":           event.AdminNotes,
			"updated_by":            event.UpdatedBy,
			"updated_at":            gorm.Expr("NOW()"),
			"version":               gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrOptimisticLock
	}
	event.Version++
	return nil
}

func (r *eventRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("event_id = ?", id).
		Delete(&model.Event{}).Error
}

func (r *eventRepo) List(ctx context.Context, filter EventFilter, offset, limit int) ([]model.Event, int64, error) {
	var events []model.Event
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Event{})

	if len(filter.Statuses) > 0 {
		db = db.Where("status IN ?", filter.Statuses)
	}
	if filter.OrganizerID != "" {
		db = db.Where("organizer_id = ?", filter.OrganizerID)
	}
	if filter.VenueID != "" {
		db = db.Where("venue_id = ?", filter.VenueID)
	}
	if filter.FromDate != "" {
		db = db.Where("event_date >= ?", filter.FromDate)
	}
	if filter.ToDate != "" {
		db = db.Where("event_date <= ?", filter.ToDate)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + s + "%"
		db = db.Where("(title ILIKE ? OR description ILIKE ?)", like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC"
	if filter.Upcoming {
		order = "event_date ASC, start_time ASC"
	}

	if err := db.
		Preload("Organizer").
		Preload("Venue", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order(order).
		Offset(offset).Limit(limit).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *eventRepo) FindConflicts(ctx context.Context, venueID, date, start, end, excludeID string) ([]model.Event, error) {
	var events []model.Event
	db := r.db.WithContext(ctx).
		Where("venue_id = ? AND event_date = ? AND status IN ?", venueID, date, occupyingStatuses()).
		Where("start_time < ? AND end_time > ?", end, start)
	if excludeID != "" {
		db = db.Where("event_id <> ?", excludeID)
	}
	err := db.Order("start_time ASC").Find(&events).Error
	return events, err
}

func (r *eventRepo) ListByVenueAndDate(ctx context.Context, venueID, date string) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("venue_id = ? AND event_date = ? AND status IN ?", venueID, date, occupyingStatuses()).
		Order("start_time ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepo) CountOccupyingByVenue(ctx context.Context, venueID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("venue_id = ? AND status IN ?", venueID, occupyingStatuses()).
		Count(&count).Error
	return count, err
}

func (r *eventRepo) CountByOrganizer(ctx context.Context, organizerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("organizer_id = ?", organizerID).
		Count(&count).Error
	return count, err
}

func (r *eventRepo) CompletePast(ctx context.Context, today, clock string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("status = ?", model.EventApproved).
		Where("(event_date < ? OR (event_date = ? AND end_time <= ?))", today, today, clock).
		Updates(map[string]interface{}{
			"status":     model.EventCompleted,
			"updated_at": gorm.Expr("NOW()"),
			"version":    gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}
