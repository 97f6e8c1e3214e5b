package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cems/internal/dto"
	"cems/internal/model"
	"cems/internal/repository"
	pkgerrors "cems/pkg/errors"
)

// ── 活动模块业务错误 ──

var (
	ErrEventNotFound             = errors.New("event not found")
	ErrEventInvalidTime          = errors.New("end time must be after start time")
	ErrEventInPast               = errors.New("event must start in the future")
	ErrEventInvalidDeadline      = errors.New("registration deadline must be before the event starts")
	ErrEventCapacityExceedsVenue = errors.New("event capacity cannot exceed venue capacity")
	ErrEventCapacityBelowCount   = errors.New("event capacity cannot be lower than the current number of registrations")
	ErrEventTimeConflict         = errors.New("venue is already booked for an overlapping time slot")
	ErrEventNotEditable          = errors.New("cancelled or completed events cannot be modified")
	ErrEventHasRegistrations     = errors.New("event has registrations; cancel it instead of deleting")
)

// EventService 活动业务接口
type EventService interface {
	// List 公开活动列表：仅已批准且未过期
	List(ctx context.Context, req *dto.EventListRequest) ([]dto.EventResponse, int64, error)
	// Get 活动详情；callerRole 为空表示匿名访问
	Get(ctx context.Context, id string, callerID string, callerRole model.Role) (*dto.EventDetailResponse, error)
	Create(ctx context.Context, req *dto.CreateEventRequest, callerID string, callerRole model.Role) (*dto.EventResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateEventRequest, callerID string, callerRole model.Role) (*dto.EventResponse, error)
	Delete(ctx context.Context, id string, callerID string, callerRole model.Role) error
	MyEvents(ctx context.Context, organizerID string, req *dto.MyEventsRequest) ([]dto.EventResponse, int64, error)
	// CompletePast 将已结束的已批准活动标记为 completed，由定时任务调用
	CompletePast(ctx context.Context) (int64, error)
}

type eventService struct {
	repo   *repository.Repository
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewEventService 创建 EventService 实例；loc 为活动日期/时间所在时区
func NewEventService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) EventService {
	if loc == nil {
		loc = time.UTC
	}
	return &eventService{repo: repo, logger: logger, loc: loc, now: time.Now}
}

// ────────────────────── List ──────────────────────

func (s *eventService) List(ctx context.Context, req *dto.EventListRequest) ([]dto.EventResponse, int64, error) {
	from := req.FromDate
	today := s.now().In(s.loc).Format(model.DateLayout)
	if from == "" || from < today {
		from = today
	}
	filter := repository.EventFilter{
		Statuses: []model.EventStatus{model.EventApproved},
		VenueID:  req.VenueID,
		Search:   req.Search,
		FromDate: from,
		ToDate:   req.ToDate,
		Upcoming: true,
	}
	return s.list(ctx, filter, req.GetOffset(), req.GetPageSize())
}

// ────────────────────── MyEvents ──────────────────────

func (s *eventService) MyEvents(ctx context.Context, organizerID string, req *dto.MyEventsRequest) ([]dto.EventResponse, int64, error) {
	filter := repository.EventFilter{OrganizerID: organizerID}
	if req.Status != "" {
		filter.Statuses = []model.EventStatus{model.EventStatus(req.Status)}
	}
	return s.list(ctx, filter, req.GetOffset(), req.GetPageSize())
}

func (s *eventService) list(ctx context.Context, filter repository.EventFilter, offset, limit int) ([]dto.EventResponse, int64, error) {
	events, total, err := s.repo.Event.List(ctx, filter, offset, limit)
	if err != nil {
		s.logger.Error("查询活动列表失败", zap.Error(err))
		return nil, 0, err
	}
	list, err := withRegisteredCounts(ctx, s.repo, events)
	if err != nil {
		s.logger.Error("统计活动报名数失败", zap.Error(err))
		return nil, 0, err
	}
	return list, total, nil
}

// withRegisteredCounts 批量附加占用名额数
func withRegisteredCounts(ctx context.Context, repo *repository.Repository, events []model.Event) ([]dto.EventResponse, error) {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.EventID)
	}
	counts, err := repo.Registration.CountActiveByEvents(ctx, ids)
	if err != nil {
		return nil, err
	}
	list := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		list = append(list, toEventResponse(&events[i], counts[events[i].EventID]))
	}
	return list, nil
}

// ────────────────────── Get ──────────────────────

func (s *eventService) Get(ctx context.Context, id string, callerID string, callerRole model.Role) (*dto.EventDetailResponse, error) {
	event, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	// 未公开的活动对无权用户表现为不存在
	if !model.CanViewEvent(callerRole, callerID, event) {
		return nil, ErrEventNotFound
	}
	return eventDetail(ctx, s.repo, event, callerID, callerRole)
}

// eventDetail 组装详情：报名数、评分、当前学生的报名状态
func eventDetail(ctx context.Context, repo *repository.Repository, event *model.Event, callerID string, callerRole model.Role) (*dto.EventDetailResponse, error) {
	count, err := repo.Registration.CountActiveByEvent(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	rating, err := repo.Registration.RatingByEvent(ctx, event.EventID)
	if err != nil {
		return nil, err
	}

	detail := &dto.EventDetailResponse{
		EventResponse: toEventResponse(event, count),
		AverageRating: rating.Average,
		FeedbackCount: rating.Count,
	}

	if callerRole == model.RoleStudent && callerID != "" {
		reg, err := repo.Registration.GetByEventAndStudent(ctx, event.EventID, callerID)
		switch {
		case err == nil:
			detail.IsRegistered = true
			detail.RegistrationStatus = string(reg.Status)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	return detail, nil
}

// ────────────────────── Create ──────────────────────

func (s *eventService) Create(ctx context.Context, req *dto.CreateEventRequest, callerID string, callerRole model.Role) (*dto.EventResponse, error) {
	if !model.CanCreateEvent(callerRole) {
		return nil, ErrNoPermission
	}

	date, err := time.ParseInLocation(model.DateLayout, req.EventDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid event_date", ErrEventInvalidTime)
	}

	event := &model.Event{
		Title:                strings.TrimSpace(req.Title),
		Description:          strings.TrimSpace(req.Description),
		EventDate:            date,
		StartTime:            model.ClockString(req.StartTime),
		EndTime:              model.ClockString(req.EndTime),
		Capacity:             req.Capacity,
		OrganizerID:          callerID,
		VenueID:              req.VenueID,
		Status:               model.EventPending,
		BannerImage:          req.BannerImage,
		RegistrationDeadline: req.RegistrationDeadline,
		Version:              1,
		BaseModel:            model.BaseModel{CreatedBy: &callerID},
	}
	// 管理员创建的活动直接批准
	if callerRole == model.RoleAdmin {
		event.Status = model.EventApproved
	}

	if err := s.validateSchedule(ctx, event); err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Event.Create(ctx, event); err != nil {
			return err
		}
		if event.Status != model.EventPending {
			return nil
		}
		admins, err := tx.User.ListActiveIDsByRoles(ctx, model.RoleAdmin)
		if err != nil {
			return err
		}
		return notify(ctx, tx, admins,
			"New Event Pending Approval",
			fmt.Sprintf("Event %q scheduled for %s is waiting for approval.", event.Title, event.DateString()),
			model.NotificationInfo,
		)
	})
	if err != nil {
		if pkgerrors.IsExclusionViolation(err) {
			return nil, ErrEventTimeConflict
		}
		s.logger.Error("创建活动失败", zap.String("organizer_id", callerID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("活动已创建",
		zap.String("event_id", event.EventID),
		zap.String("status", string(event.Status)),
	)
	created, err := s.getEvent(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	resp := toEventResponse(created, 0)
	return &resp, nil
}

// ────────────────────── Update ──────────────────────

func (s *eventService) Update(ctx context.Context, id string, req *dto.UpdateEventRequest, callerID string, callerRole model.Role) (*dto.EventResponse, error) {
	event, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanManageEvent(callerRole, callerID, event.OrganizerID) {
		return nil, ErrNoPermission
	}
	if !event.Status.Editable() {
		return nil, ErrEventNotEditable
	}

	if req.Title != nil {
		event.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		event.Description = strings.TrimSpace(*req.Description)
	}
	if req.EventDate != nil {
		date, err := time.ParseInLocation(model.DateLayout, *req.EventDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid event_date", ErrEventInvalidTime)
		}
		event.EventDate = date
	}
	if req.StartTime != nil {
		event.StartTime = model.ClockString(*req.StartTime)
	}
	if req.EndTime != nil {
		event.EndTime = model.ClockString(*req.EndTime)
	}
	if req.Capacity != nil {
		event.Capacity = *req.Capacity
	}
	if req.VenueID != nil && *req.VenueID != event.VenueID {
		event.VenueID = *req.VenueID
		event.Venue = nil
	}
	if req.BannerImage != nil {
		event.BannerImage = req.BannerImage
	}
	if req.RegistrationDeadline != nil {
		event.RegistrationDeadline = req.RegistrationDeadline
	}
	// 组织者修改内容后需重新审核
	if callerRole != model.RoleAdmin {
		event.Status = model.EventPending
	}
	event.UpdatedBy = &callerID

	registered, err := s.repo.Registration.CountActiveByEvent(ctx, id)
	if err != nil {
		s.logger.Error("统计活动报名数失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if int64(event.Capacity) < registered {
		return nil, ErrEventCapacityBelowCount
	}
	if err := s.validateSchedule(ctx, event); err != nil {
		return nil, err
	}

	if err := s.repo.Event.Update(ctx, event); err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrOptimisticLock):
			return nil, err
		case pkgerrors.IsExclusionViolation(err):
			return nil, ErrEventTimeConflict
		}
		s.logger.Error("更新活动失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	updated, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toEventResponse(updated, registered)
	return &resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *eventService) Delete(ctx context.Context, id string, callerID string, callerRole model.Role) error {
	event, err := s.getEvent(ctx, id)
	if err != nil {
		return err
	}
	if !model.CanManageEvent(callerRole, callerID, event.OrganizerID) {
		return ErrNoPermission
	}

	n, err := s.repo.Registration.CountByEvent(ctx, id)
	if err != nil {
		s.logger.Error("统计活动报名数失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if n > 0 {
		return ErrEventHasRegistrations
	}

	if err := s.repo.Event.Delete(ctx, id); err != nil {
		if pkgerrors.IsForeignKeyViolation(err) {
			return ErrEventHasRegistrations
		}
		s.logger.Error("删除活动失败", zap.String("id", id), zap.Error(err))
		return err
	}
	s.logger.Info("活动已删除", zap.String("id", id), zap.String("caller", callerID))
	return nil
}

// ────────────────────── CompletePast ──────────────────────

func (s *eventService) CompletePast(ctx context.Context) (int64, error) {
	now := s.now().In(s.loc)
	n, err := s.repo.Event.CompletePast(ctx, now.Format(model.DateLayout), now.Format("15:04:05"))
	if err != nil {
		s.logger.Error("标记已结束活动失败", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("已结束活动标记为 completed", zap.Int64("count", n))
	}
	return n, nil
}

// ── 内部辅助 ──

// validateSchedule 校验时间、截止时间、场地容量与时段冲突
func (s *eventService) validateSchedule(ctx context.Context, event *model.Event) error {
	if model.ClockString(event.StartTime) >= model.ClockString(event.EndTime) {
		return ErrEventInvalidTime
	}
	start, err := event.StartsAt(s.loc)
	if err != nil {
		return ErrEventInvalidTime
	}
	if !start.After(s.now()) {
		return ErrEventInPast
	}
	if event.RegistrationDeadline != nil && event.RegistrationDeadline.After(start) {
		return ErrEventInvalidDeadline
	}

	venue, err := s.repo.Venue.GetByID(ctx, event.VenueID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVenueNotFound
		}
		s.logger.Error("查询场地失败", zap.String("venue_id", event.VenueID), zap.Error(err))
		return err
	}
	if !venue.IsActive {
		return ErrVenueInactive
	}
	if event.Capacity > venue.Capacity {
		return ErrEventCapacityExceedsVenue
	}

	conflicts, err := s.repo.Event.FindConflicts(ctx, event.VenueID, event.DateString(), event.StartTime, event.EndTime, event.EventID)
	if err != nil {
		s.logger.Error("检查场地冲突失败", zap.String("venue_id", event.VenueID), zap.Error(err))
		return err
	}
	if len(conflicts) > 0 {
		return ErrEventTimeConflict
	}
	return nil
}

func (s *eventService) getEvent(ctx context.Context, id string) (*model.Event, error) {
	event, err := s.repo.Event.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("查询活动失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return event, nil
}
