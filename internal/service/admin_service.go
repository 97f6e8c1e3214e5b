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

// ── 管理模块业务错误 ──

var (
	ErrEventInvalidTransition = errors.New("event status transition is not allowed")
	ErrCancelReasonTooShort   = errors.New("cancellation reason must be at least 10 characters")
)

const (
	defaultAnalyticsPeriod = 30
	dashboardListSize      = 5
)

// AdminService 管理端业务接口：活动审核、取消、统计与公告
type AdminService interface {
	Dashboard(ctx context.Context) (*dto.DashboardResponse, error)
	ListEvents(ctx context.Context, req *dto.AdminEventListRequest) ([]dto.EventResponse, int64, error)
	GetEvent(ctx context.Context, id string) (*dto.EventDetailResponse, error)
	UpdateEventStatus(ctx context.Context, id string, req *dto.UpdateEventStatusRequest, adminID string) (*dto.EventResponse, error)
	// CancelEvent 取消活动：报名全部置为 cancelled，并通知报名学生与组织者
	CancelEvent(ctx context.Context, id string, req *dto.CancelEventRequest, adminID string) (*dto.EventResponse, error)
	Analytics(ctx context.Context, req *dto.AnalyticsRequest) (*dto.AnalyticsResponse, error)
	Announce(ctx context.Context, req *dto.AnnouncementRequest, adminID string) (*dto.AnnouncementResponse, error)
}

type adminService struct {
	repo   *repository.Repository
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewAdminService 创建 AdminService 实例
func NewAdminService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) AdminService {
	if loc == nil {
		loc = time.UTC
	}
	return &adminService{repo: repo, logger: logger, loc: loc, now: time.Now}
}

// ────────────────────── Dashboard ──────────────────────

func (s *adminService) Dashboard(ctx context.Context) (*dto.DashboardResponse, error) {
	counts, err := s.repo.Stats.Dashboard(ctx)
	if err != nil {
		s.logger.Error("查询后台统计失败", zap.Error(err))
		return nil, err
	}

	recent, _, err := s.repo.Event.List(ctx, repository.EventFilter{}, 0, dashboardListSize)
	if err != nil {
		s.logger.Error("查询最近活动失败", zap.Error(err))
		return nil, err
	}
	pending, _, err := s.repo.Event.List(ctx, repository.EventFilter{
		Statuses: []model.EventStatus{model.EventPending},
	}, 0, dashboardListSize)
	if err != nil {
		s.logger.Error("查询待审核活动失败", zap.Error(err))
		return nil, err
	}

	recentList, err := withRegisteredCounts(ctx, s.repo, recent)
	if err != nil {
		return nil, err
	}
	pendingList, err := withRegisteredCounts(ctx, s.repo, pending)
	if err != nil {
		return nil, err
	}

	return &dto.DashboardResponse{
		TotalUsers:         counts.TotalUsers,
		TotalEvents:        counts.TotalEvents,
		TotalVenues:        counts.TotalVenues,
		TotalRegistrations: counts.TotalRegistrations,
		EventsByStatus:     toLabelCounts(counts.EventsByStatus),
		UsersByRole:        toLabelCounts(counts.UsersByRole),
		RecentEvents:       recentList,
		PendingEvents:      pendingList,
	}, nil
}

// ────────────────────── ListEvents / GetEvent ──────────────────────

func (s *adminService) ListEvents(ctx context.Context, req *dto.AdminEventListRequest) ([]dto.EventResponse, int64, error) {
	filter := repository.EventFilter{
		OrganizerID: req.OrganizerID,
		Search:      req.Search,
	}
	if req.Status != "" {
		filter.Statuses = []model.EventStatus{model.EventStatus(req.Status)}
	}

	events, total, err := s.repo.Event.List(ctx, filter, req.GetOffset(), req.GetPageSize())
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

func (s *adminService) GetEvent(ctx context.Context, id string) (*dto.EventDetailResponse, error) {
	event, err := s.repo.Event.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("查询活动失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	detail, err := eventDetail(ctx, s.repo, event, "", model.RoleAdmin)
	if err != nil {
		s.logger.Error("组装活动详情失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return detail, nil
}

// ────────────────────── UpdateEventStatus ──────────────────────

func (s *adminService) UpdateEventStatus(ctx context.Context, id string, req *dto.UpdateEventStatusRequest, adminID string) (*dto.EventResponse, error) {
	to := model.EventStatus(req.Status)
	if to != model.EventApproved && to != model.EventRejected {
		return nil, ErrEventInvalidTransition
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		event, err := tx.Event.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		if !event.Status.CanTransitionTo(to) {
			return ErrEventInvalidTransition
		}

		event.Status = to
		if req.AdminNotes != nil {
			notes := strings.TrimSpace(*req.AdminNotes)
			event.AdminNotes = &notes
		}
		event.UpdatedBy = &adminID
		if err := tx.Event.Update(ctx, event); err != nil {
			return err
		}

		title, typ := "Event Approved", model.NotificationSuccess
		message := fmt.Sprintf("Your event %q has been approved.", event.Title)
		if to == model.EventRejected {
			title, typ = "Event Rejected", model.NotificationError
			message = fmt.Sprintf("Your event %q has been rejected.", event.Title)
		}
		if event.AdminNotes != nil && *event.AdminNotes != "" {
			message += " Notes: " + *event.AdminNotes
		}
		return notify(ctx, tx, []string{event.OrganizerID}, title, message, typ)
	})
	if err != nil {
		if !errors.Is(err, ErrEventNotFound) && !errors.Is(err, ErrEventInvalidTransition) {
			s.logger.Error("审核活动失败", zap.String("id", id), zap.Error(err))
		}
		if pkgerrors.IsExclusionViolation(err) {
			return nil, ErrEventTimeConflict
		}
		return nil, err
	}

	s.logger.Info("活动审核完成",
		zap.String("id", id),
		zap.String("status", string(to)),
		zap.String("admin_id", adminID),
	)
	return s.eventResponse(ctx, id)
}

// ────────────────────── CancelEvent ──────────────────────

func (s *adminService) CancelEvent(ctx context.Context, id string, req *dto.CancelEventRequest, adminID string) (*dto.EventResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if len([]rune(reason)) < 10 {
		return nil, ErrCancelReasonTooShort
	}

	var cancelled int64
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		event, err := tx.Event.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		if !event.Status.CanTransitionTo(model.EventCancelled) {
			return ErrEventInvalidTransition
		}

		students, err := tx.Registration.ListStudentIDsByEvent(ctx, id)
		if err != nil {
			return err
		}

		event.Status = model.EventCancelled
		event.AdminNotes = &reason
		event.UpdatedBy = &adminID
		if err := tx.Event.Update(ctx, event); err != nil {
			return err
		}
		if cancelled, err = tx.Registration.CancelByEvent(ctx, id); err != nil {
			return err
		}

		if err := notify(ctx, tx, students,
			"Event Cancelled",
			fmt.Sprintf("The event %q on %s has been cancelled. Reason: %s", event.Title, event.DateString(), reason),
			model.NotificationWarning,
		); err != nil {
			return err
		}
		return notify(ctx, tx, []string{event.OrganizerID},
			"Event Cancelled",
			fmt.Sprintf("Your event %q has been cancelled by an administrator. Reason: %s", event.Title, reason),
			model.NotificationWarning,
		)
	})
	if err != nil {
		if !errors.Is(err, ErrEventNotFound) && !errors.Is(err, ErrEventInvalidTransition) {
			s.logger.Error("取消活动失败", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("活动已取消",
		zap.String("id", id),
		zap.Int64("registrations", cancelled),
		zap.String("admin_id", adminID),
	)
	return s.eventResponse(ctx, id)
}

// ────────────────────── Analytics ──────────────────────

func (s *adminService) Analytics(ctx context.Context, req *dto.AnalyticsRequest) (*dto.AnalyticsResponse, error) {
	period := req.Period
	if period <= 0 {
		period = defaultAnalyticsPeriod
	}
	since := s.now().In(s.loc).AddDate(0, 0, -period).Format(model.DateLayout)

	trend, err := s.repo.Stats.RegistrationTrend(ctx, since)
	if err != nil {
		s.logger.Error("查询报名趋势失败", zap.Error(err))
		return nil, err
	}
	departments, err := s.repo.Stats.DepartmentParticipation(ctx, since)
	if err != nil {
		s.logger.Error("查询院系参与统计失败", zap.Error(err))
		return nil, err
	}
	feedback, err := s.repo.Stats.Feedback(ctx, since)
	if err != nil {
		s.logger.Error("查询反馈统计失败", zap.Error(err))
		return nil, err
	}
	venues, err := s.repo.Stats.VenueUsage(ctx, since)
	if err != nil {
		s.logger.Error("查询场地使用统计失败", zap.Error(err))
		return nil, err
	}

	resp := &dto.AnalyticsResponse{
		PeriodDays:          period,
		Since:               since,
		ParticipationTrends: make([]dto.TrendPoint, 0, len(trend)),
		DepartmentStats:     toLabelCounts(departments),
		FeedbackStats: dto.FeedbackStats{
			AverageRating:    feedback.AverageRating,
			TotalFeedback:    feedback.TotalFeedback,
			PositiveFeedback: feedback.PositiveFeedback,
		},
		VenueStats: make([]dto.VenueUsage, 0, len(venues)),
	}
	for _, p := range trend {
		resp.ParticipationTrends = append(resp.ParticipationTrends, dto.TrendPoint{
			Date: p.Date, Registrations: p.Registrations,
		})
	}
	for _, v := range venues {
		resp.VenueStats = append(resp.VenueStats, dto.VenueUsage{
			VenueID: v.VenueID, Name: v.Name, EventCount: v.EventCount, TotalCapacity: v.TotalCapacity,
		})
	}
	return resp, nil
}

// ────────────────────── Announce ──────────────────────

func (s *adminService) Announce(ctx context.Context, req *dto.AnnouncementRequest, adminID string) (*dto.AnnouncementResponse, error) {
	var roles []model.Role
	switch req.TargetRole {
	case "student":
		roles = []model.Role{model.RoleStudent}
	case "organizer":
		roles = []model.Role{model.RoleOrganizer}
	default:
		roles = []model.Role{model.RoleStudent, model.RoleOrganizer, model.RoleAdmin}
	}
	typ := model.NotificationInfo
	if req.Type != "" {
		typ = model.NotificationType(req.Type)
	}

	ids, err := s.repo.User.ListActiveIDsByRoles(ctx, roles...)
	if err != nil {
		s.logger.Error("查询公告接收人失败", zap.Error(err))
		return nil, err
	}
	if err := notify(ctx, s.repo, ids, strings.TrimSpace(req.Title), strings.TrimSpace(req.Message), typ); err != nil {
		s.logger.Error("发送公告失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("公告已发送",
		zap.String("admin_id", adminID),
		zap.String("target", req.TargetRole),
		zap.Int("recipients", len(ids)),
	)
	return &dto.AnnouncementResponse{Recipients: len(ids)}, nil
}

// ── 内部辅助 ──

func (s *adminService) eventResponse(ctx context.Context, id string) (*dto.EventResponse, error) {
	event, err := s.repo.Event.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("查询活动失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	count, err := s.repo.Registration.CountActiveByEvent(ctx, id)
	if err != nil {
		s.logger.Error("统计活动报名数失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	resp := toEventResponse(event, count)
	return &resp, nil
}

func toLabelCounts(in []repository.LabelCount) []dto.LabelCount {
	out := make([]dto.LabelCount, 0, len(in))
	for _, lc := range in {
		out = append(out, dto.LabelCount{Label: lc.Label, Count: lc.Count})
	}
	return out
}
