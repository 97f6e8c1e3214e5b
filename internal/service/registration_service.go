package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cems/internal/dto"
	"cems/internal/model"
	"cems/internal/repository"
	pkgerrors "cems/pkg/errors"
	"cems/pkg/mailer"
	"cems/pkg/pass"
)

// ── 报名模块业务错误 ──

var (
	ErrEventUnavailable         = errors.New("Event not found or not available for registration")
	ErrRegistrationNotFound     = errors.New("Registration not found")
	ErrRegistrationDeadline     = errors.New("Registration deadline has passed")
	ErrEventFull                = errors.New("Event is full")
	ErrAlreadyRegistered        = errors.New("You are already registered for this event")
	ErrRegistrationLimitReached = errors.New("Registration limit reached")
	ErrEventAlreadyStarted      = errors.New("Cannot unregister after the event has started")
	ErrRegistrationCancelled    = errors.New("Registration has been cancelled")
	ErrInvalidAttendanceStatus  = errors.New("Attendance status must be attended or absent")
	ErrInvalidRating            = errors.New("Rating must be between 1 and 5")
	ErrFeedbackNotAttended      = errors.New("You can only submit feedback for events you attended")
	ErrFeedbackAlreadySubmitted = errors.New("Feedback already submitted")
	ErrInvalidTicket            = errors.New("Invalid ticket")
)

// RegistrationLimitError 超出每位学生的报名上限
type RegistrationLimitError struct {
	Max int
}

func (e *RegistrationLimitError) Error() string {
	return fmt.Sprintf("Registration limit reached (%d)", e.Max)
}

func (e *RegistrationLimitError) Unwrap() error { return ErrRegistrationLimitReached }

// RegistrationService 活动报名业务接口
type RegistrationService interface {
	Register(ctx context.Context, eventID, studentID string) (*dto.RegistrationPassResponse, error)
	Unregister(ctx context.Context, eventID, studentID string) error
	ListMine(ctx context.Context, studentID string, req *dto.MyRegistrationsRequest) ([]dto.MyRegistrationResponse, int64, error)
	GetPass(ctx context.Context, eventID, studentID string) (*dto.RegistrationPassResponse, error)
	ListByEvent(ctx context.Context, eventID string, req *dto.PaginationRequest, callerID string, callerRole model.Role) ([]dto.EventRegistrantResponse, int64, error)
	MarkAttendance(ctx context.Context, registrationID string, req *dto.MarkAttendanceRequest, callerID string, callerRole model.Role) error
	SubmitFeedback(ctx context.Context, eventID, studentID string, req *dto.FeedbackRequest) error
	CheckIn(ctx context.Context, req *dto.CheckInRequest, callerID string, callerRole model.Role) (*dto.CheckInResponse, error)
	// ExportCalendar 返回 .ics 内容与建议文件名
	ExportCalendar(ctx context.Context, eventID, studentID string) ([]byte, string, error)
}

type registrationService struct {
	repo     *repository.Repository
	settings SettingsProvider
	passes   pass.Generator
	mail     mailer.Sender
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewRegistrationService 创建 RegistrationService 实例
func NewRegistrationService(
	repo *repository.Repository,
	settings SettingsProvider,
	passes pass.Generator,
	mail mailer.Sender,
	loc *time.Location,
	logger *zap.Logger,
) RegistrationService {
	if loc == nil {
		loc = time.UTC
	}
	return &registrationService{
		repo:     repo,
		settings: settings,
		passes:   passes,
		mail:     mail,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// ═══════════════════════════════════════════════════════════
// Register 报名
// ═══════════════════════════════════════════════════════════
//
// 事务内依次锁定活动行与学生行，再按顺序校验：
//   活动可报名 → 截止时间 → 名额 → 重复报名 → 个人报名上限
// 插入报名记录与站内通知随事务一并提交。
// 提交后生成凭证并发送邮件，二者失败只记录日志。

func (s *registrationService) Register(ctx context.Context, eventID, studentID string) (*dto.RegistrationPassResponse, error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		event *model.Event
		reg   *model.Registration
	)
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ev, err := tx.Event.LockByID(ctx, eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventUnavailable
			}
			return err
		}
		if !ev.Status.OccupiesVenue() {
			return ErrEventUnavailable
		}

		deadline, ok, err := effectiveDeadline(ev, settings.RegistrationDeadlineHours, s.loc)
		if err != nil {
			return err
		}
		if ok && now.After(deadline) {
			return ErrRegistrationDeadline
		}

		if _, err := tx.User.LockByID(ctx, studentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		count, err := tx.Registration.CountActiveByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if count >= int64(ev.Capacity) {
			return ErrEventFull
		}

		if _, err := tx.Registration.GetByEventAndStudent(ctx, eventID, studentID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if limit := settings.MaxRegistrationPerStudent; limit > 0 {
			mine, err := tx.Registration.CountActiveByStudent(ctx, studentID)
			if err != nil {
				return err
			}
			if mine >= int64(limit) {
				return &RegistrationLimitError{Max: limit}
			}
		}

		payload, err := pass.NewTicket(eventID, studentID, now).Encode()
		if err != nil {
			return err
		}
		r := &model.Registration{
			EventID:       eventID,
			StudentID:     studentID,
			Status:        model.RegistrationRegistered,
			RegisteredAt:  now.UTC(),
			TicketPayload: datatypes.JSON(payload),
		}
		if err := tx.Registration.Create(ctx, r); err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return ErrAlreadyRegistered
			}
			return err
		}

		if err := notify(ctx, tx, []string{studentID},
			"Event Registration Confirmed",
			fmt.Sprintf("You have successfully registered for %q on %s.", ev.Title, ev.DateString()),
			model.NotificationSuccess,
		); err != nil {
			return err
		}

		event, reg = ev, r
		return nil
	})
	if err != nil {
		if !isRegistrationBusinessError(err) {
			s.logger.Error("报名失败",
				zap.String("event_id", eventID),
				zap.String("student_id", studentID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("报名成功",
		zap.String("registration_id", reg.RegistrationID),
		zap.String("event_id", eventID),
		zap.String("student_id", studentID),
	)

	// 提交后重新加载带场地信息的活动；失败时退回已锁定的数据
	if full, err := s.repo.Event.GetByID(ctx, eventID); err == nil {
		event = full
	} else {
		s.logger.Warn("加载活动详情失败", zap.String("event_id", eventID), zap.Error(err))
	}
	student, err := s.repo.User.GetByID(ctx, studentID)
	if err != nil {
		s.logger.Warn("加载学生信息失败", zap.String("student_id", studentID), zap.Error(err))
		student = &model.User{UserID: studentID}
	}

	artifacts := s.generatePass(ctx, reg, event, student)
	if settings.EmailNotifications && student.Email != "" {
		s.mailPass(ctx, event, student, artifacts)
	}

	return passResponse(reg, event, student, artifacts), nil
}

// effectiveDeadline 显式截止时间优先；否则按系统设置在开始前 hours 小时截止
func effectiveDeadline(e *model.Event, hours int, loc *time.Location) (time.Time, bool, error) {
	if e.RegistrationDeadline != nil {
		return *e.RegistrationDeadline, true, nil
	}
	if hours <= 0 {
		return time.Time{}, false, nil
	}
	start, err := e.StartsAt(loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return start.Add(-time.Duration(hours) * time.Hour), true, nil
}

func isRegistrationBusinessError(err error) bool {
	for _, target := range []error{
		ErrEventUnavailable, ErrRegistrationDeadline, ErrEventFull,
		ErrAlreadyRegistered, ErrRegistrationLimitReached, ErrUserNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ────────────────────── Unregister ──────────────────────

func (s *registrationService) Unregister(ctx context.Context, eventID, studentID string) error {
	if _, err := s.getRegistration(ctx, eventID, studentID); err != nil {
		return err
	}
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return err
	}

	start, err := event.StartsAt(s.loc)
	if err != nil {
		s.logger.Error("解析活动开始时间失败", zap.String("event_id", eventID), zap.Error(err))
		return err
	}
	if !start.After(s.now()) {
		return ErrEventAlreadyStarted
	}

	n, err := s.repo.Registration.DeleteByEventAndStudent(ctx, eventID, studentID)
	if err != nil {
		s.logger.Error("取消报名失败",
			zap.String("event_id", eventID),
			zap.String("student_id", studentID),
			zap.Error(err),
		)
		return err
	}
	if n == 0 {
		return ErrRegistrationNotFound
	}
	s.logger.Info("已取消报名", zap.String("event_id", eventID), zap.String("student_id", studentID))
	return nil
}

// ────────────────────── ListMine ──────────────────────

func (s *registrationService) ListMine(ctx context.Context, studentID string, req *dto.MyRegistrationsRequest) ([]dto.MyRegistrationResponse, int64, error) {
	req.DefaultLimit(10)
	scope := req.Status
	if scope == "" {
		scope = repository.ScopeAll
	}
	today := s.now().In(s.loc).Format(model.DateLayout)

	regs, total, err := s.repo.Registration.ListByStudent(ctx, studentID, scope, today, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询我的报名失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, 0, err
	}

	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.EventID)
	}
	counts, err := s.repo.Registration.CountActiveByEvents(ctx, ids)
	if err != nil {
		s.logger.Error("统计活动报名数失败", zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.MyRegistrationResponse, 0, len(regs))
	for i := range regs {
		r := &regs[i]
		item := dto.MyRegistrationResponse{
			RegistrationID:     r.RegistrationID,
			Status:             string(r.Status),
			RegisteredAt:       formatTime(r.RegisteredAt),
			AttendanceMarkedAt: formatTimePtr(r.AttendanceMarkedAt),
			FeedbackRating:     r.FeedbackRating,
			FeedbackText:       r.FeedbackText,
		}
		if r.Event != nil {
			item.Event = toEventResponse(r.Event, counts[r.EventID])
		}
		list = append(list, item)
	}
	return list, total, nil
}

// ────────────────────── GetPass ──────────────────────

// GetPass 由持久化的票据内容确定性地重建凭证，重复调用得到相同二维码
func (s *registrationService) GetPass(ctx context.Context, eventID, studentID string) (*dto.RegistrationPassResponse, error) {
	reg, err := s.getRegistration(ctx, eventID, studentID)
	if err != nil {
		return nil, err
	}
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	student, err := s.repo.User.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	// 早期记录没有票据内容，补写一次
	if len(reg.TicketPayload) == 0 {
		payload, err := pass.NewTicket(eventID, studentID, reg.RegisteredAt).Encode()
		if err != nil {
			return nil, err
		}
		if err := s.repo.Registration.UpdateTicketPayload(ctx, reg.RegistrationID, datatypes.JSON(payload)); err != nil {
			s.logger.Warn("补写票据内容失败", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		}
		reg.TicketPayload = datatypes.JSON(payload)
	}

	artifacts := s.generatePass(ctx, reg, event, student)
	return passResponse(reg, event, student, artifacts), nil
}

// ────────────────────── ListByEvent ──────────────────────

func (s *registrationService) ListByEvent(ctx context.Context, eventID string, req *dto.PaginationRequest, callerID string, callerRole model.Role) ([]dto.EventRegistrantResponse, int64, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, 0, err
	}
	if !model.CanManageEvent(callerRole, callerID, event.OrganizerID) {
		return nil, 0, ErrNoPermission
	}

	req.DefaultLimit(50)
	regs, total, err := s.repo.Registration.ListByEvent(ctx, eventID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询活动报名名单失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.EventRegistrantResponse, 0, len(regs))
	for i := range regs {
		r := &regs[i]
		list = append(list, dto.EventRegistrantResponse{
			RegistrationID: r.RegistrationID,
			Status:         string(r.Status),
			RegisteredAt:   formatTime(r.RegisteredAt),
			FeedbackRating: r.FeedbackRating,
			FeedbackText:   r.FeedbackText,
			Student:        toStudentSummary(r.Student),
		})
	}
	return list, total, nil
}

// ────────────────────── MarkAttendance ──────────────────────

func (s *registrationService) MarkAttendance(ctx context.Context, registrationID string, req *dto.MarkAttendanceRequest, callerID string, callerRole model.Role) error {
	status := model.RegistrationStatus(req.Status)
	if status != model.RegistrationAttended && status != model.RegistrationAbsent {
		return ErrInvalidAttendanceStatus
	}

	reg, err := s.repo.Registration.GetByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRegistrationNotFound
		}
		s.logger.Error("查询报名失败", zap.String("id", registrationID), zap.Error(err))
		return err
	}
	event := reg.Event
	if event == nil {
		if event, err = s.getEvent(ctx, reg.EventID); err != nil {
			return err
		}
	}
	if !model.CanManageEvent(callerRole, callerID, event.OrganizerID) {
		return ErrNoPermission
	}
	if reg.Status == model.RegistrationCancelled {
		return ErrRegistrationCancelled
	}

	now := s.now().UTC()
	if err := s.repo.Registration.UpdateStatus(ctx, registrationID, status, &now); err != nil {
		s.logger.Error("标记出勤失败", zap.String("id", registrationID), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── SubmitFeedback ──────────────────────

func (s *registrationService) SubmitFeedback(ctx context.Context, eventID, studentID string, req *dto.FeedbackRequest) error {
	if req.Rating < 1 || req.Rating > 5 {
		return ErrInvalidRating
	}

	reg, err := s.getRegistration(ctx, eventID, studentID)
	if err != nil {
		return err
	}
	if reg.Status != model.RegistrationAttended {
		return ErrFeedbackNotAttended
	}
	if reg.FeedbackRating != nil {
		return ErrFeedbackAlreadySubmitted
	}

	var text *string
	if req.Feedback != nil {
		if t := strings.TrimSpace(*req.Feedback); t != "" {
			text = &t
		}
	}

	// 条件更新保证并发提交只有一次生效
	n, err := s.repo.Registration.SubmitFeedback(ctx, reg.RegistrationID, req.Rating, text, s.now().UTC())
	if err != nil {
		s.logger.Error("提交反馈失败", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		return err
	}
	if n == 0 {
		return ErrFeedbackAlreadySubmitted
	}
	return nil
}

// ────────────────────── CheckIn ──────────────────────

// CheckIn 校验扫码得到的票据并标记出勤；重复签到不报错
func (s *registrationService) CheckIn(ctx context.Context, req *dto.CheckInRequest, callerID string, callerRole model.Role) (*dto.CheckInResponse, error) {
	ticket, err := pass.ParseTicket([]byte(req.Ticket))
	if err != nil {
		return nil, ErrInvalidTicket
	}

	event, err := s.getEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	if !model.CanManageEvent(callerRole, callerID, event.OrganizerID) {
		return nil, ErrNoPermission
	}

	reg, err := s.repo.Registration.GetByEventAndStudent(ctx, ticket.EventID, ticket.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidTicket
		}
		s.logger.Error("查询报名失败", zap.String("event_id", ticket.EventID), zap.Error(err))
		return nil, err
	}
	stored, err := pass.ParseTicket(reg.TicketPayload)
	if err != nil || stored.RegistrationToken != ticket.RegistrationToken {
		return nil, ErrInvalidTicket
	}
	if reg.Status == model.RegistrationCancelled {
		return nil, ErrRegistrationCancelled
	}

	already := reg.Status == model.RegistrationAttended
	if !already {
		now := s.now().UTC()
		if err := s.repo.Registration.UpdateStatus(ctx, reg.RegistrationID, model.RegistrationAttended, &now); err != nil {
			s.logger.Error("签到失败", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
			return nil, err
		}
	}

	student, err := s.repo.User.GetByID(ctx, ticket.StudentID)
	if err != nil {
		s.logger.Warn("加载学生信息失败", zap.String("student_id", ticket.StudentID), zap.Error(err))
		student = &model.User{UserID: ticket.StudentID}
	}
	return &dto.CheckInResponse{
		RegistrationID:   reg.RegistrationID,
		Status:           string(model.RegistrationAttended),
		AlreadyCheckedIn: already,
		Event:            toEventSummary(event),
		Student:          toStudentSummary(student),
	}, nil
}

// ────────────────────── ExportCalendar ──────────────────────

func (s *registrationService) ExportCalendar(ctx context.Context, eventID, studentID string) ([]byte, string, error) {
	reg, err := s.getRegistration(ctx, eventID, studentID)
	if err != nil {
		return nil, "", err
	}
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, "", err
	}

	body, err := buildEventCalendar(event, reg, s.loc, s.now())
	if err != nil {
		s.logger.Error("生成日历文件失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, "", err
	}
	return body, fmt.Sprintf("event_%s.ics", eventID), nil
}

// ── 内部辅助 ──

func (s *registrationService) getRegistration(ctx context.Context, eventID, studentID string) (*model.Registration, error) {
	reg, err := s.repo.Registration.GetByEventAndStudent(ctx, eventID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistrationNotFound
		}
		s.logger.Error("查询报名失败",
			zap.String("event_id", eventID),
			zap.String("student_id", studentID),
			zap.Error(err),
		)
		return nil, err
	}
	return reg, nil
}

func (s *registrationService) getEvent(ctx context.Context, id string) (*model.Event, error) {
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

// generatePass 失败只记录日志并返回 nil
func (s *registrationService) generatePass(ctx context.Context, reg *model.Registration, event *model.Event, student *model.User) *pass.Artifacts {
	if s.passes == nil {
		return nil
	}
	info := pass.Info{
		RegistrationID: reg.RegistrationID,
		EventTitle:     event.Title,
		EventDate:      event.DateString(),
		StartTime:      model.ClockString(event.StartTime),
		EndTime:        model.ClockString(event.EndTime),
		StudentName:    student.FullName(),
		StudentEmail:   student.Email,
		StudentNo:      student.StudentNo,
	}
	if event.Venue != nil {
		info.VenueName = event.Venue.Name
		info.VenueLocation = event.Venue.Location
	}

	payload, err := pass.Canonical(reg.TicketPayload)
	if err != nil {
		s.logger.Error("票据内容无法解析", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		return nil
	}

	artifacts, err := s.passes.Generate(ctx, info, payload)
	if err != nil {
		s.logger.Error("生成报名凭证失败", zap.String("registration_id", reg.RegistrationID), zap.Error(err))
		return nil
	}
	return artifacts
}

// mailPass 发送带凭证附件的确认邮件，失败只记录日志
func (s *registrationService) mailPass(ctx context.Context, event *model.Event, student *model.User, artifacts *pass.Artifacts) {
	if s.mail == nil {
		return
	}
	msg := &mailer.Message{
		To:      []string{student.Email},
		Subject: "Registration confirmed: " + event.Title,
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nYou are registered for %q on %s from %s to %s.\nPlease bring your pass (attached) to the event.\n",
			student.FullName(), event.Title, event.DateString(),
			model.ClockString(event.StartTime), model.ClockString(event.EndTime),
		),
	}
	if artifacts != nil {
		if len(artifacts.QRPNG) > 0 {
			msg.Attachments = append(msg.Attachments, mailer.Attachment{
				Filename: "ticket.png", ContentType: "image/png", Data: artifacts.QRPNG,
			})
		}
		if artifacts.PDFPath != "" {
			if data, err := os.ReadFile(artifacts.PDFPath); err == nil {
				msg.Attachments = append(msg.Attachments, mailer.Attachment{
					Filename: "event-pass.pdf", ContentType: "application/pdf", Data: data,
				})
			} else {
				s.logger.Warn("读取 PDF 凭证失败", zap.String("path", artifacts.PDFPath), zap.Error(err))
			}
		}
	}

	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warn("发送报名确认邮件失败",
			zap.String("event_id", event.EventID),
			zap.String("student_id", student.UserID),
			zap.Error(err),
		)
	}
}

func passResponse(reg *model.Registration, event *model.Event, student *model.User, artifacts *pass.Artifacts) *dto.RegistrationPassResponse {
	resp := &dto.RegistrationPassResponse{
		RegistrationID: reg.RegistrationID,
		Event:          toEventSummary(event),
		User:           toStudentSummary(student),
	}
	if artifacts != nil {
		resp.QRImage = artifacts.QRImage
		resp.QRFileURL = artifacts.QRFileURL
		resp.PDFFileURL = artifacts.PDFFileURL
	}
	return resp
}
