package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cems/internal/dto"
	"cems/internal/model"
	"cems/internal/repository"
	pkgerrors "cems/pkg/errors"
)

// ── 用户模块业务错误 ──

var (
	ErrUserSelfRoleChange = errors.New("you cannot change your own role")
	ErrUserSelfDelete     = errors.New("you cannot delete your own account")
	ErrUserHasActivity    = errors.New("user owns events or registrations; deactivate the account instead")
	ErrNoPermission       = errors.New("you do not have permission to perform this action")
)

// UserService 用户业务接口
type UserService interface {
	List(ctx context.Context, req *dto.UserListRequest) ([]dto.UserResponse, int64, error)
	GetByID(ctx context.Context, id string, callerID string, callerRole model.Role) (*dto.UserResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateUserRequest, callerID string, callerRole model.Role) (*dto.UserResponse, error)
	Delete(ctx context.Context, id string, callerID string) error
	AssignRole(ctx context.Context, id string, req *dto.AssignRoleRequest, callerID string) error
	Stats(ctx context.Context, id string, callerID string, callerRole model.Role) (*dto.UserStatsResponse, error)
}

type userService struct {
	repo   *repository.Repository
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewUserService 创建 UserService 实例
func NewUserService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) UserService {
	if loc == nil {
		loc = time.UTC
	}
	return &userService{repo: repo, logger: logger, loc: loc, now: time.Now}
}

// ────────────────────── List ──────────────────────

func (s *userService) List(ctx context.Context, req *dto.UserListRequest) ([]dto.UserResponse, int64, error) {
	filter := repository.UserFilter{
		Role:       model.Role(req.Role),
		Search:     strings.TrimSpace(req.Search),
		Email:      strings.TrimSpace(req.Email),
		Department: strings.TrimSpace(req.Department),
		StudentNo:  strings.TrimSpace(req.StudentNo),
		SortBy:     req.SortBy,
		SortDesc:   !strings.EqualFold(req.SortOrder, "asc"),
	}
	// 管理员账号不出现在用户管理列表中
	if filter.Role == "" {
		filter.ExcludeRole = model.RoleAdmin
	}

	users, total, err := s.repo.User.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询用户列表失败", zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		list = append(list, toUserResponse(&users[i]))
	}
	return list, total, nil
}

// ────────────────────── GetByID ──────────────────────

func (s *userService) GetByID(ctx context.Context, id string, callerID string, callerRole model.Role) (*dto.UserResponse, error) {
	if !model.CanAccessUser(callerRole, callerID, id) {
		return nil, ErrNoPermission
	}
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// ────────────────────── Update ──────────────────────

func (s *userService) Update(ctx context.Context, id string, req *dto.UpdateUserRequest, callerID string, callerRole model.Role) (*dto.UserResponse, error) {
	if !model.CanAccessUser(callerRole, callerID, id) {
		return nil, ErrNoPermission
	}
	// 启用/停用仅管理员可操作
	if req.IsActive != nil && callerRole != model.RoleAdmin {
		return nil, ErrNoPermission
	}

	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Department != nil {
		user.Department = strings.TrimSpace(*req.Department)
	}
	if req.StudentNo != nil {
		user.StudentNo = strings.TrimSpace(*req.StudentNo)
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	user.UpdatedBy = &callerID

	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("更新用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *userService) Delete(ctx context.Context, id string, callerID string) error {
	if id == callerID {
		return ErrUserSelfDelete
	}
	if _, err := s.getUser(ctx, id); err != nil {
		return err
	}

	// 拥有活动或报名记录的用户只能停用
	events, err := s.repo.Event.CountByOrganizer(ctx, id)
	if err != nil {
		s.logger.Error("统计用户活动失败", zap.String("id", id), zap.Error(err))
		return err
	}
	regs, err := s.repo.Registration.CountByStudent(ctx, id)
	if err != nil {
		s.logger.Error("统计用户报名失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if events > 0 || regs > 0 {
		return ErrUserHasActivity
	}

	if err := s.repo.User.Delete(ctx, id); err != nil {
		if pkgerrors.IsForeignKeyViolation(err) {
			return ErrUserHasActivity
		}
		s.logger.Error("删除用户失败", zap.String("id", id), zap.Error(err))
		return err
	}
	s.logger.Info("用户已删除", zap.String("id", id), zap.String("caller", callerID))
	return nil
}

// ────────────────────── AssignRole ──────────────────────

func (s *userService) AssignRole(ctx context.Context, id string, req *dto.AssignRoleRequest, callerID string) error {
	if id == callerID {
		return ErrUserSelfRoleChange
	}
	if _, err := s.getUser(ctx, id); err != nil {
		return err
	}
	if err := s.repo.User.UpdateRole(ctx, id, model.Role(req.Role), callerID); err != nil {
		s.logger.Error("更新用户角色失败", zap.String("id", id), zap.Error(err))
		return err
	}
	s.logger.Info("用户角色已变更",
		zap.String("id", id),
		zap.String("role", req.Role),
		zap.String("caller", callerID),
	)
	return nil
}

// ────────────────────── Stats ──────────────────────

func (s *userService) Stats(ctx context.Context, id string, callerID string, callerRole model.Role) (*dto.UserStatsResponse, error) {
	if !model.CanAccessUser(callerRole, callerID, id) {
		return nil, ErrNoPermission
	}
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.UserStatsResponse{UserID: user.UserID, Role: string(user.Role)}
	switch user.Role {
	case model.RoleStudent:
		today := s.now().In(s.loc).Format(model.DateLayout)
		st, err := s.repo.Stats.Student(ctx, id, today)
		if err != nil {
			s.logger.Error("查询学生统计失败", zap.String("id", id), zap.Error(err))
			return nil, err
		}
		resp.Student = &dto.StudentStats{
			TotalRegistrations: st.TotalRegistrations,
			AttendedEvents:     st.AttendedEvents,
			PastEvents:         st.PastEvents,
			UpcomingEvents:     st.UpcomingEvents,
			AverageRating:      st.AverageRating,
		}
	case model.RoleOrganizer:
		st, err := s.repo.Stats.Organizer(ctx, id)
		if err != nil {
			s.logger.Error("查询组织者统计失败", zap.String("id", id), zap.Error(err))
			return nil, err
		}
		resp.Organizer = &dto.OrganizerStats{
			TotalEvents:       st.TotalEvents,
			ApprovedEvents:    st.ApprovedEvents,
			PendingEvents:     st.PendingEvents,
			CompletedEvents:   st.CompletedEvents,
			TotalParticipants: st.TotalParticipants,
			AverageRating:     st.AverageRating,
		}
	}
	return resp, nil
}

func (s *userService) getUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return user, nil
}
