package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"cems/internal/dto"
	"cems/internal/model"
	"cems/internal/repository"
)

// ── 通知模块业务错误 ──

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService 站内通知业务接口（仅操作本人通知）
type NotificationService interface {
	List(ctx context.Context, userID string, req *dto.NotificationListRequest) (*dto.NotificationListResponse, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type notificationService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(repo *repository.Repository, logger *zap.Logger) NotificationService {
	return &notificationService{repo: repo, logger: logger}
}

// notify 向一组用户写入同一条站内通知；传入事务内的 Repository 时随事务提交
func notify(ctx context.Context, repo *repository.Repository, userIDs []string, title, message string, typ model.NotificationType) error {
	if len(userIDs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(userIDs))
	list := make([]model.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		list = append(list, model.Notification{
			UserID:  id,
			Title:   title,
			Message: message,
			Type:    typ,
		})
	}
	return repo.Notification.CreateBatch(ctx, list)
}

// ────────────────────── List ──────────────────────

func (s *notificationService) List(ctx context.Context, userID string, req *dto.NotificationListRequest) (*dto.NotificationListResponse, error) {
	list, total, err := s.repo.Notification.ListByUser(ctx, userID, req.UnreadOnly, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询通知列表失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	unread, err := s.repo.Notification.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Error("统计未读通知失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	items := make([]dto.NotificationResponse, 0, len(list))
	for i := range list {
		items = append(items, toNotificationResponse(&list[i]))
	}
	return &dto.NotificationListResponse{
		List:        items,
		Total:       total,
		Page:        req.GetPage(),
		Limit:       req.GetPageSize(),
		UnreadCount: unread,
	}, nil
}

// ────────────────────── MarkRead ──────────────────────

func (s *notificationService) MarkRead(ctx context.Context, id, userID string) error {
	n, err := s.repo.Notification.MarkRead(ctx, id, userID)
	if err != nil {
		s.logger.Error("标记通知已读失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.Notification.MarkAllRead(ctx, userID)
	if err != nil {
		s.logger.Error("全部标记已读失败", zap.String("user_id", userID), zap.Error(err))
		return 0, err
	}
	return n, nil
}

// ────────────────────── Delete ──────────────────────

func (s *notificationService) Delete(ctx context.Context, id, userID string) error {
	n, err := s.repo.Notification.Delete(ctx, id, userID)
	if err != nil {
		s.logger.Error("删除通知失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *notificationService) DeleteAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.Notification.DeleteAll(ctx, userID)
	if err != nil {
		s.logger.Error("清空通知失败", zap.String("user_id", userID), zap.Error(err))
		return 0, err
	}
	return n, nil
}
