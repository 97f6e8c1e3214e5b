package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"cems/internal/dto"
	"cems/internal/model"
	"cems/internal/repository"
)

// ── 系统设置业务错误 ──

var (
	ErrSettingUnknown = errors.New("unknown setting key")
	ErrSettingInvalid = errors.New("invalid setting value")
)

// Settings 业务流程中使用的系统设置快照
type Settings struct {
	SiteName                  string
	MaxRegistrationPerStudent int  // 0 = 不限
	RegistrationDeadlineHours int  // 活动未设置截止时间时，开始前 N 小时截止；0 = 不截止
	EmailNotifications        bool // 是否发送外部邮件
}

// DefaultSettings 数据库缺少对应键时使用的默认值
func DefaultSettings() Settings {
	return Settings{
		SiteName:           "CEMS",
		EmailNotifications: true,
	}
}

// SettingsProvider 在业务流程中读取系统设置
type SettingsProvider interface {
	Current(ctx context.Context) (*Settings, error)
}

// SettingsService 系统设置的读取与管理
type SettingsService interface {
	SettingsProvider
	List(ctx context.Context) ([]dto.SettingResponse, error)
	Update(ctx context.Context, req *dto.UpdateSettingsRequest, callerID string) ([]dto.SettingResponse, error)
}

type settingsService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewSettingsService 创建 SettingsService 实例
func NewSettingsService(repo *repository.Repository, logger *zap.Logger) SettingsService {
	return &settingsService{repo: repo, logger: logger, now: time.Now}
}

// ────────────────────── Current ──────────────────────

func (s *settingsService) Current(ctx context.Context) (*Settings, error) {
	list, err := s.repo.Setting.List(ctx)
	if err != nil {
		s.logger.Error("查询系统设置失败", zap.Error(err))
		return nil, err
	}

	out := DefaultSettings()
	for _, item := range list {
		switch item.Key {
		case model.SettingSiteName:
			out.SiteName = item.Value
		case model.SettingMaxRegistrationPerStudent:
			out.MaxRegistrationPerStudent = parseNonNegative(item.Value)
		case model.SettingRegistrationDeadlineHours:
			out.RegistrationDeadlineHours = parseNonNegative(item.Value)
		case model.SettingEmailNotifications:
			out.EmailNotifications = parseBool(item.Value, true)
		}
	}
	return &out, nil
}

// ────────────────────── List ──────────────────────

func (s *settingsService) List(ctx context.Context) ([]dto.SettingResponse, error) {
	list, err := s.repo.Setting.List(ctx)
	if err != nil {
		s.logger.Error("查询系统设置失败", zap.Error(err))
		return nil, err
	}
	out := make([]dto.SettingResponse, 0, len(list))
	for _, item := range list {
		out = append(out, dto.SettingResponse{
			Key:         item.Key,
			Value:       item.Value,
			Description: item.Description,
		})
	}
	return out, nil
}

// ────────────────────── Update ──────────────────────

func (s *settingsService) Update(ctx context.Context, req *dto.UpdateSettingsRequest, callerID string) ([]dto.SettingResponse, error) {
	for key, value := range req.Settings {
		if err := validateSetting(key, value); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for key, value := range req.Settings {
			setting := &model.SystemSetting{
				Key:       key,
				Value:     strings.TrimSpace(value),
				UpdatedAt: now,
				UpdatedBy: &callerID,
			}
			if err := tx.Setting.Upsert(ctx, setting); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("更新系统设置失败", zap.String("caller", callerID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("系统设置已更新", zap.String("caller", callerID), zap.Int("count", len(req.Settings)))
	return s.List(ctx)
}

// validateSetting 仅接受已知键，数值/布尔键校验格式
func validateSetting(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case model.SettingSiteName:
		if value == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrSettingInvalid, key)
		}
	case model.SettingMaxRegistrationPerStudent, model.SettingRegistrationDeadlineHours:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrSettingInvalid, key)
		}
	case model.SettingEmailNotifications:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %s must be true or false", ErrSettingInvalid, key)
		}
	default:
		return fmt.Errorf("%w: %s", ErrSettingUnknown, key)
	}
	return nil
}

func parseNonNegative(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}
