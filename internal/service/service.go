package service

import (
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cems/config"
	"cems/internal/repository"
	"cems/pkg/jwt"
	"cems/pkg/mailer"
	"cems/pkg/pass"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth         AuthService
	User         UserService
	Venue        VenueService
	Event        EventService
	Registration RegistrationService
	Notification NotificationService
	Admin        AdminService
	Settings     SettingsService
	Export       ExportService
}

// Deps 外部依赖；Blacklist / Passes / Mailer 可为 nil
type Deps struct {
	Blacklist TokenBlacklist
	Passes    pass.Generator
	Mailer    mailer.Sender
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	deps Deps,
	logger *zap.Logger,
) *Service {
	loc := cfg.Server.Location()
	settings := NewSettingsService(repo, logger)

	return &Service{
		Auth:         NewAuthService(cfg, repo, jwtMgr, deps.Blacklist, logger),
		User:         NewUserService(repo, loc, logger),
		Venue:        NewVenueService(repo, logger),
		Event:        NewEventService(repo, loc, logger),
		Registration: NewRegistrationService(repo, settings, deps.Passes, deps.Mailer, loc, logger),
		Notification: NewNotificationService(repo, logger),
		Admin:        NewAdminService(repo, loc, logger),
		Settings:     settings,
		Export:       NewExportService(repo, logger),
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
