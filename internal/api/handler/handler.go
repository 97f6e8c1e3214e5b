package handler

import (
	"cems/config"
	"cems/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth         *AuthHandler
	User         *UserHandler
	Venue        *VenueHandler
	Event        *EventHandler
	Registration *RegistrationHandler
	Notification *NotificationHandler
	Admin        *AdminHandler
	Export       *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(cfg *config.Config, svc *service.Service) *Handler {
	return &Handler{
		Auth:         NewAuthHandler(svc.Auth, cfg.Auth),
		User:         NewUserHandler(svc.User),
		Venue:        NewVenueHandler(svc.Venue),
		Event:        NewEventHandler(svc.Event),
		Registration: NewRegistrationHandler(svc.Registration),
		Notification: NewNotificationHandler(svc.Notification),
		Admin:        NewAdminHandler(svc.Admin, svc.Settings),
		Export:       NewExportHandler(svc.Export),
	}
}
