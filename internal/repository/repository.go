package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User         UserRepository
	Venue        VenueRepository
	Event        EventRepository
	Registration RegistrationRepository
	Notification NotificationRepository
	Setting      SettingRepository
	Stats        StatsRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:           db,
		User:         NewUserRepo(db),
		Venue:        NewVenueRepo(db),
		Event:        NewEventRepo(db),
		Registration: NewRegistrationRepo(db),
		Notification: NewNotificationRepo(db),
		Setting:      NewSettingRepo(db),
		Stats:        NewStatsRepo(db),
	}
}

// Transaction 在单个数据库事务中执行 fn，fn 收到绑定到该事务的 Repository。
// fn 返回错误时整体回滚。
// 未绑定数据库的聚合（单元测试中手动组装的 mock）直接以自身执行 fn。
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
