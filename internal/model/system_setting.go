package model

import "time"

// 已知设置键
const (
	SettingSiteName                  = "site_name"
	SettingMaxRegistrationPerStudent = "max_registration_per_student"
	SettingRegistrationDeadlineHours = "registration_deadline_hours"
	SettingEmailNotifications        = "email_notifications"
)

// SystemSetting 系统设置表，对应 system_settings（键值对）
type SystemSetting struct {
	Key         string    `gorm:"column:setting_key;type:varchar(100);primaryKey" json:"key"`
	Value       string    `gorm:"column:setting_value;type:text;not null"         json:"value"`
	Description string    `gorm:"type:text"                                        json:"description,omitempty"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"               json:"updated_at"`
	UpdatedBy   *string   `gorm:"type:uuid"                                        json:"updated_by,omitempty"`
}

// TableName 指定表名
func (SystemSetting) TableName() string { return "system_settings" }
