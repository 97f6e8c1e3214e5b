package model

import (
	"time"

	"gorm.io/datatypes"
)

// RegistrationStatus 报名状态
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationAttended   RegistrationStatus = "attended"
	RegistrationAbsent     RegistrationStatus = "absent"
	RegistrationCancelled  RegistrationStatus = "cancelled" // 活动被取消时批量置为该状态
)

// CountsTowardCapacity 除 cancelled 外的报名都占用名额
func (s RegistrationStatus) CountsTowardCapacity() bool {
	return s != RegistrationCancelled
}

// Registration 活动报名表，对应 event_registrations
type Registration struct {
	RegistrationID     string             `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"   json:"registration_id"`
	EventID            string             `gorm:"type:uuid;not null"                               json:"event_id"`
	StudentID          string             `gorm:"type:uuid;not null"                               json:"student_id"`
	Status             RegistrationStatus `gorm:"type:varchar(20);not null;default:'registered'"   json:"status"`
	RegisteredAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"               json:"registered_at"`
	TicketPayload      datatypes.JSON     `gorm:"type:jsonb"                                       json:"-"`
	AttendanceMarkedAt *time.Time         `gorm:"type:timestamptz"                                  json:"attendance_marked_at,omitempty"`
	FeedbackRating     *int               `gorm:"type:smallint"                                    json:"feedback_rating,omitempty"`
	FeedbackText       *string            `gorm:"type:text"                                        json:"feedback_text,omitempty"`
	FeedbackAt         *time.Time         `gorm:"type:timestamptz"                                  json:"feedback_at,omitempty"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"               json:"updated_at"`

	// 关联
	Event   *Event `gorm:"foreignKey:EventID;references:EventID"   json:"event,omitempty"`
	Student *User  `gorm:"foreignKey:StudentID;references:UserID"  json:"student,omitempty"`
}

// TableName 指定表名
func (Registration) TableName() string { return "event_registrations" }
