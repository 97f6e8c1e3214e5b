package model

import (
	"fmt"
	"time"
)

// EventStatus 活动状态
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventApproved  EventStatus = "approved"
	EventRejected  EventStatus = "rejected"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

// Valid 是否为已知状态
func (s EventStatus) Valid() bool {
	switch s {
	case EventPending, EventApproved, EventRejected, EventCancelled, EventCompleted:
		return true
	}
	return false
}

// OccupiesVenue 待审核与已批准的活动占用场地时段，也是可报名的状态
func (s EventStatus) OccupiesVenue() bool {
	return s == EventPending || s == EventApproved
}

// Editable 已取消或已结束的活动不可再编辑
func (s EventStatus) Editable() bool {
	return s != EventCancelled && s != EventCompleted
}

// CanTransitionTo 状态机：
// pending → approved | rejected | cancelled；approved → cancelled | completed
func (s EventStatus) CanTransitionTo(to EventStatus) bool {
	switch s {
	case EventPending:
		return to == EventApproved || to == EventRejected || to == EventCancelled
	case EventApproved:
		return to == EventCancelled || to == EventCompleted
	}
	return false
}

// Event 活动表，对应 events
type Event struct {
	EventID              string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"event_id"`
	Title                string      `gorm:"type:varchar(200);not null"                     json:"title"`
	Description          string      `gorm:"type:text;not null"                             json:"description"`
	EventDate            time.Time   `gorm:"type:date;not null"                             json:"event_date"`
	StartTime            string      `gorm:"type:time;not null"                             json:"start_time"` // HH:MM[:SS]
	EndTime              string      `gorm:"type:time;not null"                             json:"end_time"`
	Capacity             int         `gorm:"not null"                                       json:"capacity"`
	OrganizerID          string      `gorm:"type:uuid;not null"                             json:"organizer_id"`
	VenueID              string      `gorm:"type:uuid;not null"                             json:"venue_id"`
	Status               EventStatus `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	BannerImage          *string     `gorm:"type:varchar(500)"                              json:"banner_image,omitempty"`
	RegistrationDeadline *time.Time  `gorm:"type:timestamptz"                                json:"registration_deadline,omitempty"`
	AdminNotes           *string     `gorm:"type:text"                                      json:"admin_notes,omitempty"`
	Version              int         `gorm:"not null;default:1"                             json:"version"`
	BaseModel

	// 关联
	Organizer *User  `gorm:"foreignKey:OrganizerID;references:UserID" json:"organizer,omitempty"`
	Venue     *Venue `gorm:"foreignKey:VenueID;references:VenueID"    json:"venue,omitempty"`
}

// TableName 指定表名
func (Event) TableName() string { return "events" }

// DateString 活动日期 YYYY-MM-DD
func (e *Event) DateString() string {
	return e.EventDate.Format(DateLayout)
}

// StartsAt 活动开始时刻（日期 + 开始时间，按 loc 解释）
func (e *Event) StartsAt(loc *time.Location) (time.Time, error) {
	return combine(e.EventDate, e.StartTime, loc)
}

// EndsAt 活动结束时刻
func (e *Event) EndsAt(loc *time.Location) (time.Time, error) {
	return combine(e.EventDate, e.EndTime, loc)
}

// Overlaps 同一天的 [start, end) 时段是否相交
func (e *Event) Overlaps(other *Event) bool {
	if e.VenueID != other.VenueID || e.DateString() != other.DateString() {
		return false
	}
	return ClockString(e.StartTime) < ClockString(other.EndTime) &&
		ClockString(other.StartTime) < ClockString(e.EndTime)
}

// ── 日期/时间辅助 ──

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ParseClock 解析 HH:MM 或 HH:MM:SS
func ParseClock(s string) (time.Time, error) {
	for _, layout := range []string{"15:04:05", ClockLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid clock value %q", s)
}

// ClockString 规范化为 HH:MM；无法解析时原样返回
func ClockString(s string) string {
	t, err := ParseClock(s)
	if err != nil {
		return s
	}
	return t.Format(ClockLayout)
}

func combine(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), c.Second(), 0, loc), nil
}
