package dto

import "time"

// ── 活动模块 DTO ──

// CreateEventRequest 创建活动请求
type CreateEventRequest struct {
	Title                string     `json:"title"                 binding:"required,min=3,max=200"`
	Description          string     `json:"description"           binding:"required,min=10"`
	EventDate            string     `json:"event_date"            binding:"required,datestr"`
	StartTime            string     `json:"start_time"            binding:"required,hhmm"`
	EndTime              string     `json:"end_time"              binding:"required,hhmm"`
	Capacity             int        `json:"capacity"              binding:"required,min=1"`
	VenueID              string     `json:"venue_id"              binding:"required,uuid"`
	BannerImage          *string    `json:"banner_image"          binding:"omitempty,max=500"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
}

// UpdateEventRequest 更新活动请求
type UpdateEventRequest struct {
	Title                *string    `json:"title"                 binding:"omitempty,min=3,max=200"`
	Description          *string    `json:"description"           binding:"omitempty,min=10"`
	EventDate            *string    `json:"event_date"            binding:"omitempty,datestr"`
	StartTime            *string    `json:"start_time"            binding:"omitempty,hhmm"`
	EndTime              *string    `json:"end_time"              binding:"omitempty,hhmm"`
	Capacity             *int       `json:"capacity"              binding:"omitempty,min=1"`
	VenueID              *string    `json:"venue_id"              binding:"omitempty,uuid"`
	BannerImage          *string    `json:"banner_image"          binding:"omitempty,max=500"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
}

// EventListRequest 公开活动列表查询参数
type EventListRequest struct {
	PaginationRequest
	Search   string `form:"search"    binding:"omitempty,max=100"`
	VenueID  string `form:"venue_id"  binding:"omitempty,uuid"`
	FromDate string `form:"from_date" binding:"omitempty,datestr"`
	ToDate   string `form:"to_date"   binding:"omitempty,datestr"`
}

// MyEventsRequest 组织者活动列表查询参数
type MyEventsRequest struct {
	PaginationRequest
	Status string `form:"status" binding:"omitempty,oneof=pending approved rejected cancelled completed"`
}

// EventResponse 活动信息响应
type EventResponse struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	EventDate            string      `json:"event_date"`
	StartTime            string      `json:"start_time"`
	EndTime              string      `json:"end_time"`
	Capacity             int         `json:"capacity"`
	RegisteredCount      int64       `json:"registered_count"`
	AvailableSeats       int64       `json:"available_seats"`
	Status               string      `json:"status"`
	BannerImage          *string     `json:"banner_image,omitempty"`
	RegistrationDeadline *string     `json:"registration_deadline,omitempty"`
	AdminNotes           *string     `json:"admin_notes,omitempty"`
	Organizer            *UserBrief  `json:"organizer,omitempty"`
	Venue                *VenueBrief `json:"venue,omitempty"`
	CreatedAt            string      `json:"created_at"`
}

// EventDetailResponse 活动详情（含当前用户报名状态与评分）
type EventDetailResponse struct {
	EventResponse
	IsRegistered       bool    `json:"is_registered"`
	RegistrationStatus string  `json:"registration_status,omitempty"`
	AverageRating      float64 `json:"average_rating"`
	FeedbackCount      int64   `json:"feedback_count"`
}
