package dto

// ── 管理模块 DTO ──

// AdminEventListRequest 管理端活动列表查询参数
type AdminEventListRequest struct {
	PaginationRequest
	Status      string `form:"status"       binding:"omitempty,oneof=pending approved rejected cancelled completed"`
	Search      string `form:"search"       binding:"omitempty,max=100"`
	OrganizerID string `form:"organizer_id" binding:"omitempty,uuid"`
}

// UpdateEventStatusRequest 审批活动请求
type UpdateEventStatusRequest struct {
	Status     string  `json:"status"      binding:"required,oneof=approved rejected"`
	AdminNotes *string `json:"admin_notes" binding:"omitempty,max=2000"`
}

// CancelEventRequest 取消活动请求
type CancelEventRequest struct {
	Reason string `json:"reason" binding:"required,min=10,max=2000"`
}

// AnalyticsRequest 统计分析查询参数（period 单位：天）
type AnalyticsRequest struct {
	Period int `form:"period" binding:"omitempty,min=1,max=365"`
}

// LabelCount 分组计数
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// TrendPoint 报名趋势点
type TrendPoint struct {
	Date          string `json:"date"`
	Registrations int64  `json:"registrations"`
}

// FeedbackStats 反馈统计
type FeedbackStats struct {
	AverageRating    float64 `json:"average_rating"`
	TotalFeedback    int64   `json:"total_feedback"`
	PositiveFeedback int64   `json:"positive_feedback"`
}

// VenueUsage 场地使用统计
type VenueUsage struct {
	VenueID       string `json:"venue_id"`
	Name          string `json:"name"`
	EventCount    int64  `json:"event_count"`
	TotalCapacity int64  `json:"total_capacity"`
}

// AnalyticsResponse 统计分析响应
type AnalyticsResponse struct {
	PeriodDays          int           `json:"period_days"`
	Since               string        `json:"since"`
	ParticipationTrends []TrendPoint  `json:"participation_trends"`
	DepartmentStats     []LabelCount  `json:"department_stats"`
	FeedbackStats       FeedbackStats `json:"feedback_stats"`
	VenueStats          []VenueUsage  `json:"venue_stats"`
}

// DashboardResponse 管理后台总览
type DashboardResponse struct {
	TotalUsers         int64           `json:"total_users"`
	TotalEvents        int64           `json:"total_events"`
	TotalVenues        int64           `json:"total_venues"`
	TotalRegistrations int64           `json:"total_registrations"`
	EventsByStatus     []LabelCount    `json:"events_by_status"`
	UsersByRole        []LabelCount    `json:"users_by_role"`
	RecentEvents       []EventResponse `json:"recent_events"`
	PendingEvents      []EventResponse `json:"pending_events"`
}

// SettingResponse 设置项
type SettingResponse struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// UpdateSettingsRequest 批量更新设置
type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings" binding:"required,min=1"`
}

// AnnouncementRequest 公告请求
type AnnouncementRequest struct {
	Title      string `json:"title"       binding:"required,min=1,max=200"`
	Message    string `json:"message"     binding:"required,min=1"`
	Type       string `json:"type"        binding:"omitempty,oneof=info success warning error"`
	TargetRole string `json:"target_role" binding:"omitempty,oneof=student organizer all"`
}

// AnnouncementResponse 公告发送结果
type AnnouncementResponse struct {
	Recipients int `json:"recipients"`
}
