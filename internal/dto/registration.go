package dto

// ── 报名模块 DTO ──

// EventSummary 凭证中的活动信息
type EventSummary struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	EventDate string      `json:"event_date"`
	StartTime string      `json:"start_time"`
	EndTime   string      `json:"end_time"`
	Venue     *VenueBrief `json:"venue,omitempty"`
}

// StudentSummary 凭证/名单中的学生信息
type StudentSummary struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	StudentNo  string `json:"student_no,omitempty"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// RegistrationPassResponse 报名凭证
type RegistrationPassResponse struct {
	RegistrationID string         `json:"registration_id"`
	Event          EventSummary   `json:"event"`
	User           StudentSummary `json:"user"`
	QRImage        string         `json:"qr_image,omitempty"`
	QRFileURL      string         `json:"qr_file_url,omitempty"`
	PDFFileURL     *string        `json:"pdf_file_url"`
}

// MyRegistrationsRequest 我的报名查询参数
type MyRegistrationsRequest struct {
	PaginationRequest
	Status string `form:"status" binding:"omitempty,oneof=all upcoming past"`
}

// MyRegistrationResponse 我的报名条目
type MyRegistrationResponse struct {
	RegistrationID     string        `json:"registration_id"`
	Status             string        `json:"status"`
	RegisteredAt       string        `json:"registered_at"`
	AttendanceMarkedAt *string       `json:"attendance_marked_at,omitempty"`
	FeedbackRating     *int          `json:"feedback_rating,omitempty"`
	FeedbackText       *string       `json:"feedback_text,omitempty"`
	Event              EventResponse `json:"event"`
}

// EventRegistrantResponse 活动报名名单条目
type EventRegistrantResponse struct {
	RegistrationID string         `json:"registration_id"`
	Status         string         `json:"status"`
	RegisteredAt   string         `json:"registered_at"`
	FeedbackRating *int           `json:"feedback_rating,omitempty"`
	FeedbackText   *string        `json:"feedback_text,omitempty"`
	Student        StudentSummary `json:"student"`
}

// MarkAttendanceRequest 标记出勤请求
type MarkAttendanceRequest struct {
	Status string `json:"status" binding:"required,oneof=attended absent"`
}

// FeedbackRequest 活动反馈请求
type FeedbackRequest struct {
	Rating   int     `json:"rating"   binding:"required,min=1,max=5"`
	Feedback *string `json:"feedback" binding:"omitempty,max=2000"`
}

// CheckInRequest 扫码签到请求（ticket 为二维码原文）
type CheckInRequest struct {
	Ticket string `json:"ticket" binding:"required,max=1024"`
}

// CheckInResponse 签到结果
type CheckInResponse struct {
	RegistrationID   string         `json:"registration_id"`
	Status           string         `json:"status"`
	AlreadyCheckedIn bool           `json:"already_checked_in"`
	Event            EventSummary   `json:"event"`
	Student          StudentSummary `json:"student"`
}
