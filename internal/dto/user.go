package dto

// ── 用户模块 DTO ──

// UserResponse 用户信息响应（脱敏）
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	StudentNo  string `json:"student_no,omitempty"`
	Phone      string `json:"phone,omitempty"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  string `json:"created_at"`
}

// UserListRequest 用户列表查询参数
type UserListRequest struct {
	PaginationRequest
	Role       string `form:"role"       binding:"omitempty,oneof=student organizer"`
	Search     string `form:"search"     binding:"omitempty,max=100"`
	Email      string `form:"email"      binding:"omitempty,max=255"`
	Department string `form:"department" binding:"omitempty,max=100"`
	StudentNo  string `form:"student_no" binding:"omitempty,max=50"`
	SortBy     string `form:"sort_by"    binding:"omitempty,oneof=created_at first_name last_name email role department"`
	SortOrder  string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// UpdateUserRequest 更新用户信息请求（is_active 仅管理员可改）
type UpdateUserRequest struct {
	FirstName  *string `json:"first_name" binding:"omitempty,min=1,max=100"`
	LastName   *string `json:"last_name"  binding:"omitempty,min=1,max=100"`
	Department *string `json:"department" binding:"omitempty,max=100"`
	StudentNo  *string `json:"student_no" binding:"omitempty,max=50"`
	Phone      *string `json:"phone"      binding:"omitempty,max=30"`
	IsActive   *bool   `json:"is_active"`
}

// AssignRoleRequest 分配角色请求
type AssignRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=student organizer admin"`
}

// StudentStats 学生统计
type StudentStats struct {
	TotalRegistrations int64   `json:"total_registrations"`
	AttendedEvents     int64   `json:"attended_events"`
	PastEvents         int64   `json:"past_events"`
	UpcomingEvents     int64   `json:"upcoming_events"`
	AverageRating      float64 `json:"average_rating"`
}

// OrganizerStats 组织者统计
type OrganizerStats struct {
	TotalEvents       int64   `json:"total_events"`
	ApprovedEvents    int64   `json:"approved_events"`
	PendingEvents     int64   `json:"pending_events"`
	CompletedEvents   int64   `json:"completed_events"`
	TotalParticipants int64   `json:"total_participants"`
	AverageRating     float64 `json:"average_rating"`
}

// UserStatsResponse 用户统计（按角色填充其一）
type UserStatsResponse struct {
	UserID    string          `json:"user_id"`
	Role      string          `json:"role"`
	Student   *StudentStats   `json:"student,omitempty"`
	Organizer *OrganizerStats `json:"organizer,omitempty"`
}
