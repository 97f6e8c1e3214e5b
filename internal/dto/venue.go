package dto

// ── 场地模块 DTO ──

// CreateVenueRequest 创建场地请求
type CreateVenueRequest struct {
	Name       string `json:"name"       binding:"required,min=2,max=200"`
	Location   string `json:"location"   binding:"required,max=255"`
	Capacity   int    `json:"capacity"   binding:"required,min=1"`
	Facilities string `json:"facilities" binding:"omitempty,max=2000"`
}

// UpdateVenueRequest 更新场地请求
type UpdateVenueRequest struct {
	Name       *string `json:"name"       binding:"omitempty,min=2,max=200"`
	Location   *string `json:"location"   binding:"omitempty,max=255"`
	Capacity   *int    `json:"capacity"   binding:"omitempty,min=1"`
	Facilities *string `json:"facilities" binding:"omitempty,max=2000"`
	IsActive   *bool   `json:"is_active"`
}

// VenueListRequest 场地列表查询参数
type VenueListRequest struct {
	IncludeInactive bool `form:"include_inactive"`
}

// VenueAvailabilityRequest 场地可用性查询参数
type VenueAvailabilityRequest struct {
	Date string `form:"date" binding:"required,datestr"`
}

// VenueResponse 场地信息响应
type VenueResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Capacity   int    `json:"capacity"`
	Facilities string `json:"facilities,omitempty"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// BookedSlot 已占用时段
type BookedSlot struct {
	EventID   string `json:"event_id"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

// VenueAvailabilityResponse 场地某日占用情况
type VenueAvailabilityResponse struct {
	Venue       VenueResponse `json:"venue"`
	Date        string        `json:"date"`
	BookedSlots []BookedSlot  `json:"booked_slots"`
}
